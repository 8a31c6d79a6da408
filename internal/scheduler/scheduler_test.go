package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neohiodeals/dealfeed/internal/ingest"
)

type fakeRunner struct {
	calls int
	err   error
	panic bool
}

func (f *fakeRunner) RunAll(_ context.Context) (ingest.Report, error) {
	f.calls++
	if f.panic {
		panic("boom")
	}
	return ingest.Report{Status: ingest.StatusOK}, f.err
}

type fakeCleaner struct {
	cutoff time.Time
	err    error
}

func (f *fakeCleaner) DeleteDealsOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func TestStart_RejectsBadSpecs(t *testing.T) {
	s := New(&fakeRunner{}, &fakeCleaner{}, 30*24*time.Hour, time.Minute)
	if err := s.Start("not a cron spec", "30 6 * * *"); err == nil {
		t.Error("invalid scrape spec should error")
	}

	s = New(&fakeRunner{}, &fakeCleaner{}, 30*24*time.Hour, time.Minute)
	if err := s.Start("0 6 * * *", "nope"); err == nil {
		t.Error("invalid cleanup spec should error")
	}
}

func TestStart_AcceptsStandardSpecs(t *testing.T) {
	s := New(&fakeRunner{}, &fakeCleaner{}, 30*24*time.Hour, time.Minute)
	if err := s.Start("0 6 * * *", "30 6 * * *"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-s.Stop().Done()
}

func TestRunScrape_InvokesRunnerAndContainsPanics(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, &fakeCleaner{}, 30*24*time.Hour, time.Minute)

	s.runScrape()
	if runner.calls != 1 {
		t.Errorf("runner calls = %d, want 1", runner.calls)
	}

	runner.err = errors.New("storage down")
	s.runScrape() // must not panic

	runner.err = nil
	runner.panic = true
	s.runScrape() // recover swallows the panic
	if runner.calls != 3 {
		t.Errorf("runner calls = %d, want 3", runner.calls)
	}
}

func TestRunCleanup_UsesRetentionCutoff(t *testing.T) {
	cleaner := &fakeCleaner{}
	retention := 30 * 24 * time.Hour
	s := New(&fakeRunner{}, cleaner, retention, time.Minute)

	s.runCleanup()

	want := time.Now().UTC().Add(-retention)
	if cleaner.cutoff.Before(want.Add(-time.Minute)) || cleaner.cutoff.After(want.Add(time.Minute)) {
		t.Errorf("cutoff = %v, want about %v", cleaner.cutoff, want)
	}
}
