package models

// Candidate is a loosely-typed record emitted by a source adapter. Keys
// vary by retailer; only a soft convention (store_name, product_name or
// title, price, image_url, ...) is expected. The normalizer strips any key
// it does not recognize, so adapters are free to pass extra fields through
// for debugging.
type Candidate map[string]any
