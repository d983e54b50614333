package query

import "errors"

// ErrEmptyFilter means Available was called with neither store nor SKU.
var ErrEmptyFilter = errors.New("query: filter needs a store id or a sku")
