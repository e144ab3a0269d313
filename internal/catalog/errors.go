package catalog

import "errors"

var (
	// ErrUnauthorized is returned on 401/403 responses; never retried
	ErrUnauthorized = errors.New("catalog API authentication failed")

	// ErrItemNotFound is returned when the catalog has no item with the given id
	ErrItemNotFound = errors.New("catalog item not found")
)
