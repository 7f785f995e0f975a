package imagestore

import "errors"

var (
	// ErrInvalidPath indicates a relative image path that is absolute or escapes the store.
	ErrInvalidPath = errors.New("invalid image path")

	// ErrDirectoryRequired indicates the store was created without a base directory.
	ErrDirectoryRequired = errors.New("image directory is required")

	// ErrInvalidMaxDimension indicates a negative maximum dimension.
	ErrInvalidMaxDimension = errors.New("max dimension cannot be negative")
)
