package descriptor

import "errors"

var (
	// ErrMarkerNotFound is returned when the page carries no embedded descriptor.
	ErrMarkerNotFound = errors.New("descriptor marker not found")

	// ErrDecode is returned when the embedded value cannot be turned into a descriptor.
	ErrDecode = errors.New("descriptor decode failed")

	// ErrSpineShape is returned when a spine path matches neither known address shape.
	ErrSpineShape = errors.New("spine path shape not recognised")

	// ErrUnknownVersion is returned by NewDecoder for an unregistered encoding.
	ErrUnknownVersion = errors.New("unknown descriptor encoding version")
)
