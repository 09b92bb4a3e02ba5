package spatial

import "errors"

var (
	// ErrRefCountUnderflow means a quad was released more often than it was
	// acquired. The counter is left untouched for that quad.
	ErrRefCountUnderflow = errors.New("quad reference count underflow")
	ErrInvalidQuadKey    = errors.New("invalid quad key")
)
