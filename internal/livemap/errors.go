package livemap

import "errors"

var (
	ErrClosed            = errors.New("livemap closed")
	ErrUnknownProjection = errors.New("unknown projection")
	ErrRegionExists      = errors.New("region already registered")
	ErrRegionNotFound    = errors.New("region not found")
)
