package fragment

import "errors"

var (
	ErrProviderClosed  = errors.New("fragment provider closed")
	ErrInvalidCapacity = errors.New("cache capacity must be positive")
)
