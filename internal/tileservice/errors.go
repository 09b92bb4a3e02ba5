package tileservice

import "errors"

var (
	ErrUnsupportedGeometry = errors.New("unsupported geometry")
	ErrMissingID           = errors.New("feature without id")
)
