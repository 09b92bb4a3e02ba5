package ecs

import "errors"

var (
	ErrEntityNotAlive     = errors.New("entity is not alive")
	ErrComponentNotFound  = errors.New("component not found")
	ErrSingletonNotFound  = errors.New("singleton entity not found")
	ErrSingletonAmbiguous = errors.New("more than one entity matches singleton query")
)
