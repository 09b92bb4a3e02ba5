//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/livemap/internal/config"
	"github.com/zeusync/livemap/internal/fragment"
	"github.com/zeusync/livemap/internal/livemap"
)

func InitializeLiveMap(cfg *config.Config, service fragment.RemoteTileService) (*livemap.LiveMap, func(), error) {
	wire.Build(CoreSet)
	return nil, nil, nil
}

func InitializeDemo(cfg *config.Config) (*Demo, func(), error) {
	wire.Build(DemoSet)
	return nil, nil, nil
}
