package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/livemap/internal/config"
	"github.com/zeusync/livemap/internal/core/observability/log"
	"github.com/zeusync/livemap/internal/fragment"
	"github.com/zeusync/livemap/internal/livemap"
	"github.com/zeusync/livemap/internal/tileservice"
)

// Demo is a runtime backed by the in-memory tile service.
type Demo struct {
	Map     *livemap.LiveMap
	Service *tileservice.Memory
	Logger  log.Log
}

var CoreSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideLiveMap,
)

var DemoSet = wire.NewSet(
	CoreSet,
	ProvideMemory,
	wire.Bind(new(fragment.RemoteTileService), new(*tileservice.Memory)),
	wire.Struct(new(Demo), "*"),
)

func ProvideLogger(cfg *config.Config) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return log.New(level), nil
}

func ProvideMemory(logger log.Log) *tileservice.Memory {
	return tileservice.NewMemory(logger)
}

func ProvideLiveMap(cfg *config.Config, service fragment.RemoteTileService, logger log.Log) (*livemap.LiveMap, func(), error) {
	m, err := livemap.New(cfg, service, logger)
	if err != nil {
		return nil, nil, err
	}
	return m, func() { _ = m.Close() }, nil
}
