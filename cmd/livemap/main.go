package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paulmach/orb"

	"github.com/zeusync/livemap/internal/config"
	"github.com/zeusync/livemap/internal/core/observability/log"
	"github.com/zeusync/livemap/internal/injector"
	"github.com/zeusync/livemap/internal/livemap"
)

func main() {
	configPath := flag.String("config", "", "path to a yaml or toml config file")
	frames := flag.Uint64("frames", 600, "frames to run, 0 runs until interrupted")
	fps := flag.Int("fps", 0, "frame rate, overrides update.pause")
	geojsonPath := flag.String("geojson", "", "feature collection to stream instead of the demo regions")
	flag.Parse()

	if err := run(*configPath, *frames, *fps, *geojsonPath); err != nil {
		fmt.Fprintln(os.Stderr, "livemap:", err)
		os.Exit(1)
	}
}

func run(configPath string, frames uint64, fps int, geojsonPath string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFile(configPath); err != nil {
			return err
		}
	}
	if fps > 0 {
		cfg.Update.Pause = time.Second / time.Duration(fps)
	}

	demo, cleanup, err := injector.InitializeDemo(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	regions, err := loadRegions(demo, geojsonPath)
	if err != nil {
		return err
	}
	for _, id := range regions {
		demo.Map.AddRegion(id)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go tour(ctx, demo.Map, cfg)
	go report(ctx, demo.Map, demo.Logger)

	controller := livemap.NewUpdateController(demo.Map, cfg.Update, demo.Logger)
	err = controller.Run(ctx, frames)
	d := demo.Map.Diagnostics()
	demo.Logger.Info("livemap stopped",
		log.Uint64("frames", controller.Frames()),
		log.Int("cached", d.Cached),
		log.Int("cache_size", d.CacheSize),
		log.Uint64("fetches", d.Fetches),
	)
	return err
}

func loadRegions(demo *injector.Demo, path string) ([]string, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return demo.Service.LoadGeoJSON(f, "name")
	}

	demoRegions := map[string]orb.Bound{
		"atlantic": {Min: orb.Point{-60, -40}, Max: orb.Point{-10, 50}},
		"europe":   {Min: orb.Point{-10, 36}, Max: orb.Point{40, 70}},
		"pacific":  {Min: orb.Point{150, -50}, Max: orb.Point{180, 40}},
		"sahara":   {Min: orb.Point{-15, 15}, Max: orb.Point{35, 32}},
	}
	ids := make([]string, 0, len(demoRegions))
	for id, b := range demoRegions {
		demo.Service.RegisterBound(id, b)
		ids = append(ids, id)
	}
	return ids, nil
}

// tour pans and zooms the camera around a few places.
func tour(ctx context.Context, m *livemap.LiveMap, cfg *config.Config) {
	stops := []struct {
		lon, lat, zoom float64
	}{
		{0, 0, cfg.Viewport.Zoom},
		{10, 50, cfg.Viewport.Zoom + 2},
		{-30, 10, cfg.Viewport.Zoom + 1},
		{165, -5, cfg.Viewport.Zoom + 3},
	}
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for i := 0; ; i++ {
		s := stops[i%len(stops)]
		m.RequestPosition(s.lon, s.lat)
		m.RequestZoom(s.zoom)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func report(ctx context.Context, m *livemap.LiveMap, logger log.Log) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d := m.Diagnostics()
		logger.Info("diagnostics",
			log.Uint64("frame", d.Frame),
			log.Float64("zoom", d.Zoom),
			log.Int("entities", d.Entities),
			log.Int("micro_threads", d.MicroThreads),
			log.Duration("loading", d.LoadingTime),
			log.String("slowest_system", d.SlowestSystem),
			log.Duration("slowest_time", d.SlowestTime),
			log.Int("cache_size", d.CacheSize),
			log.Int("in_flight", d.InFlight),
			log.Int("queued", d.Queued),
			log.Int("streaming", d.Streaming),
			log.Int("cached", d.Cached),
		)
	}
}
