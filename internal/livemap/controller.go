package livemap

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/zeusync/livemap/internal/config"
	"github.com/zeusync/livemap/internal/core/observability/log"
)

// Ticker runs one frame.
type Ticker interface {
	Tick(dt time.Duration) error
}

// UpdateController drives a Ticker from a wall clock, waiting at least
// Pause between frames and scaling elapsed time by TimeMultiplier.
type UpdateController struct {
	target     Ticker
	pause      time.Duration
	multiplier float64
	now        func() time.Time
	logger     log.Log

	frames atomic.Uint64
}

func NewUpdateController(target Ticker, cfg config.UpdateConfig, logger log.Log) *UpdateController {
	if logger == nil {
		logger = log.NewNop()
	}
	pause := cfg.Pause
	if pause <= 0 {
		pause = time.Millisecond
	}
	multiplier := cfg.TimeMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	return &UpdateController{
		target:     target,
		pause:      pause,
		multiplier: multiplier,
		now:        time.Now,
		logger:     logger,
	}
}

// Frames reports the number of frames run so far.
func (c *UpdateController) Frames() uint64 { return c.frames.Load() }

// Run ticks until ctx is done, maxFrames frames ran (zero means no limit)
// or a frame fails.
func (c *UpdateController) Run(ctx context.Context, maxFrames uint64) error {
	last := c.now()
	ticker := time.NewTicker(c.pause)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		now := c.now()
		dt := time.Duration(float64(now.Sub(last)) * c.multiplier)
		last = now

		if err := c.target.Tick(dt); err != nil {
			c.logger.Error("update loop stopped", log.Uint64("frames", c.frames.Load()), log.Error(err))
			return err
		}
		if n := c.frames.Add(1); maxFrames > 0 && n >= maxFrames {
			return nil
		}
	}
}
