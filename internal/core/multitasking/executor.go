package multitasking

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/livemap/internal/core/observability/log"
)

// Executor advances micro threads and returns the ones still running.
type Executor interface {
	Execute(threads []*MicroThread) []*MicroThread
}

// CooperativeExecutor resumes threads on the calling goroutine.
type CooperativeExecutor struct {
	limit  ExecutionLimit
	logger log.Log
}

func NewCooperativeExecutor(limit ExecutionLimit, logger log.Log) *CooperativeExecutor {
	if limit == nil {
		limit = Unlimited()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &CooperativeExecutor{limit: limit, logger: logger}
}

// Execute resumes threads in the given order, one slice each, until the
// limit disallows further resumptions. Completed threads are pruned; the
// result keeps the input order.
func (e *CooperativeExecutor) Execute(threads []*MicroThread) []*MicroThread {
	e.limit.Reset()
	running := make([]*MicroThread, 0, len(threads))
	stopped := false

	for _, t := range threads {
		if t.Completed() {
			continue
		}
		if stopped || !e.limit.Allowed() {
			stopped = true
			running = append(running, t)
			continue
		}

		if err := t.Resume(); err != nil {
			e.logger.Warn("micro thread failed", log.Error(err))
		}
		e.limit.Switched()

		if !t.Completed() {
			running = append(running, t)
		}
	}
	return running
}

// BackgroundExecutor runs every submitted thread to completion on a bounded
// pool of goroutines. Tasks must not touch components; their results are
// read on the frame goroutine once Completed reports true.
type BackgroundExecutor struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	logger log.Log

	mu        sync.Mutex
	submitted map[*MicroThread]struct{}
	closed    bool
}

func NewBackgroundExecutor(ctx context.Context, workers int, logger log.Log) *BackgroundExecutor {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	group := &errgroup.Group{}
	group.SetLimit(workers)
	return &BackgroundExecutor{
		ctx:       ctx,
		cancel:    cancel,
		group:     group,
		logger:    logger,
		submitted: make(map[*MicroThread]struct{}),
	}
}

// Execute submits threads not yet running while workers are free and
// returns every thread that has not completed.
func (e *BackgroundExecutor) Execute(threads []*MicroThread) []*MicroThread {
	running := make([]*MicroThread, 0, len(threads))

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range threads {
		if t.Completed() {
			delete(e.submitted, t)
			continue
		}
		running = append(running, t)
		if _, ok := e.submitted[t]; ok || e.closed {
			continue
		}
		thread := t
		if e.group.TryGo(func() error { return e.run(thread) }) {
			e.submitted[t] = struct{}{}
		}
	}
	return running
}

func (e *BackgroundExecutor) run(t *MicroThread) error {
	defer func() {
		e.mu.Lock()
		delete(e.submitted, t)
		e.mu.Unlock()
	}()
	for !t.Completed() {
		if e.ctx.Err() != nil {
			return nil
		}
		if err := t.Resume(); err != nil && !errors.Is(err, ErrThreadCompleted) {
			e.logger.Warn("micro thread failed", log.Error(err))
		}
	}
	return nil
}

// Close stops unfinished threads at their next suspension point and waits
// for the workers.
func (e *BackgroundExecutor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	return e.group.Wait()
}
