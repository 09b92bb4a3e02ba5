package system

import (
	"sync"
	"time"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/core/observability/log"
)

// System is a frame processor. Systems communicate only through components:
// a System never calls another System.
type System interface {
	Name() string
	Update(ctx *Context, dt time.Duration) error
}

// Initializer is implemented by systems that create their own entities or
// caches. Init runs once, right before the first Update.
type Initializer interface {
	Init(ctx *Context) error
}

// Context is shared by all systems of one scheduler.
type Context struct {
	Registry *ecs.Registry
	Logger   log.Log

	// Frame is the number of the frame being executed, starting at 1.
	Frame uint64
	// TotalTime is the sum of all deltas passed to the scheduler.
	TotalTime time.Duration

	later laterQueue
}

// RunLater schedules fn to run on the frame goroutine after all systems of
// the current frame. Safe to call from any goroutine; actions queued from a
// background goroutine run at the end of the next frame.
func (c *Context) RunLater(fn func(ctx *Context) error) {
	c.later.push(fn)
}

type laterQueue struct {
	mu      sync.Mutex
	actions []func(ctx *Context) error
}

func (q *laterQueue) push(fn func(ctx *Context) error) {
	q.mu.Lock()
	q.actions = append(q.actions, fn)
	q.mu.Unlock()
}

func (q *laterQueue) drain() []func(ctx *Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	actions := q.actions
	q.actions = nil
	return actions
}

func (q *laterQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// Metrics provides runtime metrics for a system
type Metrics struct {
	ExecutionCount       uint64
	TotalExecutionTime   time.Duration
	AverageExecutionTime time.Duration
	MaxExecutionTime     time.Duration
	LastExecutionTime    time.Duration
	ErrorCount           uint64
	LastError            error
}

func (m *Metrics) record(took time.Duration, err error) {
	m.ExecutionCount++
	m.TotalExecutionTime += took
	m.AverageExecutionTime = m.TotalExecutionTime / time.Duration(m.ExecutionCount)
	m.LastExecutionTime = took
	if took > m.MaxExecutionTime {
		m.MaxExecutionTime = took
	}
	if err != nil {
		m.ErrorCount++
		m.LastError = err
	}
}
