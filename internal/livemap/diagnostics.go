package livemap

import (
	"time"

	"github.com/zeusync/livemap/internal/core/ecs"
	"github.com/zeusync/livemap/internal/fragment"
	"github.com/zeusync/livemap/internal/mapengine/viewport"
)

// Diagnostics is a snapshot taken at the end of the last frame.
type Diagnostics struct {
	Frame          uint64
	Zoom           float64
	Entities       int
	MicroThreads   int
	LoadingTime    time.Duration
	LastUpdateTime time.Duration
	SlowestSystem  string
	SlowestTime    time.Duration

	CacheSize     int
	CacheCapacity int
	Evictions     uint64
	InFlight      int
	Fetches       uint64
	FetchFailures uint64

	Queued    int
	Active    int
	Streaming int
	Cached    int
	Retained  int
	Emitted   int
}

// Diagnostics is safe to call from any goroutine.
func (m *LiveMap) Diagnostics() Diagnostics {
	m.diagMu.RLock()
	defer m.diagMu.RUnlock()
	return m.diagnostics
}

func (m *LiveMap) snapshot() {
	d := Diagnostics{
		Frame:          m.scheduler.Context().Frame,
		Entities:       m.registry.EntitiesCount(),
		MicroThreads:   m.threads.Threads(),
		LoadingTime:    m.threads.LoadingTime(),
		LastUpdateTime: m.scheduler.LastUpdateTime(),
		CacheSize:      m.provider.Cache().Len(),
		CacheCapacity:  m.provider.Cache().Capacity(),
		Evictions:      m.provider.Cache().Evictions(),
		InFlight:       m.provider.InFlight(),
		Fetches:        m.provider.Fetches(),
		FetchFailures:  m.provider.Failures(),
		Retained:       m.removing.Retained(),
	}
	d.SlowestSystem, d.SlowestTime = m.scheduler.SlowestSystem()

	if cam, ok := ecs.Get[viewport.CameraState](m.registry, m.camera); ok {
		d.Zoom = cam.Zoom
	}
	if _, c, err := ecs.Singleton[fragment.DownloadingFragmentsComponent](m.registry); err == nil {
		d.Queued, d.Active = c.Queued(), c.Active()
	}
	if _, c, err := ecs.Singleton[fragment.StreamingFragmentsComponent](m.registry); err == nil {
		d.Streaming = len(c.Entities)
	}
	if _, c, err := ecs.Singleton[fragment.CachedFragmentsComponent](m.registry); err == nil {
		d.Cached = len(c.Entities)
	}
	if _, c, err := ecs.Singleton[fragment.EmittedFragmentsComponent](m.registry); err == nil {
		d.Emitted = len(c.Emitted)
	}

	m.diagMu.Lock()
	m.diagnostics = d
	m.diagMu.Unlock()
}
