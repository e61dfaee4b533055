// Package metrics provides a fire-and-forget counters and timers sink.
package metrics

import (
	"log/slog"
	"sync"
	"time"
)

// Counter names emitted by the pipeline.
const (
	// CounterEventsProcessed counts every event accepted by the pipeline.
	CounterEventsProcessed = "events.processed"
	// CounterEventsPaidProcessed counts events for premium organizations.
	CounterEventsPaidProcessed = "events.processed.paid"
	// CounterEventsDiscarded counts events dropped without error.
	CounterEventsDiscarded = "events.discarded"
	// CounterStacksCreated counts newly created stacks.
	CounterStacksCreated = "stacks.created"
	// TimerPipelineRun times a full pipeline batch run.
	TimerPipelineRun = "pipeline.run"
)

// Client records counters and timings. Implementations must be safe for
// concurrent use and must never block the caller on sink availability.
type Client interface {
	// Counter adds value to the named counter.
	Counter(name string, value int64)
	// Timer starts a timing measurement; call the returned func to stop it.
	Timer(name string) func()
}

// Slog is a metrics client that logs measurements at debug level.
type Slog struct {
	logger *slog.Logger
}

// NewSlog creates a metrics client backed by the given logger.
func NewSlog(logger *slog.Logger) *Slog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slog{logger: logger}
}

// Counter adds value to the named counter.
func (s *Slog) Counter(name string, value int64) {
	s.logger.Debug("counter", slog.String("name", name), slog.Int64("value", value))
}

// Timer starts a timing measurement.
func (s *Slog) Timer(name string) func() {
	start := time.Now()
	return func() {
		s.logger.Debug("timer",
			slog.String("name", name),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

// Memory is a metrics client that records measurements for test assertions.
type Memory struct {
	mu       sync.Mutex
	counters map[string]int64
	timings  map[string]int
}

// NewMemory creates an in-memory metrics client.
func NewMemory() *Memory {
	return &Memory{
		counters: make(map[string]int64),
		timings:  make(map[string]int),
	}
}

// Counter adds value to the named counter.
func (m *Memory) Counter(name string, value int64) {
	m.mu.Lock()
	m.counters[name] += value
	m.mu.Unlock()
}

// Timer starts a timing measurement.
func (m *Memory) Timer(name string) func() {
	return func() {
		m.mu.Lock()
		m.timings[name]++
		m.mu.Unlock()
	}
}

// CounterValue returns the current value of the named counter.
func (m *Memory) CounterValue(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// TimerCount returns how many timings completed for the named timer.
func (m *Memory) TimerCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timings[name]
}

// Compile-time interface checks.
var (
	_ Client = (*Slog)(nil)
	_ Client = (*Memory)(nil)
)
