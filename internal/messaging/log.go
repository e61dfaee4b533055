package messaging

import (
	"context"
	"log/slog"
	"sync"
)

// LogPublisher records entity changes to the log. It is the default publisher
// for single-node deployments without a message bus, and doubles as a capture
// sink in tests.
type LogPublisher struct {
	logger *slog.Logger

	mu       sync.Mutex
	captured []EntityChange
	capture  bool
}

// NewLogPublisher creates a publisher that logs entity changes.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// NewCapturePublisher creates a publisher that records changes in memory
// for test assertions.
func NewCapturePublisher() *LogPublisher {
	return &LogPublisher{logger: slog.Default(), capture: true}
}

// PublishEntityChanged logs the change.
func (p *LogPublisher) PublishEntityChanged(ctx context.Context, change EntityChange) error {
	if p.capture {
		p.mu.Lock()
		p.captured = append(p.captured, change)
		p.mu.Unlock()
	}

	p.logger.DebugContext(ctx, "entity changed",
		slog.String("change_type", string(change.ChangeType)),
		slog.String("entity_type", change.EntityType),
		slog.String("id", change.ID),
	)
	return nil
}

// Captured returns the changes recorded so far (capture mode only).
func (p *LogPublisher) Captured() []EntityChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EntityChange, len(p.captured))
	copy(out, p.captured)
	return out
}

// Ensure LogPublisher implements Publisher at compile time.
var _ Publisher = (*LogPublisher)(nil)
