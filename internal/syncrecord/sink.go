package syncrecord

import (
	"context"

	"github.com/Iron-Ham/wtstate/internal/logging"
)

// Sink accepts synchronization events. *Recorder is the store-backed Sink.
type Sink interface {
	Record(ctx context.Context, e Event) (string, error)
}

// Graceful wraps a Sink for call sites where recording is a side channel:
// failures are logged and never returned.
type Graceful struct {
	sink   Sink
	logger *logging.Logger
}

// NewGraceful wraps sink. A nil sink discards every event.
func NewGraceful(sink Sink, logger *logging.Logger) *Graceful {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Graceful{sink: sink, logger: logger}
}

// Record forwards e and returns its sync id, or "" when recording failed or
// is disabled. The error is always nil.
func (g *Graceful) Record(ctx context.Context, e Event) (string, error) {
	if g.sink == nil {
		return "", nil
	}
	id, err := g.sink.Record(ctx, e)
	if err != nil {
		g.logger.Warn("sync event not recorded",
			"sync_type", e.SyncType,
			"pattern", e.Pattern,
			"error", err,
		)
		return "", nil
	}
	return id, nil
}

// Discard is a Sink that drops every event.
type Discard struct{}

// Record implements Sink.
func (Discard) Record(context.Context, Event) (string, error) { return "", nil }
