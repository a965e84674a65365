package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/viewflow/internal/monitor"
)

// Sink is a monitor.Observer that appends every event to a journal.
// Failures are logged and collected; they never reach the publisher.
type Sink struct {
	ctx     context.Context
	journal *Journal
	logger  *slog.Logger

	mu       sync.Mutex
	errs     []error
	appended int
}

// NewSink creates a sink appending to j with ctx.
func NewSink(ctx context.Context, j *Journal, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{ctx: ctx, journal: j, logger: logger}
}

// ReceiveEvent implements monitor.Observer.
func (s *Sink) ReceiveEvent(e monitor.Event) {
	r, err := FromEvent(e)
	if err == nil {
		err = s.journal.Append(s.ctx, r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errs = append(s.errs, err)
		s.logger.Warn("journal append failed", "seq", e.Seq, "kind", string(e.Kind), "error", err)
		return
	}
	s.appended++
}

// Appended returns the number of events written.
func (s *Sink) Appended() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appended
}

// Err returns every append failure so far, joined.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}
