package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/yieldagg/internal/domain"
)

var (
	// ErrEventQueueFull is returned by AsyncSink.Emit when the buffer is full.
	// The event is dropped.
	ErrEventQueueFull = errors.New("aggregator: event queue full")

	// ErrSinkClosed is returned by AsyncSink.Emit after Close.
	ErrSinkClosed = errors.New("aggregator: event sink closed")
)

// AsyncSink queues events for a single worker that forwards them to the
// wrapped sink, so a slow backend never delays the read that emitted them.
// Each delivery gets its own timeout, detached from the caller's context.
type AsyncSink struct {
	next    domain.EventSink
	events  chan domain.Event
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncSink starts the delivery worker. Call Close to drain and stop it.
func NewAsyncSink(next domain.EventSink, buffer int, timeout time.Duration, logger *slog.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &AsyncSink{
		next:    next,
		events:  make(chan domain.Event, buffer),
		timeout: timeout,
		logger:  logger.With(slog.String("component", "event_sink")),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Emit implements domain.EventSink. It never blocks.
func (s *AsyncSink) Emit(_ context.Context, evt domain.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.events <- evt:
		return nil
	default:
		return ErrEventQueueFull
	}
}

// Close stops accepting events and waits for the queued ones to be
// delivered. It is safe to call more than once.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for evt := range s.events {
		ctx := context.Background()
		cancel := context.CancelFunc(func() {})
		if s.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
		}
		err := s.next.Emit(ctx, evt)
		cancel()
		if err != nil {
			s.logger.Warn("event delivery failed",
				slog.String("event", evt.Name),
				slog.String("error", err.Error()),
			)
		}
	}
}
