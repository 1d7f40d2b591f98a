// Package frames delivers landmark frames from the pose-estimation provider
// to a session.
package frames

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/posture/internal/adapters/mq/queue"
	"github.com/okian/posture/internal/adapters/mq/worker"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

const defaultStopTimeout = 2 * time.Second

// Source is a startable stream of frames. Start delivers frames to h one at
// a time until Stop; a failed Start leaves the source stopped.
type Source interface {
	Start(ctx context.Context, h worker.Handler) error
	Stop() error
}

// Option configures a QueueSource.
type Option func(*QueueSource)

// WithQueueSize bounds the frames buffered ahead of the handler.
func WithQueueSize(n int) Option {
	return func(s *QueueSource) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the frame in flight.
func WithStopTimeout(d time.Duration) Option {
	return func(s *QueueSource) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// WithLogger sets the source logger.
func WithLogger(l logger.Logger) Option {
	return func(s *QueueSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// QueueSource is the source for one provider connection. The connection
// pushes frames with Feed; each Start gets a fresh queue and worker so no
// frame from a previous session leaks into the next.
type QueueSource struct {
	queueSize   int
	stopTimeout time.Duration
	logger      logger.Logger

	mu      sync.Mutex
	denied  error
	q       *queue.InMemoryQueue
	w       *worker.InMemoryWorker
	cancel  context.CancelFunc
	running bool
}

// NewQueueSource creates a stopped source.
func NewQueueSource(opts ...Option) *QueueSource {
	s := &QueueSource{
		queueSize:   64,
		stopTimeout: defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("frames")
	}
	return s
}

// Deny marks the capture device unavailable; Start fails until Grant.
func (s *QueueSource) Deny(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = fmt.Errorf("%w: %s", ErrSourceUnavailable, reason)
}

// Grant clears a previous Deny.
func (s *QueueSource) Grant() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = nil
}

// Start implements Source. Starting a running source is a no-op.
func (s *QueueSource) Start(ctx context.Context, h worker.Handler) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.denied != nil {
		return s.denied
	}
	if s.running {
		return nil
	}

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.q = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.w = worker.NewInMemoryWorker(s.q, h, worker.WithName("frame-worker"), worker.WithLogger(s.logger))
	s.cancel = cancel
	s.running = true
	go s.w.Run(wctx)

	s.logger.Debug(ctx, "frame source started", logger.Int("queue_size", s.queueSize))
	return nil
}

// Feed enqueues one frame without blocking.
func (s *QueueSource) Feed(ctx context.Context, f model.Frame) error { //nolint:gocritic // hugeParam: Frame is passed by value
	s.mu.Lock()
	q, running := s.q, s.running
	s.mu.Unlock()

	if !running {
		metrics.RecordFrameSkipped("stopped")
		return ErrSourceStopped
	}
	metrics.RecordFrameReceived()
	if !q.Enqueue(ctx, f) {
		return ErrQueueFull
	}
	return nil
}

// Running reports whether frames are being delivered.
func (s *QueueSource) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop implements Source. Buffered frames are discarded; the frame in
// flight, if any, completes before Stop returns or the timeout passes.
func (s *QueueSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	q, w, cancel := s.q, s.w, s.cancel
	s.running = false
	s.q, s.w, s.cancel = nil, nil, nil
	s.mu.Unlock()

	ctx, done := context.WithTimeout(context.Background(), s.stopTimeout)
	defer done()

	err := w.Shutdown(ctx)
	_ = q.Close()
	cancel()
	if err != nil {
		return fmt.Errorf("stop frame source: %w", err)
	}
	return nil
}
