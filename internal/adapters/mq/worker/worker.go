// Package worker runs the single consumer that feeds queued frames to the
// session pipeline, one at a time and in arrival order.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// Handler consumes one frame. It must not retain the frame's landmark slice.
type Handler interface {
	HandleFrame(ctx context.Context, f model.Frame)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, f model.Frame)

// HandleFrame calls h.
func (h HandlerFunc) HandleFrame(ctx context.Context, f model.Frame) { h(ctx, f) } //nolint:gocritic // hugeParam: Frame is passed by value

// Queue defines how workers receive frames.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Frame
}

// Worker processes frames from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called or
	// the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after the frame in flight, if any.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing frames.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		handler:  handler,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	frames := w.queue.Dequeue(ctx)
	for {
		// Shutdown wins over a ready frame.
		select {
		case <-w.shutdown:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			w.processFrame(ctx, f)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// processFrame handles a single frame; a panicking handler is logged and the
// loop continues with the next frame.
func (w *InMemoryWorker) processFrame(ctx context.Context, f model.Frame) { //nolint:gocritic // hugeParam: Frame is passed by value
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("worker", "handler_panic")
			w.logger.Error(ctx, "frame handler panicked", logger.Any("panic", r))
		}
		metrics.RecordEvaluationLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	w.handler.HandleFrame(ctx, f)
}
