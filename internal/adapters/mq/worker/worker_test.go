package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	worker "github.com/okian/posture/internal/adapters/mq/worker"
	model "github.com/okian/posture/internal/domain/model"
	logging "github.com/okian/posture/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	frames chan model.Frame
}

func newMockQueue() *mockQueue {
	return &mockQueue{frames: make(chan model.Frame, 16)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan model.Frame {
	return mq.frames
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []int64
	busy bool
	// overlapped is set if two frames were ever handled concurrently
	overlapped bool
	delay      time.Duration
}

func (h *recordingHandler) HandleFrame(ctx context.Context, f model.Frame) {
	h.mu.Lock()
	if h.busy {
		h.overlapped = true
	}
	h.busy = true
	h.mu.Unlock()

	time.Sleep(h.delay)

	h.mu.Lock()
	h.busy = false
	h.seen = append(h.seen, f.TS.UnixMilli())
	h.mu.Unlock()
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		h := &recordingHandler{delay: time.Millisecond}

		convey.Convey("When creating a worker with custom options", func() {
			w := worker.NewInMemoryWorker(q, h, worker.WithName("frames"), worker.WithLogger(logging.Get()))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			w := worker.NewInMemoryWorker(q, h)
			go w.Run(ctx)

			for i := int64(0); i < 10; i++ {
				q.frames <- model.Frame{TS: time.UnixMilli(i)}
			}

			convey.Convey("Then frames are handled one at a time in order", func() {
				convey.So(waitFor(func() bool { return h.count() == 10 }), convey.ShouldBeTrue)
				h.mu.Lock()
				defer h.mu.Unlock()
				convey.So(h.overlapped, convey.ShouldBeFalse)
				convey.So(h.seen, convey.ShouldResemble, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
			})

			convey.Convey("And when shutting down", func() {
				err := w.Shutdown(context.Background())

				convey.Convey("Then it should shutdown gracefully and be idempotent", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the handler panics", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			calls := 0
			var mu sync.Mutex
			w := worker.NewInMemoryWorker(q, worker.HandlerFunc(func(ctx context.Context, f model.Frame) {
				mu.Lock()
				calls++
				mu.Unlock()
				if f.TS.UnixMilli() == 0 {
					panic("bad frame")
				}
			}))
			go w.Run(ctx)
			q.frames <- model.Frame{TS: time.UnixMilli(0)}
			q.frames <- model.Frame{TS: time.UnixMilli(1)}

			convey.Convey("Then the loop keeps consuming", func() {
				convey.So(waitFor(func() bool {
					mu.Lock()
					defer mu.Unlock()
					return calls == 2
				}), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			w := worker.NewInMemoryWorker(q, h)
			go w.Run(ctx)
			cancel()

			convey.Convey("Then worker should stop", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When the queue closes", func() {
			w := worker.NewInMemoryWorker(q, h)
			go w.Run(context.Background())
			close(q.frames)

			convey.Convey("Then worker should stop", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
			})
		})
	})
}
