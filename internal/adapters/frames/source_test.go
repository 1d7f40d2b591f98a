package frames_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/posture/internal/adapters/frames"
	"github.com/okian/posture/internal/adapters/mq/worker"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type collector struct {
	mu   sync.Mutex
	seen []int64
	gate chan struct{}
}

func (c *collector) HandleFrame(ctx context.Context, f model.Frame) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	c.seen = append(c.seen, f.TS.UnixMilli())
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestQueueSource(t *testing.T) {
	Convey("Given a queue source", t, func() {
		ctx := context.Background()
		src := frames.NewQueueSource(frames.WithQueueSize(4))
		var _ frames.Source = src

		Convey("Feeding before start is rejected", func() {
			err := src.Feed(ctx, model.Frame{})
			So(errors.Is(err, frames.ErrSourceStopped), ShouldBeTrue)
		})

		Convey("A denied source fails to start and stays stopped", func() {
			src.Deny("camera permission denied")
			err := src.Start(ctx, &collector{})
			So(errors.Is(err, frames.ErrSourceUnavailable), ShouldBeTrue)
			So(src.Running(), ShouldBeFalse)

			Convey("And starts once granted", func() {
				src.Grant()
				So(src.Start(ctx, &collector{}), ShouldBeNil)
				So(src.Running(), ShouldBeTrue)
				So(src.Stop(), ShouldBeNil)
			})
		})

		Convey("A started source delivers frames in order", func() {
			c := &collector{}
			So(src.Start(ctx, c), ShouldBeNil)
			So(src.Start(ctx, c), ShouldBeNil)
			for i := int64(0); i < 3; i++ {
				So(src.Feed(ctx, model.Frame{TS: time.UnixMilli(i)}), ShouldBeNil)
			}
			So(eventually(func() bool { return c.count() == 3 }), ShouldBeTrue)
			So(src.Stop(), ShouldBeNil)
			So(src.Stop(), ShouldBeNil)
			So(errors.Is(src.Feed(ctx, model.Frame{}), frames.ErrSourceStopped), ShouldBeTrue)
			c.mu.Lock()
			So(c.seen, ShouldResemble, []int64{0, 1, 2})
			c.mu.Unlock()
		})

		Convey("A blocked handler makes the queue drop new frames", func() {
			c := &collector{gate: make(chan struct{})}
			So(src.Start(ctx, c), ShouldBeNil)

			var full error
			for i := int64(0); i < 20 && full == nil; i++ {
				full = src.Feed(ctx, model.Frame{TS: time.UnixMilli(i)})
			}
			So(errors.Is(full, frames.ErrQueueFull), ShouldBeTrue)

			close(c.gate)
			So(src.Stop(), ShouldBeNil)
		})

		Convey("A cancelled context cannot start the source", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			err := src.Start(cctx, worker.HandlerFunc(func(context.Context, model.Frame) {}))
			So(errors.Is(err, frames.ErrSourceUnavailable), ShouldBeTrue)
		})
	})
}
