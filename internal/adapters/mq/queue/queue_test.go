package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/okian/posture/internal/domain/model"
)

func frameAt(ms int64) model.Frame {
	return model.Frame{TS: time.UnixMilli(ms)}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, frameAt(1)) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	f := <-q.Dequeue(ctx)
	if f.TS.UnixMilli() != 1 {
		t.Errorf("expected frame 1, got %d", f.TS.UnixMilli())
	}
}

func TestInMemoryQueue_DropsWhenFull(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, frameAt(1)) || !q.Enqueue(ctx, frameAt(2)) {
		t.Fatal("expected enqueue to succeed")
	}

	if q.Enqueue(ctx, frameAt(3)) {
		t.Error("expected enqueue to fail when full")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
	if q.Capacity() != 2 {
		t.Errorf("expected capacity 2, got %d", q.Capacity())
	}
}

func TestInMemoryQueue_PreservesOrder(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()

	for i := int64(0); i < 100; i++ {
		if !q.Enqueue(ctx, frameAt(i)) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	_ = q.Close()

	want := int64(0)
	for f := range q.Dequeue(ctx) {
		if f.TS.UnixMilli() != want {
			t.Fatalf("expected frame %d, got %d", want, f.TS.UnixMilli())
		}
		want++
	}
	if want != 100 {
		t.Errorf("expected 100 frames, got %d", want)
	}
}

func TestInMemoryQueue_ConcurrentProducer(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(8))
	ctx := context.Background()

	var received int
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range q.Dequeue(ctx) {
			received++
		}
	}()

	accepted := 0
	for i := int64(0); i < 1000; i++ {
		if q.Enqueue(ctx, frameAt(i)) {
			accepted++
		}
	}
	_ = q.Close()
	wg.Wait()

	if received != accepted {
		t.Errorf("expected %d frames consumed, got %d", accepted, received)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, frameAt(1)) {
		t.Error("expected enqueue to succeed")
	}

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}

	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}

	if q.Enqueue(ctx, frameAt(2)) {
		t.Error("expected enqueue to fail after closing")
	}

	ch := q.Dequeue(ctx)
	if f, ok := <-ch; !ok || f.TS.UnixMilli() != 1 {
		t.Error("expected buffered frame to survive close")
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected dequeue channel to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected dequeue channel to be closed within timeout")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, frameAt(1)) {
		t.Error("expected enqueue to fail with cancelled context")
	}
}
