package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/okian/posture/internal/adapters/mq/worker"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// fakeSource hands frames to the controller only when a test calls it.
type fakeSource struct {
	mu      sync.Mutex
	err     error
	handler worker.Handler
	starts  int
	stops   int
}

func (s *fakeSource) Start(_ context.Context, h worker.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.handler = h
	s.starts++
	return nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *fakeSource) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}

type fakeRecorder struct {
	mu    sync.Mutex
	recs  []model.SessionRecord
	err   error
	block chan struct{}
}

func (r *fakeRecorder) CreateSession(ctx context.Context, rec model.SessionRecord) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return r.err
}

func (r *fakeRecorder) records() []model.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SessionRecord(nil), r.recs...)
}

type fakeObserver struct {
	mu     sync.Mutex
	states []model.Snapshot
	saved  []model.SessionRecord
}

func (o *fakeObserver) OnState(_ context.Context, s model.Snapshot) {
	o.mu.Lock()
	o.states = append(o.states, s)
	o.mu.Unlock()
}

func (o *fakeObserver) OnSaved(_ context.Context, rec model.SessionRecord) {
	o.mu.Lock()
	o.saved = append(o.saved, rec)
	o.mu.Unlock()
}

func (o *fakeObserver) last() model.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.states) == 0 {
		return model.Snapshot{}
	}
	return o.states[len(o.states)-1]
}

func (o *fakeObserver) stateCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.states)
}

func (o *fakeObserver) savedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.saved)
}

type fakeSpeaker struct {
	mu    sync.Mutex
	texts []string
}

func (s *fakeSpeaker) Speak(_ context.Context, text string) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
}

func (s *fakeSpeaker) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
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
