package service

import (
	"context"

	"github.com/okian/posture/internal/domain/model"
)

// Observer receives UI state. It is called from the frame worker, the
// duration timer and the persistence goroutine, so implementations must be
// safe for concurrent use.
type Observer interface {
	OnState(ctx context.Context, s model.Snapshot)
	OnSaved(ctx context.Context, rec model.SessionRecord)
}

// Recorder persists a finished session summary.
type Recorder interface {
	CreateSession(ctx context.Context, rec model.SessionRecord) error
}

// RecorderFunc adapts a plain function to Recorder.
type RecorderFunc func(ctx context.Context, rec model.SessionRecord) error

// CreateSession calls f.
func (f RecorderFunc) CreateSession(ctx context.Context, rec model.SessionRecord) error {
	return f(ctx, rec)
}

type nopObserver struct{}

func (nopObserver) OnState(context.Context, model.Snapshot)      {}
func (nopObserver) OnSaved(context.Context, model.SessionRecord) {}
