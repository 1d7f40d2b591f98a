package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/posture/internal/adapters/frames"
	"github.com/okian/posture/internal/domain/feedback"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/pose"
	"github.com/okian/posture/internal/domain/scoring"
	"github.com/okian/posture/internal/platform/clock"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// Default controller configuration constants.
const (
	defaultMinSessionSeconds = 5
	defaultPersistTimeout    = 10 * time.Second
	tickInterval             = time.Second
)

// ControllerOption applies a configuration option to the Controller.
type ControllerOption func(*Controller)

// WithControllerClock sets the time source for durations, ticks and throttling.
func WithControllerClock(c clock.Clock) ControllerOption {
	return func(ctl *Controller) {
		if c != nil {
			ctl.clock = c
		}
	}
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(l logger.Logger) ControllerOption {
	return func(ctl *Controller) {
		if l != nil {
			ctl.logger = l
		}
	}
}

// WithObserver sets the UI state receiver.
func WithObserver(o Observer) ControllerOption {
	return func(ctl *Controller) {
		if o != nil {
			ctl.observer = o
		}
	}
}

// WithSpeaker sets the speech channel.
func WithSpeaker(s feedback.Speaker) ControllerOption {
	return func(ctl *Controller) {
		if s != nil {
			ctl.speaker = s
		}
	}
}

// WithRecorder sets where finished sessions are saved. Without one, sessions
// are never persisted.
func WithRecorder(r Recorder) ControllerOption {
	return func(ctl *Controller) {
		ctl.recorder = r
	}
}

// WithControllerMinSessionSeconds sets the duration a session must exceed to be saved.
func WithControllerMinSessionSeconds(n int) ControllerOption {
	return func(ctl *Controller) {
		if n >= 0 {
			ctl.minSessionSeconds = n
		}
	}
}

// WithControllerPersistTimeout bounds the single persistence call.
func WithControllerPersistTimeout(d time.Duration) ControllerOption {
	return func(ctl *Controller) {
		if d > 0 {
			ctl.persistTimeout = d
		}
	}
}

// WithThrottlerOptions tunes the speech throttler.
func WithThrottlerOptions(opts ...feedback.Option) ControllerOption {
	return func(ctl *Controller) {
		ctl.throttlerOpts = append(ctl.throttlerOpts, opts...)
	}
}

// WithSmootherOptions tunes the score smoother.
func WithSmootherOptions(opts ...scoring.Option) ControllerOption {
	return func(ctl *Controller) {
		ctl.smootherOpts = append(ctl.smootherOpts, opts...)
	}
}

// session is the immutable identity of a running session.
type session struct {
	id        string
	poseID    string
	poseName  string
	startedAt time.Time
}

// Controller runs timed practice sessions for one frame stream.
//
// Lifecycle calls (SelectPose, Start, Stop, Close) serialize on mu. The frame
// path never takes mu: it reads the pose and the active flag atomically and
// guards score state with scoreMu, so Stop can wait for the frame in flight.
type Controller struct {
	registry  *pose.Registry
	evaluator *pose.FrameEvaluator
	source    frames.Source
	observer  Observer
	speaker   feedback.Speaker
	recorder  Recorder
	clock     clock.Clock
	logger    logger.Logger

	minSessionSeconds int
	persistTimeout    time.Duration
	throttlerOpts     []feedback.Option
	smootherOpts      []scoring.Option

	mu         sync.Mutex
	running    bool
	closed     bool
	stopTimer  chan struct{}
	timerDone  chan struct{}
	closeOnce  sync.Once
	persisting sync.WaitGroup

	poseID   atomic.Value // string
	current  atomic.Pointer[session]
	active   atomic.Bool
	duration atomic.Int64

	scoreMu   sync.Mutex
	smoother  *scoring.Smoother
	throttler *feedback.Throttler
	score     int
	feedback  string
}

// NewController creates an idle controller over registry and source.
func NewController(registry *pose.Registry, source frames.Source, opts ...ControllerOption) *Controller {
	c := &Controller{
		registry:          registry,
		evaluator:         pose.NewFrameEvaluator(registry),
		source:            source,
		observer:          nopObserver{},
		clock:             clock.Real{},
		minSessionSeconds: defaultMinSessionSeconds,
		persistTimeout:    defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("controller")
	}
	if c.speaker == nil {
		c.speaker = logSpeaker{logger: c.logger}
	}
	c.smoother = scoring.NewSmoother(c.smootherOpts...)
	c.throttler = feedback.NewThrottler(c.throttlerOpts...)
	c.poseID.Store("")
	return c
}

// SelectPose sets the pose for the next session. It only changes what the
// next Start uses.
func (c *Controller) SelectPose(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrSessionActive
	}
	if _, ok := c.registry.Lookup(id); !ok {
		return fmt.Errorf("select %q: %w", id, ErrUnknownPose)
	}
	c.poseID.Store(id)
	return nil
}

// Pose returns the currently selected pose id.
func (c *Controller) Pose() string {
	id, _ := c.poseID.Load().(string)
	return id
}

// Start begins a session for id, or for the selected pose when id is empty.
// When the frame source cannot be acquired the controller stays idle and
// Start may be retried.
func (c *Controller) Start(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.running {
		return ErrAlreadyRunning
	}
	if id == "" {
		id = c.Pose()
	}
	def, ok := c.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("start %q: %w", id, ErrUnknownPose)
	}

	c.scoreMu.Lock()
	c.smoother.Reset()
	c.throttler.Reset()
	c.score = 0
	c.feedback = def.Description
	c.scoreMu.Unlock()
	c.duration.Store(0)
	c.poseID.Store(id)

	sess := &session{id: uuid.NewString(), poseID: id, poseName: def.Name, startedAt: c.clock.Now()}
	c.current.Store(sess)
	c.active.Store(true)

	if err := c.source.Start(ctx, c); err != nil {
		c.active.Store(false)
		c.current.Store(nil)
		metrics.RecordAcquisitionError()
		c.logger.Warn(ctx, "frame source unavailable", logger.String("pose", id), logger.Error(err))
		return fmt.Errorf("%w: %w", ErrAcquisition, err)
	}

	c.stopTimer = make(chan struct{})
	c.timerDone = make(chan struct{})
	go c.runTimer(context.WithoutCancel(ctx), c.clock.NewTicker(tickInterval), sess.startedAt, c.stopTimer, c.timerDone)
	c.running = true

	metrics.RecordSessionStarted(id)
	c.logger.Info(ctx, "session started", logger.String("session_id", sess.id), logger.String("pose", id))
	c.observer.OnState(ctx, c.Snapshot())
	return nil
}

// runTimer publishes elapsed whole seconds once per tick.
func (c *Controller) runTimer(ctx context.Context, t clock.Ticker, startedAt time.Time, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C():
			if !c.active.Load() {
				return
			}
			c.duration.Store(int64(now.Sub(startedAt) / time.Second))
			c.observer.OnState(ctx, c.Snapshot())
		}
	}
}

// HandleFrame runs one frame through evaluate, smooth, publish and speak.
// Frames arriving while no session is active, incomplete frames and frames
// for an unknown pose are skipped.
func (c *Controller) HandleFrame(ctx context.Context, f model.Frame) { //nolint:gocritic // hugeParam: Frame is passed by value
	if !c.active.Load() {
		metrics.RecordFrameSkipped("inactive")
		return
	}
	if !f.Complete() {
		metrics.RecordFrameSkipped("incomplete")
		return
	}
	res, ok := c.evaluator.Evaluate(c.Pose(), f)
	if !ok {
		metrics.RecordFrameSkipped("unknown_pose")
		return
	}

	c.scoreMu.Lock()
	if !c.active.Load() {
		c.scoreMu.Unlock()
		return
	}
	score := c.smoother.Next(res.Score)
	c.score = score
	c.feedback = res.Feedback
	// Both the frame and the smoothed score must be poor; the average ramps
	// up from zero after Start.
	speak := res.Score < c.throttler.Threshold() && c.throttler.Offer(c.clock.Now(), score, res.Feedback)
	c.scoreMu.Unlock()

	metrics.RecordSmoothedScore(score)
	if !c.active.Load() {
		return
	}
	c.observer.OnState(ctx, c.Snapshot())

	switch {
	case speak && c.active.Load():
		metrics.RecordSpeechEmitted()
		c.speaker.Speak(ctx, res.Feedback)
	case !speak && score < c.throttler.Threshold():
		metrics.RecordSpeechSuppressed()
	}
}

// Snapshot returns the state exposed to the UI.
func (c *Controller) Snapshot() model.Snapshot {
	c.scoreMu.Lock()
	score, text := c.score, c.feedback
	c.scoreMu.Unlock()

	snap := model.Snapshot{
		PoseID:          c.Pose(),
		Score:           score,
		Feedback:        text,
		DurationSeconds: int(c.duration.Load()),
		Active:          c.active.Load(),
	}
	if sess := c.current.Load(); sess != nil {
		snap.SessionID = sess.id
		snap.PoseName = sess.poseName
	} else if def, ok := c.registry.Lookup(snap.PoseID); ok {
		snap.PoseName = def.Name
	}
	return snap
}

// Stop ends the running session. It is a no-op when idle. A session longer
// than the minimum produces one record that is saved asynchronously; the
// record is returned with true. Persistence never blocks or fails Stop.
func (c *Controller) Stop(ctx context.Context) (model.SessionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return model.SessionRecord{}, false
	}
	c.active.Store(false)
	c.running = false

	c.scoreMu.Lock()
	final := c.score
	c.scoreMu.Unlock()

	close(c.stopTimer)
	<-c.timerDone
	if err := c.source.Stop(); err != nil {
		c.logger.Warn(ctx, "frame source did not stop cleanly", logger.Error(err))
	}

	sess := c.current.Load()
	now := c.clock.Now()
	seconds := int(now.Sub(sess.startedAt) / time.Second)
	c.duration.Store(int64(seconds))

	fields := []logger.Field{
		logger.String("session_id", sess.id),
		logger.String("pose", sess.poseID),
		logger.Int("duration_seconds", seconds),
		logger.Int("accuracy_score", final),
	}

	if seconds <= c.minSessionSeconds {
		metrics.RecordSessionStopped("discarded", seconds)
		c.logger.Info(ctx, "session discarded", fields...)
		c.observer.OnState(ctx, c.Snapshot())
		return model.SessionRecord{}, false
	}

	rec := model.SessionRecord{
		PoseName:        sess.poseName,
		DurationSeconds: seconds,
		AccuracyScore:   final,
		Timestamp:       now,
	}
	metrics.RecordSessionStopped("saved", seconds)
	c.logger.Info(ctx, "session stopped", fields...)
	c.observer.OnState(ctx, c.Snapshot())
	c.persist(ctx, rec)
	return rec, true
}

// persist makes the single fire-and-forget save call for rec.
func (c *Controller) persist(ctx context.Context, rec model.SessionRecord) {
	if c.recorder == nil {
		c.logger.Debug(ctx, "no recorder configured; session not saved")
		return
	}
	c.persisting.Add(1)
	go func() {
		defer c.persisting.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout)
		defer cancel()

		if err := c.recorder.CreateSession(pctx, rec); err != nil {
			metrics.RecordSessionPersistFailed()
			metrics.RecordErrorByComponent("controller", "persist")
			c.logger.Error(pctx, "failed to save session", logger.String("pose", rec.PoseName), logger.Error(err))
			return
		}
		metrics.RecordSessionPersisted()
		c.observer.OnSaved(pctx, rec)
	}()
}

// Close stops any running session exactly once and waits for in-flight
// persistence or ctx, whichever comes first.
func (c *Controller) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.Stop(ctx)
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		c.persisting.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for session save: %w", ctx.Err())
	}
}

// logSpeaker writes feedback to the log when no speech channel is attached.
type logSpeaker struct {
	logger logger.Logger
}

func (s logSpeaker) Speak(ctx context.Context, text string) {
	s.logger.Info(ctx, "speak", logger.String("text", text))
}
