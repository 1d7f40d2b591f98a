// Package service provides the practice service and the session controller
// behind the HTTP and websocket API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/posture/internal/adapters/frames"
	"github.com/okian/posture/internal/adapters/history"
	repository "github.com/okian/posture/internal/adapters/repository"
	"github.com/okian/posture/internal/auth"
	"github.com/okian/posture/internal/domain/feedback"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/domain/pose"
	"github.com/okian/posture/internal/domain/scoring"
	"github.com/okian/posture/internal/platform/clock"
	"github.com/okian/posture/pkg/logger"
)

// Default service configuration constants.
const (
	defaultFrameQueueSize  = 64
	defaultMaxHistoryLimit = repository.DefaultHistoryLimit
	closeTimeout           = 5 * time.Second
)

// Service owns the pose registry, the history store and every open practice
// connection.
type Service struct {
	mu sync.RWMutex

	// Core components
	registry *pose.Registry
	store    repository.Store
	history  *history.Client
	verifier *auth.Verifier
	clock    clock.Clock

	// Configuration
	thresholds        pose.Thresholds
	minSessionSeconds int
	speakCooldown     time.Duration
	speakThreshold    int
	smoothingAlpha    float64
	frameQueueSize    int
	maxHistoryLimit   int
	persistTimeout    time.Duration

	// State
	started   bool
	practices map[*Practice]struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithThresholds sets the rule thresholds for the built-in poses.
func WithThresholds(t pose.Thresholds) Option {
	return func(s *Service) {
		s.thresholds = t
	}
}

// WithMinSessionSeconds sets the duration a session must exceed to be saved.
func WithMinSessionSeconds(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.minSessionSeconds = n
		}
	}
}

// WithSpeakCooldown sets the minimum gap between spoken corrections.
func WithSpeakCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.speakCooldown = d
		}
	}
}

// WithSpeakThreshold sets the score below which corrections are spoken.
func WithSpeakThreshold(score int) Option {
	return func(s *Service) {
		if score > 0 {
			s.speakThreshold = score
		}
	}
}

// WithSmoothingAlpha sets the weight of the newest frame score.
func WithSmoothingAlpha(alpha float64) Option {
	return func(s *Service) {
		s.smoothingAlpha = alpha
	}
}

// WithFrameQueueSize bounds the frames buffered per practice.
func WithFrameQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.frameQueueSize = n
		}
	}
}

// WithMaxHistoryLimit caps the rows returned by History.
func WithMaxHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxHistoryLimit = n
		}
	}
}

// WithPersistTimeout bounds each session save.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithStore sets the local history store. Without one an in-memory store is
// used.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		s.store = st
	}
}

// WithHistoryClient forwards finished sessions to a remote history service
// instead of the local store.
func WithHistoryClient(c *history.Client) Option {
	return func(s *Service) {
		s.history = c
	}
}

// WithVerifier sets the bearer token verifier.
func WithVerifier(v *auth.Verifier) Option {
	return func(s *Service) {
		s.verifier = v
	}
}

// WithClock sets the time source handed to every controller.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		thresholds:        pose.DefaultThresholds(),
		minSessionSeconds: defaultMinSessionSeconds,
		speakCooldown:     feedback.DefaultCooldown,
		speakThreshold:    feedback.DefaultThreshold,
		smoothingAlpha:    scoring.DefaultAlpha,
		frameQueueSize:    defaultFrameQueueSize,
		maxHistoryLimit:   defaultMaxHistoryLimit,
		persistTimeout:    defaultPersistTimeout,
		clock:             clock.Real{},
		practices:         make(map[*Practice]struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the pose registry and the history store.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	registry, err := pose.NewRegistry(pose.Builtins(s.thresholds)...)
	if err != nil {
		return fmt.Errorf("build pose registry: %w", err)
	}
	s.registry = registry

	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using in-memory history store")
	}

	s.started = true
	s.logger.Info(ctx, "practice service started",
		logger.Int("poses", registry.Len()),
		logger.Int("minSessionSeconds", s.minSessionSeconds),
		logger.Duration("speakCooldown", s.speakCooldown),
		logger.Bool("remoteHistory", s.history != nil),
	)
	return nil
}

// Stop closes every open practice, waits for pending saves and closes the
// store.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	open := make([]*Practice, 0, len(s.practices))
	for p := range s.practices {
		open = append(open, p)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping practice service...", logger.Int("openPractices", len(open)))
	for _, p := range open {
		if err := p.Close(ctx); err != nil {
			s.logger.Warn(ctx, "practice did not close cleanly", logger.Error(err))
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "close history store", logger.Error(err))
		}
	}
	s.logger.Info(ctx, "practice service stopped")
}

// Poses lists the registered poses in registration order.
func (s *Service) Poses() []model.PoseInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.registry == nil {
		return nil
	}
	defs := s.registry.List()
	out := make([]model.PoseInfo, len(defs))
	for i, d := range defs {
		out[i] = d.Info()
	}
	return out
}

// Authenticate returns the user id carried by a bearer token.
func (s *Service) Authenticate(token string) (string, error) {
	if s.verifier == nil {
		return "", fmt.Errorf("no verifier configured: %w", auth.ErrUnauthorized)
	}
	return s.verifier.Verify(token)
}

// OpenPractice creates the controller for one provider connection. An empty
// token opens an anonymous practice whose sessions are not saved.
func (s *Service) OpenPractice(ctx context.Context, observer Observer, speaker feedback.Speaker, token string) (*Practice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, ErrNotStarted
	}

	recorder, err := s.recorderFor(token)
	if err != nil {
		return nil, err
	}

	log := s.logger.Named("practice")
	source := frames.NewQueueSource(
		frames.WithQueueSize(s.frameQueueSize),
		frames.WithLogger(log),
	)
	opts := []ControllerOption{
		WithControllerClock(s.clock),
		WithControllerLogger(log),
		WithObserver(observer),
		WithControllerMinSessionSeconds(s.minSessionSeconds),
		WithControllerPersistTimeout(s.persistTimeout),
		WithThrottlerOptions(feedback.WithCooldown(s.speakCooldown), feedback.WithThreshold(s.speakThreshold)),
		WithSmootherOptions(scoring.WithAlpha(s.smoothingAlpha)),
	}
	if speaker != nil {
		opts = append(opts, WithSpeaker(speaker))
	}
	if recorder != nil {
		opts = append(opts, WithRecorder(recorder))
	}

	p := &Practice{
		Controller: NewController(s.registry, source, opts...),
		source:     source,
		release:    s.release,
	}
	s.practices[p] = struct{}{}
	s.logger.Debug(ctx, "practice opened", logger.Bool("anonymous", recorder == nil), logger.Int("open", len(s.practices)))
	return p, nil
}

func (s *Service) recorderFor(token string) (Recorder, error) {
	if token == "" {
		return nil, nil
	}
	if s.history != nil {
		return history.TokenRecorder{Client: s.history, Token: token}, nil
	}
	userID, err := s.Authenticate(token)
	if err != nil {
		return nil, err
	}
	return storeRecorder{store: s.store, userID: userID}, nil
}

func (s *Service) release(p *Practice) {
	s.mu.Lock()
	delete(s.practices, p)
	s.mu.Unlock()
}

// SaveSession stores rec for userID. A zero timestamp is dated at save time.
func (s *Service) SaveSession(ctx context.Context, userID string, rec model.SessionRecord) (model.PracticeSession, error) {
	st, err := s.readyStore()
	if err != nil {
		return model.PracticeSession{}, err
	}
	return st.Create(ctx, userID, rec)
}

// History returns the newest sessions of userID, at most the configured
// maximum.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]model.PracticeSession, error) {
	st, err := s.readyStore()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.maxHistoryLimit {
		limit = s.maxHistoryLimit
	}
	return st.History(ctx, userID, limit)
}

// Session returns one of userID's sessions.
func (s *Service) Session(ctx context.Context, userID, id string) (model.PracticeSession, error) {
	st, err := s.readyStore()
	if err != nil {
		return model.PracticeSession{}, err
	}
	return st.Get(ctx, userID, id)
}

// Stats returns the aggregates of userID's history.
func (s *Service) Stats(ctx context.Context, userID string) (model.PracticeStats, error) {
	st, err := s.readyStore()
	if err != nil {
		return model.PracticeStats{}, err
	}
	return st.Stats(ctx, userID)
}

func (s *Service) readyStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":           s.started,
		"openPractices":     len(s.practices),
		"minSessionSeconds": s.minSessionSeconds,
		"frameQueueSize":    s.frameQueueSize,
		"remoteHistory":     s.history != nil,
	}
	if s.registry != nil {
		stats["poses"] = s.registry.Len()
	}
	return stats
}

// Practice is one provider connection: a controller plus the frame source
// the connection feeds.
type Practice struct {
	*Controller
	source  *frames.QueueSource
	release func(*Practice)
	once    sync.Once
}

// Feed delivers one frame to the running session.
func (p *Practice) Feed(ctx context.Context, f model.Frame) error { //nolint:gocritic // hugeParam: Frame is passed by value
	return p.source.Feed(ctx, f)
}

// SetCamera records the provider's camera permission outcome. A denied
// camera makes the next Start fail with ErrAcquisition.
func (p *Practice) SetCamera(granted bool, reason string) {
	if granted {
		p.source.Grant()
		return
	}
	if reason == "" {
		reason = "camera permission denied"
	}
	p.source.Deny(reason)
}

// Close tears the practice down and removes it from the service.
func (p *Practice) Close(ctx context.Context) error {
	err := p.Controller.Close(ctx)
	p.once.Do(func() {
		if p.release != nil {
			p.release(p)
		}
	})
	return err
}

// storeRecorder saves sessions in the local store for one user.
type storeRecorder struct {
	store  repository.Store
	userID string
}

func (r storeRecorder) CreateSession(ctx context.Context, rec model.SessionRecord) error {
	if _, err := r.store.Create(ctx, r.userID, rec); err != nil {
		return fmt.Errorf("save session for %s: %w", r.userID, err)
	}
	return nil
}
