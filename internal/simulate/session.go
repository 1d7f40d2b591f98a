package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/posture/internal/adapters/http/api"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/internal/framegen"
	"github.com/okian/posture/pkg/logger"
)

const closeWait = time.Second

// session is one simulated pose-estimation provider. All writes happen on
// the goroutine running run; the read loop only records what it sees.
type session struct {
	cfg  *Config
	pose string
	rng  *rand.Rand
	log  logger.Logger

	conn  *websocket.Conn
	saved chan struct{}
	done  chan struct{}

	mu  sync.Mutex
	res Result
}

func newSession(cfg *Config, pose string, seed int64) *session {
	return &session{
		cfg:   cfg,
		pose:  pose,
		rng:   rand.New(rand.NewSource(seed)), //nolint:gosec // synthetic frames
		log:   logger.Get().Named("simulate").With(logger.String("pose", pose)),
		saved: make(chan struct{}),
		done:  make(chan struct{}),
		res:   Result{Pose: pose},
	}
}

// runSession practices one pose for cfg.Duration and returns what happened.
func runSession(ctx context.Context, cfg *Config, pose string, seed int64) Result {
	s := newSession(cfg, pose, seed)
	start := time.Now()
	err := s.run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.res.Err = err
	s.res.Elapsed = time.Since(start)
	return s.res
}

func (s *session) run(ctx context.Context) error {
	conn, err := dial(ctx, s.cfg)
	if err != nil {
		return err
	}
	s.conn = conn
	defer func() { _ = conn.Close() }()

	go s.readLoop(ctx)

	granted := true
	if err := s.send(api.ClientMessage{Type: api.MsgCamera, Granted: &granted}); err != nil {
		return err
	}
	if err := s.send(api.ClientMessage{Type: api.MsgSelect, Pose: s.pose}); err != nil {
		return err
	}
	if err := s.send(api.ClientMessage{Type: api.MsgStart, Pose: s.pose}); err != nil {
		return err
	}

	if err := s.stream(ctx); err != nil {
		return err
	}

	if err := s.send(api.ClientMessage{Type: api.MsgStop}); err != nil {
		return err
	}
	if s.cfg.Token != "" {
		s.awaitSaved(ctx)
	}
	s.close()
	return nil
}

// stream sends frames at cfg.FPS until cfg.Duration has passed.
func (s *session) stream(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.FPS))
	defer ticker.Stop()
	deadline := time.NewTimer(s.cfg.Duration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return fmt.Errorf("connection closed by server")
		case <-deadline.C:
			return nil
		case now := <-ticker.C:
			f := s.nextFrame()
			if err := s.send(api.ClientMessage{Type: api.MsgFrame, Landmarks: f.Landmarks, TS: now.UnixMilli()}); err != nil {
				return err
			}
			s.mu.Lock()
			s.res.FramesSent++
			s.mu.Unlock()
		}
	}
}

func (s *session) nextFrame() model.Frame {
	var faults []framegen.Fault
	if s.rng.Float64() < s.cfg.FaultRatio {
		faults = append(faults, framegen.FaultsFor(s.pose)...)
	}
	if s.cfg.Jitter > 0 {
		faults = append(faults, framegen.Jitter(s.rng, s.cfg.Jitter))
	}
	return framegen.ForPose(s.pose, faults...)
}

func (s *session) awaitSaved(ctx context.Context) {
	t := time.NewTimer(s.cfg.SaveWait)
	defer t.Stop()
	select {
	case <-s.saved:
	case <-s.done:
	case <-t.C:
		s.log.Warn(ctx, "no saved message before timeout", logger.Duration("wait", s.cfg.SaveWait))
	case <-ctx.Done():
	}
}

func (s *session) close() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
	t := time.NewTimer(closeWait)
	defer t.Stop()
	select {
	case <-s.done:
	case <-t.C:
	}
}

func (s *session) send(msg api.ClientMessage) error { //nolint:gocritic // hugeParam: one message per frame
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.Timeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

type envelope struct {
	Type string `json:"type"`
}

func (s *session) readLoop(ctx context.Context) {
	defer close(s.done)
	var savedOnce sync.Once
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug(ctx, "read loop ended", logger.Error(err))
			}
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Warn(ctx, "undecodable server message", logger.Error(err))
			continue
		}
		if s.record(ctx, env.Type, data) {
			savedOnce.Do(func() { close(s.saved) })
		}
	}
}

// record applies one server message to the result and reports whether it
// was the saved confirmation.
func (s *session) record(ctx context.Context, kind string, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case api.MsgState:
		var m api.StateMessage
		if json.Unmarshal(data, &m) != nil {
			return false
		}
		s.res.States++
		if m.Active {
			s.res.FinalScore = m.Score
		}
		s.log.Debug(ctx, "state", logger.Int("score", m.Score), logger.String("feedback", m.Feedback), logger.Bool("active", m.Active))
	case api.MsgSpeak:
		var m api.SpeakMessage
		if json.Unmarshal(data, &m) != nil {
			return false
		}
		s.res.Utterances = append(s.res.Utterances, m.Text)
		s.log.Info(ctx, "speak", logger.String("text", m.Text))
	case api.MsgError:
		var m api.ErrorMessage
		if json.Unmarshal(data, &m) != nil {
			return false
		}
		s.res.ErrorCodes = append(s.res.ErrorCodes, m.Code)
		s.log.Warn(ctx, "server error", logger.String("code", m.Code), logger.String("message", m.Message))
	case api.MsgSaved:
		var m api.SavedMessage
		if json.Unmarshal(data, &m) != nil {
			return false
		}
		rec := m.SessionRecord
		s.res.Saved = &rec
		s.log.Info(ctx, "session saved",
			logger.Int("duration_seconds", rec.DurationSeconds),
			logger.Int("accuracy_score", rec.AccuracyScore))
		return true
	}
	return false
}
