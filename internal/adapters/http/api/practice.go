package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/posture/internal/adapters/frames"
	service "github.com/okian/posture/internal/app"
	"github.com/okian/posture/internal/auth"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// Websocket connection limits.
const (
	readLimit    = 64 << 10
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeWait    = 10 * time.Second
	closeTimeout = 5 * time.Second
)

// Message types on the practice websocket.
const (
	MsgSelect = "select"
	MsgStart  = "start"
	MsgStop   = "stop"
	MsgFrame  = "frame"
	MsgCamera = "camera"

	MsgState = "state"
	MsgSpeak = "speak"
	MsgError = "error"
	MsgSaved = "saved"
	MsgPoses = "poses"
)

// SavedFeedback is shown when a session summary was stored.
const SavedFeedback = "Session saved successfully!"

// ClientMessage is any message sent by the pose-estimation provider.
type ClientMessage struct {
	Type      string           `json:"type"`
	Pose      string           `json:"pose,omitempty"`
	Landmarks []model.Landmark `json:"landmarks,omitempty"`
	TS        int64            `json:"ts,omitempty"` // unix milliseconds
	Granted   *bool            `json:"granted,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// StateMessage carries the UI state.
type StateMessage struct {
	Type string `json:"type"`
	model.Snapshot
}

// SpeakMessage asks the browser to speak text.
type SpeakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ErrorMessage reports a failed request.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SavedMessage reports a stored session summary.
type SavedMessage struct {
	Type string `json:"type"`
	model.SessionRecord
	Feedback string `json:"feedback"`
}

// PosesMessage lists the available poses.
type PosesMessage struct {
	Type  string           `json:"type"`
	Poses []model.PoseInfo `json:"poses"`
}

// PracticeHandler runs one practice per websocket connection.
type PracticeHandler struct {
	deps     PracticeDependencies
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewPracticeHandler creates the websocket handler. An empty origins list
// accepts any origin.
func NewPracticeHandler(deps PracticeDependencies, l logger.Logger, origins []string) *PracticeHandler {
	return &PracticeHandler{
		deps:   deps,
		logger: l,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				return slices.Contains(origins, r.Header.Get("Origin"))
			},
		},
	}
}

// HandleConnect handles GET /practice/ws.
func (h *PracticeHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	const op = "api.practice_connect"
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(ctx, "websocket upgrade failed", logger.Error(err))
		return
	}
	client := &wsClient{conn: conn, logger: h.logger}
	defer func() { _ = conn.Close() }()

	practice, err := h.deps.OpenPractice(ctx, client, client, bearerToken(r))
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			client.sendError(ctx, "unauthorized", WrapKind(op, ErrUnauthorized, err))
			return
		}
		client.sendError(ctx, "unavailable", WrapKind(op, ErrInternal, err))
		return
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := practice.Close(cctx); err != nil {
			h.logger.Warn(cctx, "practice close", logger.Error(err))
		}
	}()

	client.send(ctx, PosesMessage{Type: MsgPoses, Poses: h.deps.Poses()})
	client.OnState(ctx, practice.Snapshot())

	stopPing := make(chan struct{})
	defer close(stopPing)
	go client.pingLoop(stopPing)

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info(ctx, "practice connection lost", logger.Error(err))
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.sendError(ctx, "bad_request", WrapKind(op, ErrBadRequest, err))
			continue
		}
		h.dispatch(ctx, client, practice, msg)
	}
}

func (h *PracticeHandler) dispatch(ctx context.Context, client *wsClient, p *service.Practice, msg ClientMessage) { //nolint:gocritic // hugeParam: message is decoded per read
	const op = "api.practice_message"
	switch msg.Type {
	case MsgSelect:
		if err := p.SelectPose(msg.Pose); err != nil {
			client.sendError(ctx, controlCode(err), WrapKind(op, ErrBadRequest, err))
			return
		}
		client.OnState(ctx, p.Snapshot())
	case MsgStart:
		if err := p.Start(ctx, msg.Pose); err != nil {
			client.sendError(ctx, controlCode(err), WrapKind(op, ErrBadRequest, err))
			return
		}
	case MsgStop:
		if !p.Snapshot().Active {
			client.OnState(ctx, p.Snapshot())
			return
		}
		p.Stop(ctx)
	case MsgFrame:
		f := model.Frame{Landmarks: msg.Landmarks}
		if msg.TS > 0 {
			f.TS = time.UnixMilli(msg.TS)
		}
		if err := p.Feed(ctx, f); err != nil && !errors.Is(err, frames.ErrSourceStopped) && !errors.Is(err, frames.ErrQueueFull) {
			h.logger.Debug(ctx, "frame rejected", logger.Error(err))
		}
	case MsgCamera:
		p.SetCamera(msg.Granted != nil && *msg.Granted, msg.Reason)
	default:
		client.sendError(ctx, "bad_request", WrapKind(op, ErrBadRequest, errors.New("unknown message type "+msg.Type)))
	}
}

// controlCode maps session control failures to wire error codes.
func controlCode(err error) string {
	switch {
	case errors.Is(err, service.ErrAcquisition):
		return "acquisition_failed"
	case errors.Is(err, service.ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, service.ErrSessionActive):
		return "session_active"
	case errors.Is(err, service.ErrUnknownPose):
		return "unknown_pose"
	case errors.Is(err, service.ErrClosed):
		return "closed"
	default:
		return "internal"
	}
}

// wsClient is the UI and speech sink of one connection. gorilla connections
// allow one concurrent writer, so every write goes through SafeWriteJSON.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  logger.Logger
}

// SafeWriteJSON writes v as one text message.
func (c *wsClient) SafeWriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *wsClient) send(ctx context.Context, v any) {
	if err := c.SafeWriteJSON(v); err != nil {
		metrics.RecordErrorByComponent("practice_ws", "write")
		c.logger.Debug(ctx, "websocket write failed", logger.Error(err))
	}
}

func (c *wsClient) sendError(ctx context.Context, code string, err error) {
	c.send(ctx, ErrorMessage{Type: MsgError, Code: code, Message: err.Error()})
}

// OnState implements service.Observer.
func (c *wsClient) OnState(ctx context.Context, s model.Snapshot) {
	c.send(ctx, StateMessage{Type: MsgState, Snapshot: s})
}

// OnSaved implements service.Observer.
func (c *wsClient) OnSaved(ctx context.Context, rec model.SessionRecord) {
	c.send(ctx, SavedMessage{Type: MsgSaved, SessionRecord: rec, Feedback: SavedFeedback})
}

// Speak implements feedback.Speaker.
func (c *wsClient) Speak(ctx context.Context, text string) {
	c.send(ctx, SpeakMessage{Type: MsgSpeak, Text: text})
}

func (c *wsClient) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
