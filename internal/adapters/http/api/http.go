// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/posture/internal/app"
	"github.com/okian/posture/internal/domain/feedback"
	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
)

// HistoryDependencies are the read and write operations on a user's
// practice history.
type HistoryDependencies interface {
	Authenticator
	SaveSession(ctx context.Context, userID string, rec model.SessionRecord) (model.PracticeSession, error)
	History(ctx context.Context, userID string, limit int) ([]model.PracticeSession, error)
	Session(ctx context.Context, userID, id string) (model.PracticeSession, error)
	Stats(ctx context.Context, userID string) (model.PracticeStats, error)
}

// PracticeDependencies open live practice connections.
type PracticeDependencies interface {
	Poses() []model.PoseInfo
	OpenPractice(ctx context.Context, observer service.Observer, speaker feedback.Speaker, token string) (*service.Practice, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	HistoryDependencies
	PracticeDependencies
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the API logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAllowedOrigins restricts the websocket to the given browser origins.
// An empty list accepts any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// Server wires HTTP routes for the practice API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	posesHandler    *PosesHandler
	historyHandler  *HistoryHandler
	practiceHandler *PracticeHandler

	allowedOrigins []string
	logger         logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.posesHandler = NewPosesHandler(deps)
	s.historyHandler = NewHistoryHandler(deps)
	s.practiceHandler = NewPracticeHandler(deps, s.logger, s.allowedOrigins)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux, deps Dependencies) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /poses", MetricsMiddleware(s.posesHandler.HandleList, "poses"))

	mux.HandleFunc("POST /ai-practice/sessions", MetricsMiddleware(RequireUser(s.historyHandler.HandleSave, deps), "sessions_save"))
	mux.HandleFunc("GET /ai-practice/sessions/{id}", MetricsMiddleware(RequireUser(s.historyHandler.HandleGet, deps), "sessions_get"))
	mux.HandleFunc("GET /ai-practice/history", MetricsMiddleware(RequireUser(s.historyHandler.HandleHistory, deps), "history"))
	mux.HandleFunc("GET /ai-practice/stats", MetricsMiddleware(RequireUser(s.historyHandler.HandleStats, deps), "history_stats"))

	mux.HandleFunc("GET /practice/ws", MetricsMiddleware(s.practiceHandler.HandleConnect, "practice_ws"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
