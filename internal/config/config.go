// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Loading and validation errors wrap ErrLoadConfig or ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/posture/internal/domain/pose"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// AllowedOrigins is a comma separated list of browser origins accepted on
	// the practice websocket. Empty accepts any origin.
	AllowedOrigins string `koanf:"allowed_origins"`

	// HistoryURL forwards finished sessions to a remote history service.
	// Empty keeps history in the local store.
	HistoryURL string `koanf:"history_url"`

	// HistoryTimeoutMS bounds each call to the remote history service and
	// each session save.
	HistoryTimeoutMS int `koanf:"history_timeout_ms"`

	// HistoryDBPath is the SQLite database of the local store. Empty keeps
	// history in memory.
	HistoryDBPath string `koanf:"history_db_path"`

	// JWTSecret verifies bearer tokens. Empty disables authenticated routes.
	JWTSecret string `koanf:"jwt_secret"`

	// MinSessionSeconds is the duration a session must exceed to be saved.
	MinSessionSeconds int `koanf:"min_session_seconds"`

	// SpeakCooldownMS is the minimum gap between spoken corrections.
	SpeakCooldownMS int `koanf:"speak_cooldown_ms"`

	// SpeakScoreThreshold is the smoothed score below which corrections are
	// spoken.
	SpeakScoreThreshold int `koanf:"speak_score_threshold"`

	// SmoothingAlpha weights the newest frame score in the moving average.
	SmoothingAlpha float64 `koanf:"smoothing_alpha"`

	// FrameQueueSize bounds the frames buffered per connection.
	FrameQueueSize int `koanf:"frame_queue_size"`

	// MaxHistoryLimit caps GET /ai-practice/history?limit.
	MaxHistoryLimit int `koanf:"max_history_limit"`

	// ShutdownTimeoutMS bounds graceful shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`

	// Rules tunes the built-in pose rules. File only.
	Rules pose.Thresholds `koanf:"rules"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":8080",
		HistoryTimeoutMS:    10_000,
		MinSessionSeconds:   5,
		SpeakCooldownMS:     3_000,
		SpeakScoreThreshold: 70,
		SmoothingAlpha:      0.2,
		FrameQueueSize:      64,
		MaxHistoryLimit:     50,
		ShutdownTimeoutMS:   10_000,
		Rules:               pose.DefaultThresholds(),
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr must not be empty")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format must be text or json")
	case c.HistoryTimeoutMS <= 0:
		return invalid("history_timeout_ms must be positive")
	case c.MinSessionSeconds < 0:
		return invalid("min_session_seconds must not be negative")
	case c.SpeakCooldownMS <= 0:
		return invalid("speak_cooldown_ms must be positive")
	case c.SpeakScoreThreshold <= 0 || c.SpeakScoreThreshold > 100:
		return invalid("speak_score_threshold must be within 1..100")
	case c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1:
		return invalid("smoothing_alpha must be within (0, 1]")
	case c.FrameQueueSize <= 0:
		return invalid("frame_queue_size must be positive")
	case c.MaxHistoryLimit <= 0 || c.MaxHistoryLimit > 50:
		return invalid("max_history_limit must be within 1..50")
	case c.ShutdownTimeoutMS <= 0:
		return invalid("shutdown_timeout_ms must be positive")
	}
	return nil
}

// Origins splits AllowedOrigins.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// HistoryTimeout returns HistoryTimeoutMS as a duration.
func (c *Config) HistoryTimeout() time.Duration {
	return time.Duration(c.HistoryTimeoutMS) * time.Millisecond
}

// SpeakCooldown returns SpeakCooldownMS as a duration.
func (c *Config) SpeakCooldown() time.Duration {
	return time.Duration(c.SpeakCooldownMS) * time.Millisecond
}

// ShutdownTimeout returns ShutdownTimeoutMS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, reason)
}
