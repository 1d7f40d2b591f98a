package simulate

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/okian/posture/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// ErrInvalidConfig is returned for unusable flag values.
var ErrInvalidConfig = errors.New("invalid simulator config")

// SetupLogging initializes the global logger writing to stdout, and to
// logFile as well when it is set.
func SetupLogging(logFile string, verbose bool) error {
	var out io.Writer = os.Stdout
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
	}
	if err := logger.Init(logger.WithWriter(out)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	if logFile != "" {
		logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	}
	return nil
}

// ParseFlags parses simulator flags. help is true when -help was given.
func ParseFlags(args []string, output io.Writer) (cfg *Config, help bool, err error) {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.SetOutput(output)

	cfg = &Config{}
	fs.StringVar(&cfg.BaseURL, "url", DefaultBaseURL, "Base URL of the service")
	fs.StringVar(&cfg.Pose, "pose", "", "Pose id to practice (default: cycle through all poses)")
	fs.IntVar(&cfg.Sessions, "sessions", DefaultSessions, "Number of practice sessions")
	fs.IntVar(&cfg.Workers, "workers", runtime.NumCPU(), "Number of concurrent connections")
	fs.DurationVar(&cfg.Duration, "duration", DefaultDuration, "How long each session streams frames")
	fs.IntVar(&cfg.FPS, "fps", DefaultFPS, "Frames per second per session")
	fs.Float64Var(&cfg.FaultRatio, "faults", 0.3, "Share of frames with form faults (0..1)")
	fs.Float64Var(&cfg.Jitter, "jitter", 0.003, "Landmark noise per frame")
	fs.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "Random seed")
	fs.StringVar(&cfg.Token, "token", "", "Bearer token for saved sessions")
	fs.DurationVar(&cfg.Timeout, "timeout", DefaultTimeout, "HTTP and handshake timeout")
	fs.DurationVar(&cfg.SaveWait, "save-wait", DefaultSaveWait, "How long to wait for the saved message")
	fs.StringVar(&cfg.LogFile, "log", "", "Log file for simulator output")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&help, "help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if help {
		return cfg, true, nil
	}
	if err := cfg.Normalize(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// Normalize fills zero values with defaults and rejects out-of-range ones.
func (c *Config) Normalize() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		c.BaseURL = "http://" + c.BaseURL
	}
	if c.Sessions <= 0 {
		c.Sessions = DefaultSessions
	}
	if c.Workers <= 0 || c.Workers > c.Sessions {
		c.Workers = c.Sessions
	}
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SaveWait <= 0 {
		c.SaveWait = DefaultSaveWait
	}
	if c.FaultRatio < 0 || c.FaultRatio > 1 {
		return fmt.Errorf("%w: faults must be within 0..1, got %v", ErrInvalidConfig, c.FaultRatio)
	}
	if c.Jitter < 0 {
		return fmt.Errorf("%w: jitter must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `Posture Practice Simulator
==========================

Streams synthetic pose landmarks to a running posture service over the
practice websocket and reports the scores and spoken feedback it receives.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -pose string
        Pose id to practice: mountain, tree, warrior2 (default: all, round robin)
  -sessions int
        Number of practice sessions (default 1)
  -workers int
        Number of concurrent connections (default: number of CPUs)
  -duration duration
        How long each session streams frames (default 12s)
  -fps int
        Frames per second per session (default 15)
  -faults float
        Share of frames generated with form faults (default 0.3)
  -jitter float
        Landmark noise per frame (default 0.003)
  -seed int
        Random seed (default: current time)
  -token string
        Bearer token; sessions are only saved for authenticated users
  -timeout duration
        HTTP and handshake timeout (default 10s)
  -save-wait duration
        How long to wait for the saved message after stop (default 3s)
  -log string
        Also write output to this file
  -verbose
        Enable verbose logging
  -help
        Show this help

Examples:
  go run ./cmd/simulate -pose tree -duration 15s
  go run ./cmd/simulate -sessions 20 -workers 5 -token "$TOKEN"
`)
}
