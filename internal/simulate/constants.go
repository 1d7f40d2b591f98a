package simulate

import "time"

// Defaults applied by Normalize.
const (
	DefaultBaseURL  = "http://localhost:8080"
	DefaultSessions = 1
	DefaultDuration = 12 * time.Second
	DefaultFPS      = 15
	DefaultTimeout  = 10 * time.Second
	DefaultSaveWait = 3 * time.Second

	PracticePath = "/practice/ws"
	HealthPath   = "/healthz"
	PosesPath    = "/poses"

	PercentageMultiplier = 100
)
