package simulate

import (
	"time"

	"github.com/okian/posture/internal/domain/model"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Pose       string        // Pose id; empty cycles through every listed pose
	Sessions   int           // Number of practice sessions to run
	Workers    int           // Number of concurrent connections
	Duration   time.Duration // How long each session streams frames
	FPS        int           // Frames per second per session
	FaultRatio float64       // Share of frames generated with form faults
	Jitter     float64       // Landmark noise applied to every frame
	Seed       int64         // Seed for fault and jitter selection
	Token      string        // Bearer token; empty runs anonymous sessions
	Timeout    time.Duration // HTTP and websocket handshake timeout
	SaveWait   time.Duration // How long to wait for a saved message after stop
	LogFile    string        // Log file for simulator output
	Verbose    bool          // Enable verbose logging
}

// Result is the outcome of one simulated session.
type Result struct {
	Pose        string
	FramesSent  int
	States      int
	Utterances  []string
	ErrorCodes  []string
	FinalScore  int
	Saved       *model.SessionRecord
	Elapsed     time.Duration
	Err         error
}

// Stats holds run statistics.
type Stats struct {
	SessionsRun    int
	SessionsFailed int
	SessionsSaved  int
	FramesSent     int
	StatesReceived int
	Utterances     int
	ErrorsReceived int
	AverageScore   float64
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}
