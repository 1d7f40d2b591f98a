package simulate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/posture/pkg/logger"
)

// Run executes the complete simulation and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting posture practice simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("pose", cfg.Pose),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("workers", cfg.Workers),
		logger.Duration("duration", cfg.Duration),
		logger.Int("fps", cfg.FPS),
		logger.Float64("faults", cfg.FaultRatio),
		logger.Bool("authenticated", cfg.Token != ""))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, cfg); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Resolve poses to practice
	poses, err := choosePoses(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pose lookup failed: %w", err)
	}

	// Step 3: Run sessions concurrently
	results := runSessions(ctx, cfg, poses)

	// Step 4: Verify results
	collect(results, stats)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if err := verifyResults(ctx, cfg, results); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}
	logger.Get().Info(ctx, "simulation completed successfully")
	return stats, nil
}

func choosePoses(ctx context.Context, cfg *Config) ([]string, error) {
	listed, err := fetchPoses(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Pose != "" {
		for _, p := range listed {
			if p.ID == cfg.Pose {
				return []string{cfg.Pose}, nil
			}
		}
		return nil, fmt.Errorf("%w: pose %q is not offered by the service", ErrInvalidConfig, cfg.Pose)
	}
	if len(listed) == 0 {
		return nil, fmt.Errorf("service offers no poses")
	}
	ids := make([]string, len(listed))
	for i, p := range listed {
		ids[i] = p.ID
	}
	return ids, nil
}

// runSessions assigns poses round robin and runs cfg.Sessions sessions on
// cfg.Workers connections at a time.
func runSessions(ctx context.Context, cfg *Config, poses []string) []Result {
	results := make([]Result, cfg.Sessions)
	jobs := make(chan int, cfg.Workers)
	var wg sync.WaitGroup

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = runSession(ctx, cfg, poses[i%len(poses)], cfg.Seed+int64(i))
				logger.Get().Debug(ctx, "session finished",
					logger.Int("session", i),
					logger.String("pose", results[i].Pose),
					logger.Int("frames", results[i].FramesSent))
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < cfg.Sessions; i++ {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	wg.Wait()
	return results
}

func collect(results []Result, stats *Stats) {
	var scored, total int
	for i := range results {
		r := &results[i]
		if r.Pose == "" {
			continue // never scheduled
		}
		stats.SessionsRun++
		if r.Err != nil {
			stats.SessionsFailed++
		}
		if r.Saved != nil {
			stats.SessionsSaved++
		}
		stats.FramesSent += r.FramesSent
		stats.StatesReceived += r.States
		stats.Utterances += len(r.Utterances)
		stats.ErrorsReceived += len(r.ErrorCodes)
		if r.Err == nil && r.FramesSent > 0 {
			total += r.FinalScore
			scored++
		}
	}
	if scored > 0 {
		stats.AverageScore = float64(total) / float64(scored)
	}
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, framesPerSecond float64
	if stats.SessionsRun > 0 {
		successRate = float64(stats.SessionsRun-stats.SessionsFailed) / float64(stats.SessionsRun) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		framesPerSecond = float64(stats.FramesSent) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("sessionsRun", stats.SessionsRun),
		logger.Int("sessionsFailed", stats.SessionsFailed),
		logger.Int("sessionsSaved", stats.SessionsSaved),
		logger.Int("framesSent", stats.FramesSent),
		logger.Int("statesReceived", stats.StatesReceived),
		logger.Int("utterances", stats.Utterances),
		logger.Int("errorsReceived", stats.ErrorsReceived),
		logger.Float64("averageScore", stats.AverageScore),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("framesPerSecond", framesPerSecond))
}
