package simulate

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/posture/pkg/logger"
)

// ErrVerification reports sessions that did not behave as expected.
var ErrVerification = errors.New("simulation verification failed")

// verifyResults checks every session streamed frames and received scores,
// that scores stay within 0..100 and that saved records match the pose.
func verifyResults(ctx context.Context, cfg *Config, results []Result) error {
	logger.Get().Info(ctx, "verifying results", logger.Int("sessions", len(results)))

	var failures []error
	for i := range results {
		r := &results[i]
		if r.Pose == "" {
			continue
		}
		if r.Err != nil {
			failures = append(failures, fmt.Errorf("session %d (%s): %w", i, r.Pose, r.Err))
			continue
		}
		if r.FramesSent > 0 && r.States == 0 {
			failures = append(failures, fmt.Errorf("session %d (%s): no state updates for %d frames", i, r.Pose, r.FramesSent))
		}
		if r.FinalScore < 0 || r.FinalScore > 100 {
			failures = append(failures, fmt.Errorf("session %d (%s): score %d out of range", i, r.Pose, r.FinalScore))
		}
		if r.Saved != nil && cfg.Token == "" {
			failures = append(failures, fmt.Errorf("session %d (%s): anonymous session was saved", i, r.Pose))
		}
		if r.Saved != nil && r.Saved.AccuracyScore != r.FinalScore {
			logger.Get().Debug(ctx, "saved score differs from last state",
				logger.Int("saved", r.Saved.AccuracyScore), logger.Int("last", r.FinalScore))
		}
	}

	if len(failures) > 0 {
		for _, f := range failures {
			logger.Get().Error(ctx, "verification failure", logger.Error(f))
		}
		return fmt.Errorf("%w: %w", ErrVerification, errors.Join(failures...))
	}
	logger.Get().Info(ctx, "all sessions verified")
	return nil
}
