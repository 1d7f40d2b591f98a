// Package feedback decides when corrective text is worth speaking aloud.
package feedback

import (
	"context"
	"time"
)

// Default throttling configuration constants.
const (
	DefaultCooldown  = 3 * time.Second
	DefaultThreshold = 70
)

// Speaker renders text as audio. Implementations must not block the caller
// for long; speech is best effort.
type Speaker interface {
	Speak(ctx context.Context, text string)
}

// SpeakerFunc adapts a plain function to Speaker.
type SpeakerFunc func(ctx context.Context, text string)

// Speak calls f.
func (f SpeakerFunc) Speak(ctx context.Context, text string) { f(ctx, text) }

// ShouldSpeak reports whether the cooldown since last has strictly elapsed.
// A zero last means nothing was spoken yet.
func ShouldSpeak(last, now time.Time, cooldown time.Duration) bool {
	return last.IsZero() || now.Sub(last) > cooldown
}

// Option applies a configuration option to the Throttler.
type Option func(*Throttler)

// WithCooldown sets the minimum gap between utterances.
func WithCooldown(d time.Duration) Option {
	return func(t *Throttler) {
		if d >= 0 {
			t.cooldown = d
		}
	}
}

// WithThreshold sets the score at or above which nothing is spoken.
func WithThreshold(score int) Option {
	return func(t *Throttler) {
		if score > 0 {
			t.threshold = score
		}
	}
}

// Throttler gates speech on score and cooldown. It is not safe for
// concurrent use; the owner serializes calls.
type Throttler struct {
	cooldown  time.Duration
	threshold int
	last      time.Time
}

// NewThrottler creates a throttler with default settings.
func NewThrottler(opts ...Option) *Throttler {
	t := &Throttler{cooldown: DefaultCooldown, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Offer reports whether text should be spoken now for score. A true result
// records now as the last utterance.
func (t *Throttler) Offer(now time.Time, score int, text string) bool {
	if text == "" || score >= t.threshold {
		return false
	}
	if !ShouldSpeak(t.last, now, t.cooldown) {
		return false
	}
	t.last = now
	return true
}

// Threshold returns the score at or above which nothing is spoken.
func (t *Throttler) Threshold() int {
	return t.threshold
}

// Reset forgets the last utterance.
func (t *Throttler) Reset() {
	t.last = time.Time{}
}
