package auth

import (
	"log/slog"
	"time"
)

// Config holds the engine's tunables. The durations are policy knobs, not
// correctness properties; tests shorten them aggressively.
type Config struct {
	// SnapshotTTL is how long an offline snapshot remains usable for
	// cached authentication.
	SnapshotTTL time.Duration
	// CheckInterval is the cadence of the scheduler's expiry check.
	CheckInterval time.Duration
	// RefreshThreshold is the remaining session life below which the
	// scheduler attempts a silent token refresh.
	RefreshThreshold time.Duration
	// MaxReplayAttempts is the retry budget per pending action before it
	// is surfaced as permanently failed.
	MaxReplayAttempts int
	// RequestTimeout bounds every remote call the engine makes.
	RequestTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SnapshotTTL:       24 * time.Hour,
		CheckInterval:     60 * time.Second,
		RefreshThreshold:  10 * time.Minute,
		MaxReplayAttempts: 3,
		RequestTimeout:    10 * time.Second,
	}
}

// Option configures the Engine.
type Option func(*Engine)

// WithConfig replaces the default Config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLogger sets the structured logger. If not set, a JSON logger
// writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.log = logger
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}
