package rooms

import (
	"log/slog"
	"time"
)

// Option configures an Executor or an Orchestrator.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions. Options that do not apply
// to the component being constructed are ignored.
type resolvedOptions struct {
	logger       *slog.Logger
	refresh      RefreshFunc
	pollInterval time.Duration
	pollDeadline time.Duration
	updateBuffer int
}

func resolveOptions(opts []Option) resolvedOptions {
	o := resolvedOptions{
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		pollDeadline: DefaultPollDeadline,
		updateBuffer: defaultUpdateBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the structured logger.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithRefresh sets the hook an Executor invokes after every execution
// attempt, whatever the outcome mix. Balances and slot statuses change
// server-side even on partial failure, so callers normally re-fetch the
// full market view here.
func WithRefresh(fn RefreshFunc) Option {
	return func(o *resolvedOptions) { o.refresh = fn }
}

// WithPollInterval overrides the delay an Orchestrator waits after each
// poll response before issuing the next poll (ROOMS_POLL_INTERVAL env var
// in the bundled binary).
func WithPollInterval(d time.Duration) Option {
	return func(o *resolvedOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithPollDeadline overrides the wall-clock budget, measured from
// submission, after which an Orchestrator abandons a job as timed out
// (ROOMS_POLL_DEADLINE env var in the bundled binary).
func WithPollDeadline(d time.Duration) Option {
	return func(o *resolvedOptions) {
		if d > 0 {
			o.pollDeadline = d
		}
	}
}

// WithUpdateBuffer overrides the capacity of a job handle's update channel.
// Updates are dropped, never blocked on, when a consumer lags.
func WithUpdateBuffer(n int) Option {
	return func(o *resolvedOptions) {
		if n > 0 {
			o.updateBuffer = n
		}
	}
}
