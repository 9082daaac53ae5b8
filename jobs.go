package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/BntM/market-for-rooms/internal/telemetry"
)

// Default polling parameters for grid search jobs.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollDeadline = 300 * time.Second

	defaultUpdateBuffer = 16
)

// JobState is the client-side lifecycle state of a submitted job.
type JobState string

const (
	JobPolling   JobState = "polling"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobTimedOut  JobState = "timed_out"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether no further transitions can occur.
func (s JobState) Terminal() bool {
	return s != JobPolling
}

// JobUpdate is one observation of a job's progress, delivered on the
// handle's update channel.
type JobUpdate struct {
	State    JobState
	Progress float64
}

// JobService submits and polls grid search jobs. *Client satisfies it.
type JobService interface {
	SubmitGridSearch(ctx context.Context, req GridSearchRequest) (string, error)
	JobStatus(ctx context.Context, jobID string) (*ServerJobStatus, error)
}

// errPollDeadline is the cancellation cause distinguishing the client-side
// deadline from an explicit Cancel.
var errPollDeadline = errors.New("rooms: poll deadline exceeded")

// Orchestrator drives grid search jobs to a terminal state. At most one job
// is polled per instance; submitting a new job cancels the previous
// handle's poll loop first.
type Orchestrator struct {
	svc      JobService
	logger   *slog.Logger
	interval time.Duration
	deadline time.Duration
	bufSize  int
	polls    metric.Int64Counter

	mu      sync.Mutex
	current *JobHandle
}

// NewOrchestrator returns an Orchestrator that submits and polls through
// svc, with the 500 ms interval and 300 s deadline defaults unless
// overridden.
func NewOrchestrator(svc JobService, opts ...Option) *Orchestrator {
	o := resolveOptions(opts)

	meter := telemetry.Meter("rooms.jobs")
	polls, err := meter.Int64Counter("rooms.job_polls",
		metric.WithDescription("Status poll requests issued for search jobs"))
	if err != nil {
		o.logger.Warn("jobs: create polls counter", "error", err)
	}

	return &Orchestrator{
		svc:      svc,
		logger:   o.logger,
		interval: o.pollInterval,
		deadline: o.pollDeadline,
		bufSize:  o.updateBuffer,
		polls:    polls,
	}
}

// Submit starts a grid search and begins polling it. A submission error is
// returned directly and starts no poll loop. The handle's poll loop is
// bound to ctx: tearing down the surrounding session cancels polling
// exactly as JobHandle.Cancel does.
func (o *Orchestrator) Submit(ctx context.Context, req GridSearchRequest) (*JobHandle, error) {
	if len(req.TokenAmounts) == 0 || len(req.TokenFrequencies) == 0 {
		return nil, ErrNoParameters
	}

	// Two live loops would race to mutate shared progress state.
	o.mu.Lock()
	if o.current != nil {
		o.current.Cancel()
	}
	o.mu.Unlock()

	jobID, err := o.svc.SubmitGridSearch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("rooms: submit grid search: %w", err)
	}

	hctx, cancel := context.WithTimeoutCause(ctx, o.deadline, errPollDeadline)
	h := &JobHandle{
		jobID:   jobID,
		svc:     o.svc,
		logger:  o.logger,
		polls:   o.polls,
		cancel:  cancel,
		state:   JobPolling,
		updates: make(chan JobUpdate, o.bufSize),
		done:    make(chan struct{}),
	}

	o.mu.Lock()
	o.current = h
	o.mu.Unlock()

	o.logger.Info("jobs: grid search submitted", "job_id", jobID)
	go h.run(hctx, o.interval)
	return h, nil
}

// JobHandle is the owned, scoped handle to one submitted job. All methods
// are safe for concurrent use.
type JobHandle struct {
	jobID  string
	svc    JobService
	logger *slog.Logger
	polls  metric.Int64Counter
	cancel context.CancelFunc

	mu       sync.Mutex
	state    JobState
	progress float64
	result   *GridSearchResult
	err      error

	updates chan JobUpdate
	done    chan struct{}
}

// JobID returns the server-assigned job identifier.
func (h *JobHandle) JobID() string {
	return h.jobID
}

// State returns the current client-side state.
func (h *JobHandle) State() JobState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Progress returns the last server-reported progress ratio in [0, 1].
func (h *JobHandle) Progress() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

// Result returns the search result, non-nil only in JobCompleted.
func (h *JobHandle) Result() *GridSearchResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Err returns the terminal error: the server's failure message or the
// transport error in JobFailed, context causes in JobTimedOut and
// JobCancelled, nil otherwise.
func (h *JobHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Updates returns the progress stream. It delivers one update per observed
// poll plus a final one for the terminal state, then closes. Slow consumers
// lose intermediate updates rather than stalling the poll loop.
func (h *JobHandle) Updates() <-chan JobUpdate {
	return h.updates
}

// Done is closed once the handle reaches a terminal state.
func (h *JobHandle) Done() <-chan struct{} {
	return h.done
}

// Cancel stops future polling immediately. It has no effect on the
// server-side job and is safe to call repeatedly or after a terminal
// state. An in-flight poll is abandoned and its late response discarded.
func (h *JobHandle) Cancel() {
	h.cancel()
}

// Wait blocks until the handle is terminal or ctx is done, returning the
// terminal state.
func (h *JobHandle) Wait(ctx context.Context) (JobState, error) {
	select {
	case <-ctx.Done():
		return h.State(), ctx.Err()
	case <-h.done:
		return h.State(), nil
	}
}

// run is the single poll loop for this handle. Exactly one poll request is
// in flight at a time; the inter-poll delay is armed only after a response
// arrives, so slow networks never cause request pile-up.
func (h *JobHandle) run(ctx context.Context, interval time.Duration) {
	defer h.cancel()

	delay := time.NewTimer(interval)
	delay.Stop()
	defer delay.Stop()

	for {
		if h.polls != nil {
			h.polls.Add(ctx, 1)
		}
		status, err := h.svc.JobStatus(ctx, h.jobID)

		// A cancel or deadline that raced the poll wins over whatever
		// the response says.
		if ctx.Err() != nil {
			h.finishFromContext(ctx)
			return
		}
		if err != nil {
			h.finish(JobFailed, nil, err)
			return
		}

		h.observe(status.Progress)

		switch status.Status {
		case jobStatusCompleted:
			h.finish(JobCompleted, status.Result, nil)
			return
		case jobStatusFailed:
			h.finish(JobFailed, nil, fmt.Errorf("rooms: job failed: %s", status.Error))
			return
		}

		delay.Reset(interval)
		select {
		case <-ctx.Done():
			h.finishFromContext(ctx)
			return
		case <-delay.C:
		}
	}
}

// observe records a non-terminal poll and emits an update.
func (h *JobHandle) observe(progress float64) {
	h.mu.Lock()
	h.progress = progress
	h.mu.Unlock()
	h.emit(JobUpdate{State: JobPolling, Progress: progress})
}

func (h *JobHandle) finishFromContext(ctx context.Context) {
	if errors.Is(context.Cause(ctx), errPollDeadline) {
		h.finish(JobTimedOut, nil, errPollDeadline)
		return
	}
	h.finish(JobCancelled, nil, context.Cause(ctx))
}

// finish transitions to a terminal state exactly once, emits the final
// update, and closes the stream. Only the run goroutine calls it.
func (h *JobHandle) finish(state JobState, result *GridSearchResult, err error) {
	h.mu.Lock()
	h.state = state
	h.result = result
	h.err = err
	progress := h.progress
	h.mu.Unlock()

	h.logger.Info("jobs: grid search finished",
		"job_id", h.jobID,
		"state", string(state),
		"progress", progress)

	h.emit(JobUpdate{State: state, Progress: progress})
	close(h.updates)
	close(h.done)
}

// emit delivers an update without ever blocking the poll loop.
func (h *JobHandle) emit(u JobUpdate) {
	select {
	case h.updates <- u:
	default:
	}
}
