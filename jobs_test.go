package rooms

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJobService scripts the status endpoint: each poll consumes the next
// entry, and the last entry repeats forever.
type fakeJobService struct {
	mu        sync.Mutex
	script    []ServerJobStatus
	polls     int
	submitErr error

	respondDelay time.Duration
	inFlight     atomic.Int32
	maxInFlight  atomic.Int32
}

func (f *fakeJobService) SubmitGridSearch(ctx context.Context, req GridSearchRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "job-1", nil
}

func (f *fakeJobService) JobStatus(ctx context.Context, jobID string) (*ServerJobStatus, error) {
	n := f.inFlight.Add(1)
	if old := f.maxInFlight.Load(); n > old {
		f.maxInFlight.Store(n)
	}
	defer f.inFlight.Add(-1)

	if f.respondDelay > 0 {
		time.Sleep(f.respondDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	st := f.script[i]
	st.JobID = jobID
	return &st, nil
}

func (f *fakeJobService) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func running(progress float64) ServerJobStatus {
	return ServerJobStatus{Status: "running", Progress: progress}
}

func searchRequest() GridSearchRequest {
	return GridSearchRequest{
		TokenAmounts:     []float64{50, 100},
		TokenFrequencies: []int{1, 7},
		NumSeeds:         2,
	}
}

func waitTerminal(t *testing.T, h *JobHandle) JobState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := h.Wait(ctx)
	require.NoError(t, err, "job did not reach a terminal state in time")
	return state
}

func TestSubmitRejectsEmptyParameterLists(t *testing.T) {
	o := NewOrchestrator(&fakeJobService{})

	_, err := o.Submit(context.Background(), GridSearchRequest{TokenFrequencies: []int{1}})
	assert.ErrorIs(t, err, ErrNoParameters)

	_, err = o.Submit(context.Background(), GridSearchRequest{TokenAmounts: []float64{50}})
	assert.ErrorIs(t, err, ErrNoParameters)
}

func TestSubmitFailureStartsNoPolling(t *testing.T) {
	svc := &fakeJobService{submitErr: errors.New("boom")}
	o := NewOrchestrator(svc)

	_, err := o.Submit(context.Background(), searchRequest())
	require.Error(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, svc.pollCount())
}

func TestJobCompletes(t *testing.T) {
	result := &GridSearchResult{Best: &GridSearchCell{TokenAmount: 100, TokenFrequency: 7, StabilityScore: 0.9}}
	svc := &fakeJobService{script: []ServerJobStatus{
		running(0.25),
		running(0.75),
		{Status: "completed", Progress: 1.0, Result: result},
	}}
	o := NewOrchestrator(svc, WithPollInterval(5*time.Millisecond))

	h, err := o.Submit(context.Background(), searchRequest())
	require.NoError(t, err)
	assert.Equal(t, "job-1", h.JobID())

	assert.Equal(t, JobCompleted, waitTerminal(t, h))
	assert.NoError(t, h.Err())
	require.NotNil(t, h.Result())
	assert.Equal(t, 100.0, h.Result().Best.TokenAmount)
	assert.Equal(t, 1.0, h.Progress())
}

func TestJobFailureCarriesServerError(t *testing.T) {
	svc := &fakeJobService{script: []ServerJobStatus{
		running(0.5),
		{Status: "failed", Progress: 0.5, Error: "simulation blew up"},
	}}
	o := NewOrchestrator(svc, WithPollInterval(5*time.Millisecond))

	h, err := o.Submit(context.Background(), searchRequest())
	require.NoError(t, err)

	assert.Equal(t, JobFailed, waitTerminal(t, h))
	require.Error(t, h.Err())
	assert.Contains(t, h.Err().Error(), "simulation blew up")
	assert.Nil(t, h.Result())
}

// transportFailingService fails every poll at the transport level.
type transportFailingService struct {
	fakeJobService
}

func (s *transportFailingService) JobStatus(ctx context.Context, jobID string) (*ServerJobStatus, error) {
	s.mu.Lock()
	s.polls++
	s.mu.Unlock()
	return nil, errors.New("connection refused")
}

func TestTransportErrorIsTerminal(t *testing.T) {
	svc := &transportFailingService{}
	o := NewOrchestrator(svc, WithPollInterval(5*time.Millisecond))

	h, err := o.Submit(context.Background(), searchRequest())
	require.NoError(t, err)

	assert.Equal(t, JobFailed, waitTerminal(t, h))
	require.Error(t, h.Err())

	// No retry on transport errors: exactly one poll was issued.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, svc.pollCount())
}

func TestJobTimesOutAndStopsPolling(t *testing.T) {
	svc := &fakeJobService{script: []ServerJobStatus{running(0.1)}}
	o := NewOrchestrator(svc,
		WithPollInterval(5*time.Millisecond),
		WithPollDeadline(60*time.Millisecond))

	h, err := o.Submit(context.Background(), searchRequest())
	require.NoError(t, err)

	assert.Equal(t, JobTimedOut, waitTerminal(t, h))
	require.Error(t, h.Err())
	assert.NotEqual(t, JobFailed, h.State(), "timeout is distinct from failure")

	// Once timed out, no further polls are issued.
	after := svc.pollCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, svc.pollCount())
}

func TestCancelStopsPolling(t *testing.T) {
	svc := &fakeJobService{script: []ServerJobStatus{running(0.1)}}
	o := NewOrchestrator(svc, WithPollInterval(5*time.Millisecond))

	h, err := o.Submit(context.Background(), searchRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return svc.pollCount() > 0 },
		time.Second, time.Millisecond)
	h.Cancel()

	assert.Equal(t, JobCancelled, waitTerminal(t, h))

	after := svc.pollCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, svc.pollCount())

	// Cancel is idempotent, including after the terminal state.
	h.Cancel()
	assert.Equal(t, JobCancelled, h.State())
}

func TestParentContextTeardownBehavesLikeCancel(t *testing.T) {
	svc := &fakeJobService{script: []ServerJobStatus{running(0.1)}}
	o := NewOrchestrator(svc, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	h, err := o.Submit(ctx, searchRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return svc.pollCount() > 0 },
		time.Second, time.Millisecond)
	cancel()

	assert.Equal(t, JobCancelled, waitTerminal(t, h))
}

func TestPollingIsSingleFlight(t *testing.T) {
	svc := &fakeJobService{
		script:       []ServerJobStatus{running(0.1)},
		respondDelay: 10 * time.Millisecond,
	}
	// An interval far below the response time would pile up requests if
	// the delay were not armed strictly after each response.
	o := NewOrchestrator(svc, WithPollInterval(time.Millisecond))

	h, err := o.Submit(context.Background(), searchRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return svc.pollCount() >= 5 },
		5*time.Second, time.Millisecond)
	h.Cancel()
	waitTerminal(t, h)

	assert.Equal(t, int32(1), svc.maxInFlight.Load())
}

func TestNewSubmissionCancelsPriorJob(t *testing.T) {
	svc := &fakeJobService{script: []ServerJobStatus{running(0.1)}}
	o := NewOrchestrator(svc, WithPollInterval(5*time.Millisecond))

	first, err := o.Submit(context.Background(), searchRequest())
	require.NoError(t, err)

	second, err := o.Submit(context.Background(), searchRequest())
	require.NoError(t, err)

	assert.Equal(t, JobCancelled, waitTerminal(t, first))
	assert.Equal(t, JobPolling, second.State())
	second.Cancel()
	waitTerminal(t, second)
}

func TestUpdatesStreamDeliversProgressAndCloses(t *testing.T) {
	svc := &fakeJobService{script: []ServerJobStatus{
		running(0.25),
		running(0.5),
		{Status: "completed", Progress: 1.0, Result: &GridSearchResult{}},
	}}
	o := NewOrchestrator(svc, WithPollInterval(5*time.Millisecond))

	h, err := o.Submit(context.Background(), searchRequest())
	require.NoError(t, err)

	var updates []JobUpdate
	for u := range h.Updates() {
		updates = append(updates, u)
	}

	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, JobCompleted, last.State)
	assert.Equal(t, 1.0, last.Progress)
	for _, u := range updates[:len(updates)-1] {
		assert.Equal(t, JobPolling, u.State)
	}
}
