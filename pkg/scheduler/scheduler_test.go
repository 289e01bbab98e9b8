package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockHandler struct {
	mock.Mock
	mu  sync.Mutex
	ran []Request
}

func (m *mockHandler) Handle(_ context.Context, req Request) error {
	m.mu.Lock()
	m.ran = append(m.ran, req)
	m.mu.Unlock()
	args := m.Called(req)
	return args.Error(0)
}

func (m *mockHandler) order() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.ran...)
}

func fastConfig() Config {
	return Config{
		BusyInterval:  time.Millisecond,
		IdleInterval:  time.Millisecond,
		ErrorInterval: time.Millisecond,
	}
}

func TestPriorityOrder(t *testing.T) {
	h := &mockHandler{}
	h.On("Handle", mock.Anything).Return(nil)

	s := New(h, fastConfig())
	s.Enqueue(
		BuildCourseReport{CourseID: 1},
		ProcessSubmission{SubmissionID: 2},
		BuildSubmissionReport{SubmissionID: 2},
		ProcessCourseBaseRepo{CourseID: 1},
		ProcessSubmission{SubmissionID: 1},
	)
	require.NoError(t, s.RunUntilIdle(context.Background()))

	assert.Equal(t, []Request{
		ProcessCourseBaseRepo{CourseID: 1},
		ProcessSubmission{SubmissionID: 2},
		ProcessSubmission{SubmissionID: 1},
		BuildSubmissionReport{SubmissionID: 2},
		BuildCourseReport{CourseID: 1},
	}, h.order())
	assert.Equal(t, 5, s.Stats().Succeeded)
}

func TestRetryConvergence(t *testing.T) {
	const pending = 3
	req := ProcessSubmission{SubmissionID: 7}

	h := &mockHandler{}
	h.On("Handle", req).Return(ErrNotReady).Times(pending)
	h.On("Handle", req).Return(nil).Once()

	s := New(h, fastConfig())
	s.Enqueue(req)

	var outcomes []Outcome
	for range pending + 1 {
		outcomes = append(outcomes, s.Step(context.Background()))
	}

	assert.Equal(t, []Outcome{Retried, Retried, Retried, Succeeded}, outcomes)
	assert.Equal(t, Idle, s.Step(context.Background()))
	assert.Equal(t, pending, s.Stats().Retried)
	h.AssertExpectations(t)
}

func TestBackoffHoldsLaterPriorities(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	sub := ProcessSubmission{SubmissionID: 1}
	report := BuildCourseReport{CourseID: 1}

	h := &mockHandler{}
	h.On("Handle", sub).Return(ErrNotReady).Once()
	h.On("Handle", sub).Return(nil).Once()
	h.On("Handle", report).Return(nil).Once()

	cfg := fastConfig()
	cfg.BackoffBase = time.Second
	s := New(h, cfg, WithClock(clock))
	s.Enqueue(sub, report)

	ctx := context.Background()
	assert.Equal(t, Retried, s.Step(ctx))
	assert.Equal(t, Waiting, s.Step(ctx), "report must wait for the backing-off submission")

	pending := s.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, sub.String(), pending[0].Request)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, now.Add(time.Second), pending[0].NotBefore)

	now = now.Add(time.Second)
	assert.Equal(t, Succeeded, s.Step(ctx))
	assert.Equal(t, Succeeded, s.Step(ctx))
	assert.Equal(t, []Request{sub, sub, report}, h.order())
	h.AssertExpectations(t)
}

func TestTransientFailureReenqueued(t *testing.T) {
	req := ProcessCourseBaseRepo{CourseID: 3}
	calls := 0
	s := New(HandlerFunc(func(context.Context, Request) error {
		calls++
		switch calls {
		case 1:
			panic("boom")
		case 2:
			return errors.New("storage unreachable")
		}
		return nil
	}), fastConfig())
	s.Enqueue(req)

	ctx := context.Background()
	assert.Equal(t, Errored, s.Step(ctx))
	assert.Equal(t, 1, s.Len())
	assert.Contains(t, s.Pending()[0].LastError, "boom")

	assert.Equal(t, Errored, s.Step(ctx))
	assert.Equal(t, Succeeded, s.Step(ctx))
	assert.Equal(t, 2, s.Stats().Errored)
}

func TestMaxAttempts(t *testing.T) {
	h := &mockHandler{}
	h.On("Handle", mock.Anything).Return(ErrNotReady)

	cfg := fastConfig()
	cfg.MaxAttempts = 2
	var observed []Outcome
	s := New(h, cfg, WithObserver(func(_ Request, o Outcome, _ int) {
		observed = append(observed, o)
	}))
	s.Enqueue(ProcessSubmission{SubmissionID: 1})

	require.NoError(t, s.RunUntilIdle(context.Background()))
	assert.Equal(t, []Outcome{Retried, Failed}, observed)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 1, s.Stats().Failed)
}

func TestBackoff(t *testing.T) {
	s := New(nil, Config{BackoffBase: 100 * time.Millisecond, BackoffMax: time.Second})

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{64, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.backoff(tt.attempts), "attempts=%d", tt.attempts)
	}

	assert.Zero(t, New(nil, Config{}).backoff(3))
}

func TestBackoffWithoutMax(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		attempts int
		want     time.Duration
	}{
		{"capped by error interval", Config{BackoffBase: 100 * time.Millisecond, ErrorInterval: 5 * time.Second}, 30, 5 * time.Second},
		{"no overflow", Config{BackoffBase: 100 * time.Millisecond, ErrorInterval: 5 * time.Second}, 57, 5 * time.Second},
		{"below the ceiling", Config{BackoffBase: 100 * time.Millisecond, ErrorInterval: 5 * time.Second}, 3, 400 * time.Millisecond},
		{"default ceiling", Config{BackoffBase: 100 * time.Millisecond}, 1000, defaultBackoffMax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(nil, tt.cfg).backoff(tt.attempts)
			assert.Equal(t, tt.want, got)
			assert.Positive(t, got)
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	done := make(chan struct{})
	s := New(HandlerFunc(func(context.Context, Request) error {
		close(done)
		return nil
	}), fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	s.Enqueue(BuildCourseReport{CourseID: 1})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("request was not run")
	}
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

// timedHandler records when each request ran and returns the queued errors
// in order, nil once they are used up.
type timedHandler struct {
	mu   sync.Mutex
	errs []error
	at   []time.Time
	ran  chan struct{}
}

func newTimedHandler(errs ...error) *timedHandler {
	return &timedHandler{errs: errs, ran: make(chan struct{}, 16)}
}

func (h *timedHandler) Handle(context.Context, Request) error {
	h.mu.Lock()
	h.at = append(h.at, time.Now())
	var err error
	if len(h.errs) > 0 {
		err, h.errs = h.errs[0], h.errs[1:]
	}
	h.mu.Unlock()
	h.ran <- struct{}{}
	return err
}

func (h *timedHandler) wait(t *testing.T, n int) []time.Time {
	t.Helper()
	for range n {
		select {
		case <-h.ran:
		case <-time.After(5 * time.Second):
			t.Fatalf("expected %d runs", n)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Time(nil), h.at...)
}

func runInBackground(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestRunStartDelay(t *testing.T) {
	h := newTimedHandler()
	cfg := fastConfig()
	cfg.StartDelay = 200 * time.Millisecond
	s := New(h, cfg)
	s.Enqueue(BuildCourseReport{CourseID: 1})

	start := time.Now()
	runInBackground(t, s)
	at := h.wait(t, 1)
	assert.GreaterOrEqual(t, at[0].Sub(start), cfg.StartDelay)
}

func TestRunBusyInterval(t *testing.T) {
	h := newTimedHandler()
	cfg := fastConfig()
	cfg.BusyInterval = 200 * time.Millisecond
	s := New(h, cfg)
	s.Enqueue(ProcessSubmission{SubmissionID: 1}, ProcessSubmission{SubmissionID: 2})

	runInBackground(t, s)
	at := h.wait(t, 2)
	assert.GreaterOrEqual(t, at[1].Sub(at[0]), cfg.BusyInterval)
}

func TestRunErrorInterval(t *testing.T) {
	h := newTimedHandler(errors.New("connection reset"))
	cfg := fastConfig()
	cfg.ErrorInterval = 300 * time.Millisecond
	s := New(h, cfg)
	s.Enqueue(ProcessCourseBaseRepo{CourseID: 1})

	runInBackground(t, s)
	at := h.wait(t, 2)
	assert.GreaterOrEqual(t, at[1].Sub(at[0]), cfg.ErrorInterval)
}

func TestRunNotReadyUsesBusyInterval(t *testing.T) {
	h := newTimedHandler(ErrNotReady)
	cfg := fastConfig()
	cfg.ErrorInterval = time.Hour
	s := New(h, cfg)
	s.Enqueue(ProcessSubmission{SubmissionID: 1})

	runInBackground(t, s)
	at := h.wait(t, 2)
	assert.Less(t, at[1].Sub(at[0]), time.Second)
}

func TestRunWaitsOutBackoffNotIdleInterval(t *testing.T) {
	h := newTimedHandler(ErrNotReady)
	cfg := fastConfig()
	cfg.IdleInterval = time.Hour
	cfg.BackoffBase = 150 * time.Millisecond
	cfg.BackoffMax = time.Second
	s := New(h, cfg)
	s.Enqueue(ProcessSubmission{SubmissionID: 1})

	runInBackground(t, s)
	at := h.wait(t, 2)
	gap := at[1].Sub(at[0])
	assert.GreaterOrEqual(t, gap, cfg.BackoffBase)
	assert.Less(t, gap, 5*time.Second)
}

func TestRunPollsAtIdleInterval(t *testing.T) {
	var polls atomic.Int64
	clock := func() time.Time {
		polls.Add(1)
		return time.Now()
	}
	h := newTimedHandler(ErrNotReady)
	cfg := fastConfig()
	cfg.IdleInterval = 100 * time.Millisecond
	cfg.BackoffBase = time.Hour
	cfg.BackoffMax = 2 * time.Hour
	s := New(h, cfg, WithClock(clock))
	s.Enqueue(ProcessSubmission{SubmissionID: 1})

	runInBackground(t, s)
	h.wait(t, 1)
	before := polls.Load()
	time.Sleep(550 * time.Millisecond)
	polled := polls.Load() - before

	assert.GreaterOrEqual(t, polled, int64(2), "loop must keep polling the backing-off request")
	assert.Less(t, polled, int64(40), "loop must sleep IdleInterval between polls")
}

func TestEnqueueWakesIdleLoop(t *testing.T) {
	h := newTimedHandler()
	cfg := fastConfig()
	cfg.IdleInterval = time.Hour
	s := New(h, cfg)
	s.Enqueue(ProcessCourseBaseRepo{CourseID: 1})

	runInBackground(t, s)
	h.wait(t, 1)
	// Let the loop settle into its idle sleep.
	time.Sleep(50 * time.Millisecond)

	s.Enqueue(BuildCourseReport{CourseID: 1})
	at := h.wait(t, 2)
	assert.Less(t, at[1].Sub(at[0]), 5*time.Second)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "retried", Retried.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
}
