// Package scheduler drains clone-check requests one at a time in priority
// order, retrying requests whose upstream data is not ready yet.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrNotReady is returned by a Handler when upstream data is not available
// yet. The request is re-enqueued.
var ErrNotReady = errors.New("not ready")

// Handler executes requests.
type Handler interface {
	Handle(ctx context.Context, req Request) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req Request) error { return f(ctx, req) }

// Config holds the drain loop timings and the retry policy.
type Config struct {
	StartDelay    time.Duration `koanf:"start_delay"`
	BusyInterval  time.Duration `koanf:"busy_interval"`
	IdleInterval  time.Duration `koanf:"idle_interval"`
	ErrorInterval time.Duration `koanf:"error_interval"`
	// MaxAttempts makes a request fail for good after that many unsuccessful
	// runs. Zero retries forever.
	MaxAttempts int           `koanf:"max_attempts"`
	BackoffBase time.Duration `koanf:"backoff_base"`
	BackoffMax  time.Duration `koanf:"backoff_max"`
}

const defaultBackoffMax = 30 * time.Second

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{
		StartDelay:    5 * time.Second,
		BusyInterval:  100 * time.Millisecond,
		IdleInterval:  5 * time.Second,
		ErrorInterval: 5 * time.Second,
		MaxAttempts:   0,
		BackoffBase:   100 * time.Millisecond,
		BackoffMax:    defaultBackoffMax,
	}
}

// Outcome is the result of one Step.
type Outcome int

const (
	// Idle means the queue was empty.
	Idle Outcome = iota
	// Waiting means the next request is backing off.
	Waiting
	// Succeeded means a request ran and completed.
	Succeeded
	// Retried means a request was not ready and was re-enqueued.
	Retried
	// Errored means a request failed unexpectedly and was re-enqueued.
	Errored
	// Failed means a request exhausted its attempts and was dropped.
	Failed
)

var outcomeNames = [...]string{"idle", "waiting", "succeeded", "retried", "errored", "failed"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// TaskInfo describes a queued request.
type TaskInfo struct {
	Request   string    `json:"request"`
	Priority  int       `json:"priority"`
	Attempts  int       `json:"attempts"`
	NotBefore time.Time `json:"not_before,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Stats counts settled runs.
type Stats struct {
	Queued    int `json:"queued"`
	Succeeded int `json:"succeeded"`
	Retried   int `json:"retried"`
	Errored   int `json:"errored"`
	Failed    int `json:"failed"`
}

// Observer is notified after every executed request.
type Observer func(req Request, outcome Outcome, queued int)

// Scheduler is a priority work queue with a retrying drain loop.
// Requests run one at a time.
type Scheduler struct {
	handler  Handler
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	observer Observer

	mu    sync.Mutex
	q     queue
	seq   uint64
	stats Stats
	wake  chan struct{}
}

// Option is a functional option for configuring Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithObserver installs a callback run after every executed request.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// New creates a scheduler dispatching to h.
func New(h Handler, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		handler: h,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue adds requests to the queue. They are eligible immediately.
func (s *Scheduler) Enqueue(reqs ...Request) {
	s.mu.Lock()
	for _, r := range reqs {
		s.seq++
		s.q.push(&task{req: r, seq: s.seq})
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued requests.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}

// Pending lists the queued requests in run order.
func (s *Scheduler) Pending() []TaskInfo {
	s.mu.Lock()
	tasks := make([]*task, len(s.q))
	copy(tasks, s.q)
	s.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool { return queue(tasks).Less(i, j) })
	out := make([]TaskInfo, len(tasks))
	for i, t := range tasks {
		out[i] = TaskInfo{
			Request:   t.req.String(),
			Priority:  t.req.Priority(),
			Attempts:  t.attempts,
			NotBefore: t.notBefore,
			LastError: t.lastError,
		}
	}
	return out
}

// Stats returns run counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Queued = s.q.Len()
	return st
}

// next pops the head of the queue if it is due. Only requests of the most
// urgent priority present are considered, so a backing-off request holds
// back every request of a later priority.
func (s *Scheduler) next() (*task, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	head := s.q.peek()
	if head == nil {
		return nil, Idle
	}
	if head.notBefore.After(s.now()) {
		return nil, Waiting
	}
	if n := s.q.Len(); n%10 == 1 {
		s.logger.Debug(fmt.Sprintf("%d klone requests left", n))
	}
	return s.q.pop(), Succeeded
}

// headWait returns how long the head of the queue has left to back off.
func (s *Scheduler) headWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	head := s.q.peek()
	if head == nil {
		return 0
	}
	return head.notBefore.Sub(s.now())
}

// Step runs at most one due request and reports what happened.
func (s *Scheduler) Step(ctx context.Context) Outcome {
	t, outcome := s.next()
	if t == nil {
		return outcome
	}

	err := s.run(ctx, t.req)
	outcome = s.settle(t, err)
	if s.observer != nil {
		s.observer(t.req, outcome, s.Len())
	}
	return outcome
}

// run calls the handler, turning a panic into an error.
func (s *Scheduler) run(ctx context.Context, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.handler.Handle(ctx, req)
}

func (s *Scheduler) settle(t *task, err error) Outcome {
	log := s.logger.With("request", t.req.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.stats.Succeeded++
		log.Debug("request done", "attempts", t.attempts+1)
		return Succeeded
	}

	t.attempts++
	t.lastError = err.Error()
	notReady := errors.Is(err, ErrNotReady)

	if s.cfg.MaxAttempts > 0 && t.attempts >= s.cfg.MaxAttempts {
		s.stats.Failed++
		log.Error("request failed permanently", "attempts", t.attempts, "error", err)
		return Failed
	}

	t.notBefore = s.now().Add(s.backoff(t.attempts))
	s.seq++
	t.seq = s.seq
	s.q.push(t)

	if notReady {
		s.stats.Retried++
		log.Debug("request not ready, re-enqueued", "attempts", t.attempts, "reason", err)
		return Retried
	}
	s.stats.Errored++
	log.Error("request failed, re-enqueued", "attempts", t.attempts, "error", err)
	return Errored
}

// backoff returns the delay before attempt n+1. The delay never exceeds
// BackoffMax, or ErrorInterval when BackoffMax is unset, or
// defaultBackoffMax when both are unset.
func (s *Scheduler) backoff(attempts int) time.Duration {
	if s.cfg.BackoffBase <= 0 || attempts <= 0 {
		return 0
	}
	ceiling := s.cfg.BackoffMax
	if ceiling <= 0 {
		ceiling = s.cfg.ErrorInterval
	}
	if ceiling <= 0 {
		ceiling = defaultBackoffMax
	}
	d := s.cfg.BackoffBase
	for i := 1; i < attempts && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}

// Run drives the queue until ctx is canceled. The first request runs after
// StartDelay; afterwards the loop sleeps BusyInterval between requests,
// IdleInterval when nothing is due, and ErrorInterval after an unexpected
// failure. Enqueue cuts an idle sleep short.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "start_delay", s.cfg.StartDelay)
	if err := sleep(ctx, s.cfg.StartDelay, nil); err != nil {
		return err
	}

	for {
		var (
			delay time.Duration
			wake  <-chan struct{}
		)
		switch outcome := s.Step(ctx); outcome {
		case Idle:
			delay, wake = s.cfg.IdleInterval, s.wake
		case Waiting:
			delay, wake = s.cfg.IdleInterval, s.wake
			if wait := s.headWait(); wait > 0 && wait < delay {
				delay = wait
			}
		case Errored:
			delay = s.cfg.ErrorInterval
		default:
			delay = s.cfg.BusyInterval
		}
		if err := sleep(ctx, delay, wake); err != nil {
			s.logger.Info("scheduler stopped")
			return err
		}
	}
}

// RunUntilIdle drains the queue and returns once it is empty. Backing-off
// requests are waited for.
func (s *Scheduler) RunUntilIdle(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch s.Step(ctx) {
		case Idle:
			return nil
		case Waiting:
			if err := sleep(ctx, s.headWait(), nil); err != nil {
				return err
			}
		}
	}
}

// sleep waits for d, ctx cancellation, or a signal on wake.
func sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
