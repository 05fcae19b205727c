package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/temoto/alive/v2"
)

var (
	// ErrAlreadyStarted is returned when starting a running scheduler
	ErrAlreadyStarted = errors.New("scheduler is already running")

	// ErrStopped is returned when starting a scheduler after it was stopped
	ErrStopped = errors.New("scheduler is stopped")

	// ErrInvalidInterval is returned by New for a non-positive interval
	ErrInvalidInterval = errors.New("scheduler interval must be positive")

	// ErrNoJob is returned by New without a job to run
	ErrNoJob = errors.New("scheduler job is required")
)

// Job is a single unit of periodic work. It runs synchronously in the
// scheduler goroutine.
type Job func(ctx context.Context)

// State is a lifecycle state of the Scheduler
type State int

const (
	Idle State = iota
	Running
	Stopping // no more firings, the in-flight job is finishing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// WithLogger sets the logger for the scheduler
func WithLogger(logger *slog.Logger) func(s *Scheduler) {
	return func(s *Scheduler) {
		s.logger = logger.With(slog.String("component", "scheduler"))
	}
}

// WithImmediateStart fires the first job as soon as the scheduler starts
// instead of one interval later.
func WithImmediateStart(immediate bool) func(s *Scheduler) {
	return func(s *Scheduler) {
		s.immediate = immediate
	}
}

// Scheduler runs a job on a fixed interval, never two at a time. Ticks that
// fall due while the job is still running are skipped, not queued.
type Scheduler struct {
	interval  time.Duration
	job       Job
	immediate bool
	logger    *slog.Logger

	mu    sync.Mutex
	state State
	alive *alive.Alive

	executed atomic.Uint64
	skipped  atomic.Uint64
}

// New creates a new idle Scheduler with a discard logger
func New(interval time.Duration, job Job, options ...func(s *Scheduler)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	if job == nil {
		return nil, ErrNoJob
	}

	s := Scheduler{
		interval: interval,
		job:      job,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

// Start launches the scheduler goroutine and returns immediately. Cancelling
// ctx stops the scheduler the same way Stop does, the job itself receives a
// context that is not cancelled, so that an in-flight job runs to completion.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Running:
		return ErrAlreadyStarted
	case Stopping, Stopped:
		return ErrStopped
	}

	s.alive = alive.NewAlive()
	s.alive.Add(1)
	s.state = Running

	go s.loop(ctx, s.alive)

	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

// Stop halts future firings and waits for the in-flight job to finish. The
// scheduler reports Stopping until then and Stopped afterwards. It is safe to
// call Stop more than once and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	a := s.alive
	if a == nil {
		s.state = Stopped
		s.mu.Unlock()
		return
	}
	if s.state == Running {
		s.state = Stopping
	}
	s.mu.Unlock()

	a.Stop()
	a.Wait()
}

// State returns the current lifecycle state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Executed returns the number of jobs run so far
func (s *Scheduler) Executed() uint64 {
	return s.executed.Load()
}

// Skipped returns the number of ticks dropped because a job was still running
func (s *Scheduler) Skipped() uint64 {
	return s.skipped.Load()
}

func (s *Scheduler) loop(ctx context.Context, a *alive.Alive) {
	defer a.Done()
	defer s.setState(Stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	jobCtx := context.WithoutCancel(ctx)

	if s.immediate {
		s.run(jobCtx, ticker)
	}

	for {
		select {
		case <-a.StopChan():
			s.logger.Info("scheduler stopped", slog.Uint64("executed", s.Executed()), slog.Uint64("skipped", s.Skipped()))
			return

		case <-ctx.Done():
			s.setState(Stopping)
			a.Stop()

		case <-ticker.C:
			if !a.IsRunning() {
				continue // stop requested while the tick was pending
			}
			s.run(jobCtx, ticker)
		}
	}
}

// run executes the job once and accounts for the ticks it overran
func (s *Scheduler) run(ctx context.Context, ticker *time.Ticker) {
	start := time.Now()
	s.execute(ctx)
	s.executed.Add(1)

	elapsed := time.Since(start)
	if elapsed < s.interval {
		return
	}

	missed := uint64(elapsed / s.interval)
	s.skipped.Add(missed)

	// drop a tick buffered during the overrun, it is already stale
	select {
	case <-ticker.C:
	default:
	}

	s.logger.Debug("job overran the interval, ticks skipped",
		slog.Duration("elapsed", elapsed),
		slog.Uint64("skipped", missed))
}

func (s *Scheduler) execute(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(fmt.Sprintf("job panicked: %v", r))
		}
	}()

	s.job(ctx)
}
