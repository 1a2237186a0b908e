package purge

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/statevault/statevault/internal/platform/errors"
)

var (
	errInvalidThreshold = errors.New(errors.CodeInvalidArgument, "purge threshold must be at least 1")
	errInvalidCooldown  = errors.New(errors.CodeInvalidArgument, "purge cooldown must not be negative")
)

const (
	// DefaultThreshold is the write count that arms a sweep.
	DefaultThreshold = 1000
	// DefaultCooldown is the window after a sweep during which further
	// threshold crossings are absorbed.
	DefaultCooldown = 2000 * time.Millisecond
	// DefaultSweepTimeout bounds a single sweep so a hung storage engine
	// cannot leave the scheduler stuck in the sweeping state.
	DefaultSweepTimeout = 30 * time.Second
)

// Sweeper executes one purge pass across all volatile types.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (map[string]int64, error)
}

// Status is a point-in-time snapshot of scheduler state.
type Status struct {
	Threshold              int           `json:"threshold"`
	Cooldown               time.Duration `json:"cooldown"`
	WritesSinceLastTrigger int           `json:"writes_since_last_trigger"`
	Sweeping               bool          `json:"sweeping"`
	LastSweepAt            *time.Time    `json:"last_sweep_at,omitempty"`
}

// Scheduler debounces purge sweeps behind a write counter.
//
// One Scheduler instance is shared by every record type: the counter, the
// sweeping flag and the last-sweep instant live here rather than in package
// globals so independent stores and tests never share hidden state. All state
// transitions happen under the mutex; in particular the check-and-transition
// in RecordWrite is atomic, so two concurrent writers can never both decide
// to start a sweep.
type Scheduler struct {
	sweeper Sweeper
	clock   func() time.Time

	mu           sync.Mutex
	threshold    int
	cooldown     time.Duration
	sweepTimeout time.Duration
	writes       int
	sweeping     bool
	lastSweepAt  time.Time
}

// SchedulerOption adjusts scheduler construction.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock overrides the scheduler time source.
func WithSchedulerClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSweepTimeout overrides the per-sweep deadline.
func WithSweepTimeout(timeout time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.sweepTimeout = timeout
		}
	}
}

// NewScheduler creates an idle scheduler with default threshold and cooldown.
func NewScheduler(sweeper Sweeper, opts ...SchedulerOption) *Scheduler {
	scheduler := &Scheduler{
		sweeper:      sweeper,
		clock:        time.Now,
		threshold:    DefaultThreshold,
		cooldown:     DefaultCooldown,
		sweepTimeout: DefaultSweepTimeout,
	}
	for _, opt := range opts {
		opt(scheduler)
	}
	return scheduler
}

// RecordWrite counts one write-path call and arms a sweep when the threshold
// is reached while idle. The caller is never blocked on the sweep itself:
// the executor runs on its own goroutine with its own context.
func (s *Scheduler) RecordWrite() {
	s.mu.Lock()
	s.writes++
	if s.sweeping || s.writes < s.threshold {
		s.mu.Unlock()
		return
	}
	s.writes = 0
	s.sweeping = true
	s.mu.Unlock()

	go s.runSweep()
}

// TriggerNow arms a sweep regardless of the write counter. It reports false
// when a sweep or cooldown is already in flight; single-flight still holds.
func (s *Scheduler) TriggerNow() bool {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		return false
	}
	s.writes = 0
	s.sweeping = true
	s.mu.Unlock()

	go s.runSweep()
	return true
}

// runSweep executes the sweeper and then holds the cooldown window before
// returning to idle. Sweep failures are informational: they are logged and
// discarded, never surfaced to the write that happened to arm the sweep.
func (s *Scheduler) runSweep() {
	s.mu.Lock()
	timeout := s.sweepTimeout
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	now := s.clock().UTC()
	deleted, err := s.sweeper.Sweep(ctx, now)
	if err != nil {
		log.Printf("purge sweep incomplete: %v", err)
	}
	var total int64
	for _, count := range deleted {
		total += count
	}
	if total > 0 {
		log.Printf("purge sweep reclaimed %d expired records", total)
	}

	completed := s.clock().UTC()
	s.mu.Lock()
	s.lastSweepAt = completed
	cooldown := s.cooldown
	s.mu.Unlock()

	// The cooldown is a pure time delay, not a wait on the write path; the
	// timer callback is the only way back to idle.
	time.AfterFunc(cooldown, func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
	})
}

// Configure replaces threshold and/or cooldown; nil leaves a value unchanged.
func (s *Scheduler) Configure(threshold *int, cooldown *time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if threshold != nil {
		if *threshold < 1 {
			return errInvalidThreshold
		}
		s.threshold = *threshold
	}
	if cooldown != nil {
		if *cooldown < 0 {
			return errInvalidCooldown
		}
		s.cooldown = *cooldown
	}
	return nil
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{
		Threshold:              s.threshold,
		Cooldown:               s.cooldown,
		WritesSinceLastTrigger: s.writes,
		Sweeping:               s.sweeping,
	}
	if !s.lastSweepAt.IsZero() {
		value := s.lastSweepAt
		status.LastSweepAt = &value
	}
	return status
}
