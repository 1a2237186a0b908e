package purge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSweeper records invocations and optionally blocks until released.
type fakeSweeper struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	invoked chan struct{}
	err     error
}

func newFakeSweeper() *fakeSweeper {
	return &fakeSweeper{invoked: make(chan struct{}, 16)}
}

func (f *fakeSweeper) Sweep(ctx context.Context, now time.Time) (map[string]int64, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	err := f.err
	f.mu.Unlock()
	f.invoked <- struct{}{}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return map[string]int64{"Session": 1}, err
}

func (f *fakeSweeper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitInvoked(t *testing.T, sweeper *fakeSweeper) {
	t.Helper()
	select {
	case <-sweeper.invoked:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sweep invocation")
	}
}

func waitIdle(t *testing.T, scheduler *Scheduler) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !scheduler.Status().Sweeping {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for scheduler to return to idle")
}

func intPtr(v int) *int { return &v }

func durPtr(v time.Duration) *time.Duration { return &v }

func TestDefaults(t *testing.T) {
	scheduler := NewScheduler(newFakeSweeper())

	status := scheduler.Status()
	if status.Threshold != DefaultThreshold {
		t.Fatalf("expected default threshold %d, got %d", DefaultThreshold, status.Threshold)
	}
	if status.Cooldown != DefaultCooldown {
		t.Fatalf("expected default cooldown %v, got %v", DefaultCooldown, status.Cooldown)
	}
	if status.Sweeping {
		t.Fatal("expected idle scheduler")
	}
	if status.LastSweepAt != nil {
		t.Fatal("expected no last sweep before first trigger")
	}
}

func TestDebounceAbsorbsWriteBurst(t *testing.T) {
	sweeper := newFakeSweeper()
	scheduler := NewScheduler(sweeper)
	if err := scheduler.Configure(intPtr(5), durPtr(2*time.Second)); err != nil {
		t.Fatalf("configure: %v", err)
	}

	// A burst of 20 writes crosses the threshold four times over, yet only
	// one sweep may result.
	for i := 0; i < 20; i++ {
		scheduler.RecordWrite()
	}
	waitInvoked(t, sweeper)

	if sweeper.callCount() != 1 {
		t.Fatalf("expected exactly one sweep, got %d", sweeper.callCount())
	}

	status := scheduler.Status()
	if !status.Sweeping {
		t.Fatal("expected scheduler to hold the cooldown window")
	}
	if status.WritesSinceLastTrigger != 15 {
		t.Fatalf("expected 15 absorbed writes, got %d", status.WritesSinceLastTrigger)
	}
}

func TestSecondSweepOnlyAfterCooldown(t *testing.T) {
	sweeper := newFakeSweeper()
	scheduler := NewScheduler(sweeper)
	if err := scheduler.Configure(intPtr(2), durPtr(20*time.Millisecond)); err != nil {
		t.Fatalf("configure: %v", err)
	}

	scheduler.RecordWrite()
	scheduler.RecordWrite()
	waitInvoked(t, sweeper)

	// Crossing the threshold during cooldown must not fire again.
	scheduler.RecordWrite()
	scheduler.RecordWrite()
	if sweeper.callCount() != 1 {
		t.Fatalf("expected sweep suppressed during cooldown, got %d", sweeper.callCount())
	}

	waitIdle(t, scheduler)

	scheduler.RecordWrite()
	scheduler.RecordWrite()
	waitInvoked(t, sweeper)
	if sweeper.callCount() != 2 {
		t.Fatalf("expected second sweep after cooldown, got %d", sweeper.callCount())
	}
}

func TestConcurrentWritersTriggerOneSweep(t *testing.T) {
	sweeper := newFakeSweeper()
	sweeper.block = make(chan struct{})
	scheduler := NewScheduler(sweeper)
	if err := scheduler.Configure(intPtr(10), durPtr(10*time.Millisecond)); err != nil {
		t.Fatalf("configure: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.RecordWrite()
		}()
	}
	wg.Wait()
	waitInvoked(t, sweeper)

	if sweeper.callCount() != 1 {
		t.Fatalf("expected a single in-flight sweep, got %d", sweeper.callCount())
	}
	close(sweeper.block)
	waitIdle(t, scheduler)
}

func TestRecordWriteReturnsBeforeSweepCompletes(t *testing.T) {
	sweeper := newFakeSweeper()
	sweeper.block = make(chan struct{})
	scheduler := NewScheduler(sweeper)
	if err := scheduler.Configure(intPtr(1), durPtr(time.Millisecond)); err != nil {
		t.Fatalf("configure: %v", err)
	}

	done := make(chan struct{})
	go func() {
		scheduler.RecordWrite()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write blocked on the sweep")
	}

	waitInvoked(t, sweeper)
	close(sweeper.block)
	waitIdle(t, scheduler)
}

func TestTriggerNowRespectsSingleFlight(t *testing.T) {
	sweeper := newFakeSweeper()
	sweeper.block = make(chan struct{})
	scheduler := NewScheduler(sweeper)
	if err := scheduler.Configure(nil, durPtr(time.Millisecond)); err != nil {
		t.Fatalf("configure: %v", err)
	}

	if !scheduler.TriggerNow() {
		t.Fatal("expected first trigger to start a sweep")
	}
	waitInvoked(t, sweeper)

	if scheduler.TriggerNow() {
		t.Fatal("expected trigger rejected while a sweep is in flight")
	}

	close(sweeper.block)
	waitIdle(t, scheduler)

	if sweeper.callCount() != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.callCount())
	}
}

func TestHungSweepReturnsToIdle(t *testing.T) {
	sweeper := newFakeSweeper()
	sweeper.block = make(chan struct{}) // never closed: the sweep hangs
	scheduler := NewScheduler(sweeper,
		WithSweepTimeout(20*time.Millisecond),
	)
	if err := scheduler.Configure(nil, durPtr(10*time.Millisecond)); err != nil {
		t.Fatalf("configure: %v", err)
	}

	if !scheduler.TriggerNow() {
		t.Fatal("expected trigger to start a sweep")
	}
	waitInvoked(t, sweeper)

	// The sweep deadline expires, the cooldown runs, and the scheduler must
	// not stay stuck in the sweeping state.
	waitIdle(t, scheduler)

	if scheduler.Status().LastSweepAt == nil {
		t.Fatal("expected last sweep instant recorded after forced reset")
	}
}

func TestSweepFailureDoesNotReachWriters(t *testing.T) {
	sweeper := newFakeSweeper()
	sweeper.err = errors.New("backing store down")
	scheduler := NewScheduler(sweeper)
	if err := scheduler.Configure(intPtr(1), durPtr(time.Millisecond)); err != nil {
		t.Fatalf("configure: %v", err)
	}

	// The failing sweep is informational; the write path must proceed and
	// future sweeps stay possible.
	scheduler.RecordWrite()
	waitInvoked(t, sweeper)
	waitIdle(t, scheduler)

	scheduler.RecordWrite()
	waitInvoked(t, sweeper)
	if sweeper.callCount() != 2 {
		t.Fatalf("expected retriggering after failed sweep, got %d", sweeper.callCount())
	}
}

func TestConfigureValidation(t *testing.T) {
	scheduler := NewScheduler(newFakeSweeper())

	if err := scheduler.Configure(intPtr(0), nil); err == nil {
		t.Fatal("expected zero threshold rejected")
	}
	if err := scheduler.Configure(nil, durPtr(-time.Second)); err == nil {
		t.Fatal("expected negative cooldown rejected")
	}

	if err := scheduler.Configure(intPtr(7), nil); err != nil {
		t.Fatalf("configure threshold: %v", err)
	}
	status := scheduler.Status()
	if status.Threshold != 7 {
		t.Fatalf("expected threshold 7, got %d", status.Threshold)
	}
	if status.Cooldown != DefaultCooldown {
		t.Fatalf("expected cooldown untouched, got %v", status.Cooldown)
	}
}
