package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"ldpm/internal/power"
	"ldpm/internal/store"
	"ldpm/pkg/logx"
)

func testRegistry(t *testing.T, fs *fakeStore) *Registry {
	t.Helper()
	applier := power.NewApplier(power.Config{}, &failingController{}, logx.Nop())
	exec := NewExecutor(fs, applier, nil, logx.Nop())
	r := NewRegistry(Config{DrainTimeout: time.Second}, fs, exec, logx.Nop())
	t.Cleanup(func() { r.Stop(context.Background()) })
	return r
}

func TestReloadEmptySet(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	r := testRegistry(t, fs)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := r.Jobs(); got != 0 {
		t.Fatalf("Jobs = %d, want 0", got)
	}
}

func TestReloadSkipsInvalidCronSpec(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	fs.schedules[1] = store.Schedule{ID: 1, Name: "Broken", Action: "on", CronSpec: "invalid", Enabled: true}
	fs.schedules[2] = store.Schedule{ID: 2, Name: "Weekdays", Action: "on", CronSpec: "0 7 * * MON-FRI", Enabled: true}
	fs.schedules[3] = store.Schedule{ID: 3, Name: "Disabled", Action: "off", CronSpec: "0 22 * * *", Enabled: false}

	r := testRegistry(t, fs)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := r.Jobs(); got != 1 {
		t.Fatalf("Jobs = %d, want 1 (invalid skipped, disabled excluded)", got)
	}
}

func TestReloadTracksScheduleChanges(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	fs.schedules[1] = store.Schedule{ID: 1, Name: "A", Action: "on", CronSpec: "0 7 * * *", Enabled: true}

	r := testRegistry(t, fs)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := r.Jobs(); got != 1 {
		t.Fatalf("Jobs = %d, want 1", got)
	}

	fs.mu.Lock()
	sc := fs.schedules[1]
	sc.Enabled = false
	fs.schedules[1] = sc
	fs.schedules[2] = store.Schedule{ID: 2, Name: "B", Action: "off", CronSpec: "30 22 * * *", Enabled: true}
	fs.mu.Unlock()

	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := r.Jobs(); got != 1 {
		t.Fatalf("Jobs after reload = %d, want 1", got)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	r := testRegistry(t, fs)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	r.Stop(context.Background())
	r.Stop(context.Background()) // no panic, no deadlock
}

// stallingStore holds the first GetSchedule open until release is
// closed or the call's context is cancelled, simulating a run stuck on
// a slow backend during shutdown.
type stallingStore struct {
	*fakeStore
	once    sync.Once
	entered chan struct{} // closed when the first GetSchedule blocks
	release chan struct{} // close to let the call proceed
}

func (s *stallingStore) GetSchedule(ctx context.Context, id int64) (store.Schedule, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
		return s.fakeStore.GetSchedule(ctx, id)
	case <-ctx.Done():
		return store.Schedule{}, ctx.Err()
	}
}

func stalledRegistry(t *testing.T, drain time.Duration) (*Registry, *stallingStore) {
	t.Helper()
	fs := newFakeStore()
	fs.schedules[1] = store.Schedule{ID: 1, Name: "Morning On", Action: "on", CronSpec: "0 7 * * *", Enabled: true}
	ss := &stallingStore{
		fakeStore: fs,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	applier := power.NewApplier(power.Config{}, &failingController{}, logx.Nop())
	exec := NewExecutor(ss, applier, nil, logx.Nop())
	r := NewRegistry(Config{DrainTimeout: drain}, ss, exec, logx.Nop())
	t.Cleanup(func() { r.Stop(context.Background()) })
	return r, ss
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	t.Parallel()
	r, ss := stalledRegistry(t, 10*time.Second)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	fireDone := make(chan struct{})
	go func() {
		r.fire(1)
		close(fireDone)
	}()
	<-ss.entered

	// Unblock the run shortly after Stop begins waiting.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(ss.release)
	}()

	start := time.Now()
	r.Stop(context.Background())
	if took := time.Since(start); took >= 5*time.Second {
		t.Fatalf("Stop took %v, want return once the run finished", took)
	}
	<-fireDone

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if len(ss.executions) != 1 {
		t.Fatalf("executions = %d, want the drained run recorded", len(ss.executions))
	}
}

func TestStopCancelsAbandonedRunAfterGrace(t *testing.T) {
	t.Parallel()
	r, ss := stalledRegistry(t, 50*time.Millisecond)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	fireDone := make(chan struct{})
	go func() {
		r.fire(1)
		close(fireDone)
	}()
	<-ss.entered

	start := time.Now()
	r.Stop(context.Background())
	if took := time.Since(start); took < 50*time.Millisecond {
		t.Fatalf("Stop returned after %v, before the grace period", took)
	}

	// The release channel is never closed here, so the abandoned run can
	// only unwind because Stop cancelled the run context.
	select {
	case <-fireDone:
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned run still blocked after Stop, run context not cancelled")
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if len(ss.executions) != 0 {
		t.Fatalf("executions = %d, want none for the cancelled run", len(ss.executions))
	}
}

func TestReloadWhileStopped(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	fs.schedules[1] = store.Schedule{ID: 1, Name: "A", Action: "on", CronSpec: "0 7 * * *", Enabled: true}
	r := testRegistry(t, fs)

	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload while stopped: %v", err)
	}
	if got := r.Jobs(); got != 0 {
		t.Fatalf("Jobs = %d, want 0 while stopped", got)
	}
}
