package scheduler

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ldpm/pkg/logx"
)

// Config controls the registry.
type Config struct {
	Timezone     string        // IANA TZ, e.g. "Europe/Berlin"; empty = local
	DrainTimeout time.Duration // grace for in-flight runs on Stop
}

func (c Config) withDefaults() Config {
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 30 * time.Second
	}
	return c
}

// Registry owns the process-wide timer facility: one cron entry per
// enabled schedule. Construct it once at startup and hand the reference
// to whatever needs to trigger reloads.
type Registry struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	store Store
	exec  *Executor

	c    *cron.Cron
	jobs map[int64]cron.EntryID

	runCtx    context.Context
	runCancel context.CancelFunc
	inflight  sync.WaitGroup
}

func NewRegistry(cfg Config, st Store, exec *Executor, log logx.Logger) *Registry {
	return &Registry{
		cfg:   cfg.withDefaults(),
		store: st,
		exec:  exec,
		log:   log,
		jobs:  map[int64]cron.EntryID{},
	}
}

// Start brings up the timer facility and registers the current enabled
// schedule set. Calling Start while running is a no-op.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return nil
	}

	loc := r.loadLocationLocked()
	r.c = cron.New(cron.WithParser(cronParser), cron.WithLocation(loc))
	r.runCtx, r.runCancel = context.WithCancel(context.Background())

	if err := r.reloadLocked(ctx); err != nil {
		r.c = nil
		r.runCancel()
		return err
	}

	r.c.Start()
	r.log.Info("schedule registry started", logx.String("tz", loc.String()), logx.Int("schedules", len(r.jobs)))
	return nil
}

// Stop halts the timer facility. In-flight runs are not cancelled; they
// get a bounded grace period and are abandoned (still running) when it
// expires. Calling Stop while stopped is a no-op.
func (r *Registry) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	cancel := r.runCancel
	r.c = nil
	r.runCancel = nil
	r.jobs = map[int64]cron.EntryID{}
	r.mu.Unlock()

	if c == nil {
		return
	}

	start := time.Now()
	stopCtx := c.Stop()

	done := make(chan struct{})
	go func() {
		<-stopCtx.Done()
		r.inflight.Wait()
		close(done)
	}()

	grace := time.NewTimer(r.cfg.DrainTimeout)
	defer grace.Stop()
	select {
	case <-done:
		r.log.Info("schedule registry stopped", logx.Duration("took", time.Since(start)))
	case <-grace.C:
		// Reclaim the run context so abandoned runs unwind instead of
		// hanging on network retries forever.
		cancel()
		cancel = nil
		r.log.Warn("schedule registry stopped with runs still in flight",
			logx.Duration("grace", r.cfg.DrainTimeout))
	case <-ctx.Done():
		cancel()
		cancel = nil
		r.log.Warn("schedule registry stop interrupted")
	}
	if cancel != nil {
		cancel()
	}
}

// Reload re-derives the full job set from the persisted schedules. A
// schedule whose cron spec fails to parse is skipped with a diagnostic;
// the rest register normally. No-op while stopped (Start reloads).
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c == nil {
		r.log.Debug("reload requested while stopped")
		return nil
	}
	return r.reloadLocked(ctx)
}

// Jobs reports the number of registered schedule jobs.
func (r *Registry) Jobs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// reloadLocked discards every registered entry and rebuilds from the
// store. Call with r.mu held and r.c non-nil.
func (r *Registry) reloadLocked(ctx context.Context) error {
	schedules, err := r.store.ListEnabledSchedules(ctx)
	if err != nil {
		return err
	}

	for _, id := range r.jobs {
		r.c.Remove(id)
	}
	r.jobs = map[int64]cron.EntryID{}

	for _, sc := range schedules {
		if _, err := ParseCron(sc.CronSpec); err != nil {
			r.log.Error("skipping schedule with invalid cron spec",
				logx.Int64("schedule", sc.ID), logx.String("name", sc.Name), logx.Err(err))
			continue
		}
		id := sc.ID
		entry, err := r.c.AddFunc(sc.CronSpec, func() { r.fire(id) })
		if err != nil {
			// ParseCron passed, so this is unexpected; skip like a bad spec.
			r.log.Error("schedule register failed",
				logx.Int64("schedule", sc.ID), logx.String("spec", sc.CronSpec), logx.Err(err))
			continue
		}
		r.jobs[sc.ID] = entry
		r.log.Debug("schedule registered",
			logx.Int64("schedule", sc.ID), logx.String("name", sc.Name),
			logx.String("spec", sc.CronSpec), logx.String("action", sc.Action))
	}

	r.log.Info("schedules reloaded", logx.Int("enabled", len(schedules)), logx.Int("registered", len(r.jobs)))
	return nil
}

// fire runs one schedule execution. It tolerates firing for a job removed
// by a concurrent reload: the executor simply loads the current row, and
// a deleted schedule yields a logged error, nothing more.
func (r *Registry) fire(scheduleID int64) {
	r.mu.Lock()
	ctx := r.runCtx
	r.mu.Unlock()
	if ctx == nil {
		return
	}

	r.inflight.Add(1)
	defer r.inflight.Done()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in schedule run",
				logx.Int64("schedule", scheduleID), logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	if _, err := r.exec.Run(ctx, scheduleID); err != nil {
		r.log.Error("schedule run failed", logx.Int64("schedule", scheduleID), logx.Err(err))
	}
}

func (r *Registry) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(r.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		r.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
