package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ldpm/internal/bravia"
	"ldpm/internal/power"
	"ldpm/internal/store"
	"ldpm/pkg/logx"
)

// Store is the slice of the persistence layer this package needs.
type Store interface {
	GetSchedule(ctx context.Context, id int64) (store.Schedule, error)
	ListEnabledSchedules(ctx context.Context) ([]store.Schedule, error)
	ResolveTargets(ctx context.Context, scheduleID int64) ([]store.Display, error)
	AppendExecution(ctx context.Context, e *store.Execution) error
	AppendPowerEvent(ctx context.Context, e *store.PowerEvent) error
	SetDisplayStatus(ctx context.Context, id int64, status string, seen time.Time) error
}

// Notifier receives failure alerts. May be nil.
type Notifier interface {
	ScheduleFailure(ctx context.Context, schedule string, failed []string)
}

// Executor runs one schedule fire end to end.
type Executor struct {
	store    Store
	applier  *power.Applier
	notifier Notifier
	log      logx.Logger
}

func NewExecutor(st Store, applier *power.Applier, notifier Notifier, log logx.Logger) *Executor {
	return &Executor{store: st, applier: applier, notifier: notifier, log: log}
}

// Run executes schedule id once: resolve targets, apply the action one
// display at a time, append exactly one execution record. Individual
// display failures never abort the run; they end up in the record's
// error summary. The returned error covers infrastructure problems only
// (schedule missing, store unavailable).
func (e *Executor) Run(ctx context.Context, scheduleID int64) (store.Execution, error) {
	sc, err := e.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return store.Execution{}, fmt.Errorf("load schedule %d: %w", scheduleID, err)
	}

	log := e.log.With(logx.Int64("schedule", sc.ID), logx.String("name", sc.Name))
	log.Info("executing schedule", logx.String("action", sc.Action), logx.String("spec", sc.CronSpec))

	targets, err := e.store.ResolveTargets(ctx, sc.ID)
	if err != nil {
		return store.Execution{}, fmt.Errorf("resolve targets for schedule %d: %w", sc.ID, err)
	}

	on := sc.Action == "on"
	results := e.applier.Apply(ctx, targets, on, false)

	now := time.Now()
	var failed []string
	for _, r := range results {
		if !r.OK {
			failed = append(failed, r.Display.Name)
			continue
		}
		e.recordSuccess(ctx, r.Display, on, now)
	}

	exec := store.Execution{
		ScheduleID: sc.ID,
		ExecutedAt: now,
		Success:    len(failed) == 0,
	}
	if len(failed) > 0 {
		exec.Error = fmt.Sprintf("%d display(s) failed: %s", len(failed), strings.Join(failed, ", "))
	}
	if err := e.store.AppendExecution(ctx, &exec); err != nil {
		return exec, fmt.Errorf("append execution for schedule %d: %w", sc.ID, err)
	}

	if len(failed) > 0 {
		log.Warn("schedule finished with failures",
			logx.Int("targets", len(targets)), logx.Int("failed", len(failed)),
			logx.String("summary", exec.Error))
		if e.notifier != nil {
			e.notifier.ScheduleFailure(ctx, sc.Name, failed)
		}
	} else {
		log.Info("schedule finished", logx.Int("targets", len(targets)))
	}
	return exec, nil
}

// recordSuccess appends the power event and refreshes the display's last
// observed state. Bookkeeping failures are logged, not propagated: the
// panel already received its command.
func (e *Executor) recordSuccess(ctx context.Context, d store.Display, on bool, now time.Time) {
	action := "off"
	status := string(bravia.StateStandby)
	if on {
		action = "on"
		status = string(bravia.StateActive)
	}
	if err := e.store.AppendPowerEvent(ctx, &store.PowerEvent{
		DisplayID: d.ID,
		Action:    action,
		Source:    "schedule",
		At:        now,
	}); err != nil {
		e.log.Warn("power event append failed", logx.Int64("display", d.ID), logx.Err(err))
	}
	if err := e.store.SetDisplayStatus(ctx, d.ID, status, now); err != nil {
		e.log.Warn("display status update failed", logx.Int64("display", d.ID), logx.Err(err))
	}
}
