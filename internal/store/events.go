package store

import (
	"context"
	"database/sql"
	"time"
)

// AppendExecution writes the immutable record of one schedule fire.
func (s *Store) AppendExecution(ctx context.Context, e *Execution) error {
	if e.ExecutedAt.IsZero() {
		e.ExecutedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_executions(schedule_id, executed_at, success, error) VALUES(?,?,?,?)`,
		e.ScheduleID, encodeTime(e.ExecutedAt), e.Success, nullStr(e.Error))
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

// ListExecutions returns the newest records first. scheduleID 0 means all
// schedules.
func (s *Store) ListExecutions(ctx context.Context, scheduleID int64, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, schedule_id, executed_at, success, error FROM schedule_executions`
	args := []any{}
	if scheduleID > 0 {
		q += ` WHERE schedule_id = ?`
		args = append(args, scheduleID)
	}
	q += ` ORDER BY executed_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		var at string
		var errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.ScheduleID, &at, &e.Success, &errMsg); err != nil {
			return nil, err
		}
		e.ExecutedAt = decodeTime(at)
		e.Error = strOrEmpty(errMsg)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) AppendPowerEvent(ctx context.Context, e *PowerEvent) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.Source == "" {
		e.Source = "manual"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO power_events(display_id, action, source, at) VALUES(?,?,?,?)`,
		e.DisplayID, e.Action, e.Source, encodeTime(e.At))
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

// ListPowerEvents returns the activity log, newest first.
func (s *Store) ListPowerEvents(ctx context.Context, f EventFilter) ([]PowerEvent, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := `SELECT e.id, e.display_id, d.name, e.action, e.source, e.at
	      FROM power_events e JOIN displays d ON d.id = e.display_id WHERE 1=1`
	args := []any{}
	if f.DisplayID > 0 {
		q += ` AND e.display_id = ?`
		args = append(args, f.DisplayID)
	}
	if f.Action != "" {
		q += ` AND e.action = ?`
		args = append(args, f.Action)
	}
	if !f.Since.IsZero() {
		q += ` AND e.at >= ?`
		args = append(args, encodeTime(f.Since))
	}
	q += ` ORDER BY e.at DESC, e.id DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	return s.queryPowerEvents(ctx, q, args...)
}

// PowerEventsRange returns events inside [start, end] in chronological
// order, as the energy report consumes them. Zero bounds are open.
func (s *Store) PowerEventsRange(ctx context.Context, start, end time.Time, displayID int64) ([]PowerEvent, error) {
	q := `SELECT e.id, e.display_id, d.name, e.action, e.source, e.at
	      FROM power_events e JOIN displays d ON d.id = e.display_id WHERE 1=1`
	args := []any{}
	if !start.IsZero() {
		q += ` AND e.at >= ?`
		args = append(args, encodeTime(start))
	}
	if !end.IsZero() {
		q += ` AND e.at <= ?`
		args = append(args, encodeTime(end))
	}
	if displayID > 0 {
		q += ` AND e.display_id = ?`
		args = append(args, displayID)
	}
	q += ` ORDER BY e.at ASC, e.id ASC`

	return s.queryPowerEvents(ctx, q, args...)
}

func (s *Store) queryPowerEvents(ctx context.Context, q string, args ...any) ([]PowerEvent, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PowerEvent
	for rows.Next() {
		var e PowerEvent
		var at string
		if err := rows.Scan(&e.ID, &e.DisplayID, &e.DisplayName, &e.Action, &e.Source, &at); err != nil {
			return nil, err
		}
		e.At = decodeTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}
