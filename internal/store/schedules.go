package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (s *Store) ListSchedules(ctx context.Context) ([]Schedule, error) {
	return s.listSchedules(ctx, false)
}

// ListEnabledSchedules returns only schedules the registry should register.
func (s *Store) ListEnabledSchedules(ctx context.Context) ([]Schedule, error) {
	return s.listSchedules(ctx, true)
}

func (s *Store) listSchedules(ctx context.Context, enabledOnly bool) ([]Schedule, error) {
	q := `SELECT id, name, action, cron_spec, enabled, created_at FROM schedules`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		ts, err := s.scheduleTargets(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Targets = ts
	}
	return out, nil
}

func (s *Store) GetSchedule(ctx context.Context, id int64) (Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, action, cron_spec, enabled, created_at FROM schedules WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, ErrNotFound
	}
	if err != nil {
		return Schedule{}, err
	}
	sc.Targets, err = s.scheduleTargets(ctx, sc.ID)
	return sc, err
}

func (s *Store) CreateSchedule(ctx context.Context, sc *Schedule) error {
	sc.CreatedAt = time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO schedules(name, action, cron_spec, enabled, created_at) VALUES(?,?,?,?,?)`,
		sc.Name, sc.Action, sc.CronSpec, sc.Enabled, encodeTime(sc.CreatedAt))
	if err != nil {
		return err
	}
	sc.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	if err := replaceTargets(ctx, tx, sc.ID, sc.Targets); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateSchedule rewrites the schedule row and replaces its target set
// wholesale.
func (s *Store) UpdateSchedule(ctx context.Context, sc Schedule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE schedules SET name=?, action=?, cron_spec=?, enabled=? WHERE id=?`,
		sc.Name, sc.Action, sc.CronSpec, sc.Enabled, sc.ID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_targets WHERE schedule_id=?`, sc.ID); err != nil {
		return err
	}
	if err := replaceTargets(ctx, tx, sc.ID, sc.Targets); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) SetScheduleEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE schedules SET enabled=? WHERE id=?`, enabled, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) DeleteSchedule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ResolveTargets expands a schedule's target set into concrete displays:
// directly listed displays plus every member of every listed group,
// deduplicated by display id. A dangling reference resolves to nothing
// rather than failing the run.
func (s *Store) ResolveTargets(ctx context.Context, scheduleID int64) ([]Display, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT d.id, d.name, d.ip_address, d.psk, d.location, d.status, d.last_seen, d.created_at
		 FROM displays d
		 WHERE d.id IN (
		     SELECT ref_id FROM schedule_targets WHERE schedule_id = ? AND kind = 'display'
		 )
		 OR d.id IN (
		     SELECT dg.display_id FROM display_groups dg
		     JOIN schedule_targets st ON st.ref_id = dg.group_id
		     WHERE st.schedule_id = ? AND st.kind = 'group'
		 )`, scheduleID, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Display
	for rows.Next() {
		d, err := scanDisplay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) scheduleTargets(ctx context.Context, scheduleID int64) ([]Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, ref_id FROM schedule_targets WHERE schedule_id=? ORDER BY kind, ref_id`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.Kind, &t.RefID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func replaceTargets(ctx context.Context, tx *sql.Tx, scheduleID int64, targets []Target) error {
	for _, t := range targets {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO schedule_targets(schedule_id, kind, ref_id) VALUES(?,?,?)`,
			scheduleID, t.Kind, t.RefID); err != nil {
			return err
		}
	}
	return nil
}

func scanSchedule(r rowScanner) (Schedule, error) {
	var sc Schedule
	var createdAt string
	if err := r.Scan(&sc.ID, &sc.Name, &sc.Action, &sc.CronSpec, &sc.Enabled, &createdAt); err != nil {
		return Schedule{}, err
	}
	sc.CreatedAt = decodeTime(createdAt)
	return sc, nil
}
