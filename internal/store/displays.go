package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (s *Store) ListDisplays(ctx context.Context) ([]Display, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, ip_address, psk, location, status, last_seen, created_at
		 FROM displays ORDER BY id`)
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

func (s *Store) GetDisplay(ctx context.Context, id int64) (Display, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, ip_address, psk, location, status, last_seen, created_at
		 FROM displays WHERE id = ?`, id)
	d, err := scanDisplay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Display{}, ErrNotFound
	}
	return d, err
}

func (s *Store) CreateDisplay(ctx context.Context, d *Display) error {
	now := time.Now()
	if d.Status == "" {
		d.Status = "unknown"
	}
	if d.LastSeen.IsZero() {
		d.LastSeen = now
	}
	d.CreatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO displays(name, ip_address, psk, location, status, last_seen, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		d.Name, d.IPAddress, nullStr(d.PSK), nullStr(d.Location), d.Status,
		encodeTime(d.LastSeen), encodeTime(d.CreatedAt))
	if err != nil {
		return mapConstraintErr(err)
	}
	d.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateDisplay(ctx context.Context, d Display) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE displays SET name=?, ip_address=?, psk=?, location=? WHERE id=?`,
		d.Name, d.IPAddress, nullStr(d.PSK), nullStr(d.Location), d.ID)
	if err != nil {
		return mapConstraintErr(err)
	}
	return requireRow(res)
}

func (s *Store) DeleteDisplay(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM displays WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetDisplayStatus records the last observed power state. Called after
// every successful adapter exchange; failures are left at the previous
// status.
func (s *Store) SetDisplayStatus(ctx context.Context, id int64, status string, seen time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE displays SET status=?, last_seen=? WHERE id=?`,
		status, encodeTime(seen), id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDisplay(r rowScanner) (Display, error) {
	var d Display
	var psk, location sql.NullString
	var lastSeen, createdAt string
	if err := r.Scan(&d.ID, &d.Name, &d.IPAddress, &psk, &location, &d.Status, &lastSeen, &createdAt); err != nil {
		return Display{}, err
	}
	d.PSK = strOrEmpty(psk)
	d.Location = strOrEmpty(location)
	d.LastSeen = decodeTime(lastSeen)
	d.CreatedAt = decodeTime(createdAt)
	return d, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
