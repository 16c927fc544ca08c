package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (s *Store) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		ids, err := s.groupMemberIDs(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].DisplayIDs = ids
	}
	return out, nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (Group, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, ErrNotFound
	}
	if err != nil {
		return Group{}, err
	}
	g.DisplayIDs, err = s.groupMemberIDs(ctx, g.ID)
	return g, err
}

func (s *Store) CreateGroup(ctx context.Context, g *Group) error {
	g.CreatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO groups(name, description, created_at) VALUES(?,?,?)`,
		g.Name, nullStr(g.Description), encodeTime(g.CreatedAt))
	if err != nil {
		return mapConstraintErr(err)
	}
	g.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateGroup(ctx context.Context, g Group) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE groups SET name=?, description=? WHERE id=?`,
		g.Name, nullStr(g.Description), g.ID)
	if err != nil {
		return mapConstraintErr(err)
	}
	return requireRow(res)
}

func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// AddGroupDisplays attaches displays to a group. Existing memberships are
// kept as-is; unknown display ids fail the whole call.
func (s *Store) AddGroupDisplays(ctx context.Context, groupID int64, displayIDs []int64) error {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range displayIDs {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM displays WHERE id=?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO display_groups(display_id, group_id) VALUES(?,?)`,
			id, groupID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RemoveGroupDisplays(ctx context.Context, groupID int64, displayIDs []int64) error {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range displayIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM display_groups WHERE display_id=? AND group_id=?`,
			id, groupID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GroupDisplays returns the full display rows belonging to a group.
func (s *Store) GroupDisplays(ctx context.Context, groupID int64) ([]Display, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.name, d.ip_address, d.psk, d.location, d.status, d.last_seen, d.created_at
		 FROM displays d
		 JOIN display_groups dg ON dg.display_id = d.id
		 WHERE dg.group_id = ?
		 ORDER BY d.id`, groupID)
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

func (s *Store) groupMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT display_id FROM display_groups WHERE group_id=? ORDER BY display_id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanGroup(r rowScanner) (Group, error) {
	var g Group
	var desc sql.NullString
	var createdAt string
	if err := r.Scan(&g.ID, &g.Name, &desc, &createdAt); err != nil {
		return Group{}, err
	}
	g.Description = strOrEmpty(desc)
	g.CreatedAt = decodeTime(createdAt)
	return g, nil
}
