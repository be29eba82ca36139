package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const partColumns = `id, project_id, name, part_number, material, quantity, created_at, updated_at`

func (s *Store) CreatePart(ctx context.Context, p *Part) error {
	if p.Quantity <= 0 {
		p.Quantity = 1
	}
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO parts (project_id, name, part_number, material, quantity, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ProjectID, p.Name, p.PartNumber, p.Material, p.Quantity, now, now,
	)
	if err != nil {
		return wrapWriteErr("insert part", err)
	}
	p.ID, _ = res.LastInsertId()
	p.CreatedAt = parseTime(now)
	p.UpdatedAt = p.CreatedAt
	return nil
}

func (s *Store) GetPart(ctx context.Context, id int64) (*Part, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+partColumns+` FROM parts WHERE id = ?`, id)
	p, err := scanPart(row)
	if err != nil {
		return nil, notFound("part", id, err)
	}
	return p, nil
}

// ListParts returns parts ordered by part number, optionally restricted to a project.
func (s *Store) ListParts(ctx context.Context, projectID *int64) ([]Part, error) {
	query := `SELECT ` + partColumns + ` FROM parts`
	var args []any
	if projectID != nil {
		query += ` WHERE project_id = ?`
		args = append(args, *projectID)
	}
	query += ` ORDER BY part_number`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	defer rows.Close()

	var parts []Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		parts = append(parts, *p)
	}
	return parts, rows.Err()
}

func (s *Store) UpdatePart(ctx context.Context, p *Part) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE parts SET project_id = ?, name = ?, part_number = ?, material = ?, quantity = ?, updated_at = ?
		 WHERE id = ?`,
		p.ProjectID, p.Name, p.PartNumber, p.Material, p.Quantity, now, p.ID,
	)
	if err != nil {
		return wrapWriteErr("update part", err)
	}
	p.UpdatedAt = parseTime(now)
	return checkAffected(res, "part", p.ID)
}

func (s *Store) DeletePart(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM parts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete part: %w", err)
	}
	return checkAffected(res, "part", id)
}

func scanPart(r rowScanner) (*Part, error) {
	p := &Part{}
	var projectID sql.NullInt64
	var createdAt, updatedAt string
	if err := r.Scan(&p.ID, &projectID, &p.Name, &p.PartNumber, &p.Material, &p.Quantity, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.ProjectID = nullInt(projectID)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}
