package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const projectColumns = `id, name, client, description, status, deadline, archived, created_at, updated_at`

func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.Status == "" {
		p.Status = ProjectOpen
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("invalid project status: %s: %w", p.Status, ErrInvalid)
	}
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, client, description, status, deadline, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Client, p.Description, p.Status, nullTime(p.Deadline), now, now,
	)
	if err != nil {
		return wrapWriteErr("insert project", err)
	}
	p.ID, _ = res.LastInsertId()
	p.CreatedAt = parseTime(now)
	p.UpdatedAt = p.CreatedAt
	return nil
}

func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFound("project", id, err)
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context, includeArchived bool) ([]Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func (s *Store) UpdateProject(ctx context.Context, p *Project) error {
	if !p.Status.IsValid() {
		return fmt.Errorf("invalid project status: %s: %w", p.Status, ErrInvalid)
	}
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, client = ?, description = ?, status = ?, deadline = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Client, p.Description, p.Status, nullTime(p.Deadline), now, p.ID,
	)
	if err != nil {
		return wrapWriteErr("update project", err)
	}
	p.UpdatedAt = parseTime(now)
	return checkAffected(res, "project", p.ID)
}

func (s *Store) ArchiveProject(ctx context.Context, id int64) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET archived = 1, updated_at = ? WHERE id = ?`, now, id,
	)
	if err != nil {
		return fmt.Errorf("archive project: %w", err)
	}
	return checkAffected(res, "project", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(r rowScanner) (*Project, error) {
	p := &Project{}
	var deadline sql.NullString
	var createdAt, updatedAt string
	var archived int
	if err := r.Scan(&p.ID, &p.Name, &p.Client, &p.Description, &p.Status, &deadline, &archived, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Deadline = parseNullTime(deadline)
	p.Archived = archived == 1
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}
