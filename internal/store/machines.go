package store

import (
	"context"
	"fmt"
	"time"
)

const machineColumns = `id, name, model, active, capacity_hours, created_at, updated_at`

func (s *Store) CreateMachine(ctx context.Context, m *Machine) error {
	if m.CapacityHours < 0 {
		return fmt.Errorf("machine capacity must not be negative: %v: %w", m.CapacityHours, ErrInvalid)
	}
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO machines (name, model, active, capacity_hours, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.Name, m.Model, boolInt(m.Active), m.CapacityHours, now, now,
	)
	if err != nil {
		return wrapWriteErr("insert machine", err)
	}
	m.ID, _ = res.LastInsertId()
	m.CreatedAt = parseTime(now)
	m.UpdatedAt = m.CreatedAt
	return nil
}

func (s *Store) GetMachine(ctx context.Context, id int64) (*Machine, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+machineColumns+` FROM machines WHERE id = ?`, id)
	m, err := scanMachine(row)
	if err != nil {
		return nil, notFound("machine", id, err)
	}
	return m, nil
}

func (s *Store) ListMachines(ctx context.Context, activeOnly bool) ([]Machine, error) {
	return listMachines(ctx, s.db, activeOnly)
}

func (tx *Tx) ListMachines(ctx context.Context, activeOnly bool) ([]Machine, error) {
	return listMachines(ctx, tx.tx, activeOnly)
}

func listMachines(ctx context.Context, exec executor, activeOnly bool) ([]Machine, error) {
	query := `SELECT ` + machineColumns + ` FROM machines`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name`

	rows, err := exec.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer rows.Close()

	var machines []Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		machines = append(machines, *m)
	}
	return machines, rows.Err()
}

func (s *Store) UpdateMachine(ctx context.Context, m *Machine) error {
	if m.CapacityHours < 0 {
		return fmt.Errorf("machine capacity must not be negative: %v: %w", m.CapacityHours, ErrInvalid)
	}
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE machines SET name = ?, model = ?, active = ?, capacity_hours = ?, updated_at = ? WHERE id = ?`,
		m.Name, m.Model, boolInt(m.Active), m.CapacityHours, now, m.ID,
	)
	if err != nil {
		return wrapWriteErr("update machine", err)
	}
	m.UpdatedAt = parseTime(now)
	return checkAffected(res, "machine", m.ID)
}

// DeleteMachine removes a machine; tasks that used it keep running without one.
func (s *Store) DeleteMachine(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM machines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete machine: %w", err)
	}
	return checkAffected(res, "machine", id)
}

func scanMachine(r rowScanner) (*Machine, error) {
	m := &Machine{}
	var active int
	var createdAt, updatedAt string
	if err := r.Scan(&m.ID, &m.Name, &m.Model, &active, &m.CapacityHours, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.Active = active == 1
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return m, nil
}
