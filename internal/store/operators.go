package store

import (
	"context"
	"fmt"
	"time"
)

const operatorColumns = `id, full_name, email, availability, active, capacity_hours, created_at, updated_at`

func (s *Store) CreateOperator(ctx context.Context, o *Operator) error {
	if o.Availability == "" {
		o.Availability = AtWork
	}
	if err := validateOperator(o); err != nil {
		return err
	}
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (full_name, email, availability, active, capacity_hours, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.FullName, o.Email, o.Availability, boolInt(o.Active), o.CapacityHours, now, now,
	)
	if err != nil {
		return wrapWriteErr("insert operator", err)
	}
	o.ID, _ = res.LastInsertId()
	o.CreatedAt = parseTime(now)
	o.UpdatedAt = o.CreatedAt
	return nil
}

func (s *Store) GetOperator(ctx context.Context, id int64) (*Operator, error) {
	return getOperator(ctx, s.db, id)
}

func (tx *Tx) GetOperator(ctx context.Context, id int64) (*Operator, error) {
	return getOperator(ctx, tx.tx, id)
}

func getOperator(ctx context.Context, exec executor, id int64) (*Operator, error) {
	row := exec.QueryRowContext(ctx, `SELECT `+operatorColumns+` FROM operators WHERE id = ?`, id)
	o, err := scanOperator(row)
	if err != nil {
		return nil, notFound("operator", id, err)
	}
	return o, nil
}

func (s *Store) ListOperators(ctx context.Context, activeOnly bool) ([]Operator, error) {
	return listOperators(ctx, s.db, activeOnly)
}

func (tx *Tx) ListOperators(ctx context.Context, activeOnly bool) ([]Operator, error) {
	return listOperators(ctx, tx.tx, activeOnly)
}

func listOperators(ctx context.Context, exec executor, activeOnly bool) ([]Operator, error) {
	query := `SELECT ` + operatorColumns + ` FROM operators`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY full_name`

	rows, err := exec.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	defer rows.Close()

	var operators []Operator
	for rows.Next() {
		o, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		operators = append(operators, *o)
	}
	return operators, rows.Err()
}

func (s *Store) UpdateOperator(ctx context.Context, o *Operator) error {
	if err := validateOperator(o); err != nil {
		return err
	}
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE operators SET full_name = ?, email = ?, availability = ?, active = ?, capacity_hours = ?, updated_at = ?
		 WHERE id = ?`,
		o.FullName, o.Email, o.Availability, boolInt(o.Active), o.CapacityHours, now, o.ID,
	)
	if err != nil {
		return wrapWriteErr("update operator", err)
	}
	o.UpdatedAt = parseTime(now)
	return checkAffected(res, "operator", o.ID)
}

// SetOperatorAvailability changes whether an operator is at work, on vacation or on sick leave.
func (s *Store) SetOperatorAvailability(ctx context.Context, id int64, a Availability) error {
	if !a.IsValid() {
		return fmt.Errorf("invalid availability: %s: %w", a, ErrInvalid)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE operators SET availability = ?, updated_at = ? WHERE id = ?`,
		a, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}
	return checkAffected(res, "operator", id)
}

func validateOperator(o *Operator) error {
	if !o.Availability.IsValid() {
		return fmt.Errorf("invalid availability: %s: %w", o.Availability, ErrInvalid)
	}
	if o.CapacityHours < 0 {
		return fmt.Errorf("operator capacity must not be negative: %v: %w", o.CapacityHours, ErrInvalid)
	}
	return nil
}

func scanOperator(r rowScanner) (*Operator, error) {
	o := &Operator{}
	var active int
	var createdAt, updatedAt string
	if err := r.Scan(&o.ID, &o.FullName, &o.Email, &o.Availability, &active, &o.CapacityHours, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	o.Active = active == 1
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return o, nil
}
