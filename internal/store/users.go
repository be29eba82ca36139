package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const userColumns = `id, username, display_name, role, operator_id, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.Role == "" {
		u.Role = RoleGuest
	}
	if !u.Role.IsValid() {
		return fmt.Errorf("invalid role: %s: %w", u.Role, ErrInvalid)
	}
	if u.Username == "" {
		return fmt.Errorf("username is required: %w", ErrInvalid)
	}
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, display_name, role, operator_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.DisplayName, u.Role, u.OperatorID, now, now,
	)
	if err != nil {
		return wrapWriteErr("insert user", err)
	}
	u.ID, _ = res.LastInsertId()
	u.CreatedAt = parseTime(now)
	u.UpdatedAt = u.CreatedAt
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	return getUser(ctx, s.db, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound("user", username, err)
	}
	return u, nil
}

func getUser(ctx context.Context, exec executor, id int64) (*User, error) {
	row := exec.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound("user", id, err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUser changes profile fields. Roles only move through Tx.SetRole.
func (s *Store) UpdateUser(ctx context.Context, u *User) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, display_name = ?, operator_id = ?, updated_at = ? WHERE id = ?`,
		u.Username, u.DisplayName, u.OperatorID, now, u.ID,
	)
	if err != nil {
		return wrapWriteErr("update user", err)
	}
	u.UpdatedAt = parseTime(now)
	return checkAffected(res, "user", u.ID)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return checkAffected(res, "user", id)
}

func (s *Store) GetDemotion(ctx context.Context, id string) (*DemotionRequest, error) {
	return getDemotion(ctx, s.db, id)
}

// ListDemotions returns requests in creation order; an empty status returns all of them.
func (s *Store) ListDemotions(ctx context.Context, status DemotionStatus) ([]DemotionRequest, error) {
	query := `SELECT ` + demotionColumns + ` FROM demotion_requests`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list demotions: %w", err)
	}
	defer rows.Close()

	var reqs []DemotionRequest
	for rows.Next() {
		d, err := scanDemotion(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *d)
	}
	return reqs, rows.Err()
}

func (tx *Tx) GetUser(ctx context.Context, id int64) (*User, error) {
	return getUser(ctx, tx.tx, id)
}

func (tx *Tx) SetRole(ctx context.Context, userID int64, role Role) error {
	if !role.IsValid() {
		return fmt.Errorf("invalid role: %s: %w", role, ErrInvalid)
	}
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		role, formatTime(time.Now()), userID,
	)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return checkAffected(res, "user", userID)
}

func (tx *Tx) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = ?`, RoleAdmin).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

// InsertDemotion stores a pending request. A second pending request for the
// same target fails with ErrConflict.
func (tx *Tx) InsertDemotion(ctx context.Context, d *DemotionRequest) error {
	_, err := tx.tx.ExecContext(ctx,
		`INSERT INTO demotion_requests (id, target_user_id, requested_by, reason, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.TargetUserID, d.RequestedBy, d.Reason, d.Status, formatTime(d.CreatedAt),
	)
	return wrapWriteErr("insert demotion", err)
}

func (tx *Tx) GetDemotion(ctx context.Context, id string) (*DemotionRequest, error) {
	return getDemotion(ctx, tx.tx, id)
}

// DecideDemotion records the outcome of a pending request.
func (tx *Tx) DecideDemotion(ctx context.Context, id string, status DemotionStatus, decidedBy int64, at time.Time) error {
	res, err := tx.tx.ExecContext(ctx,
		`UPDATE demotion_requests SET status = ?, decided_by = ?, decided_at = ?
		 WHERE id = ? AND status = ?`,
		status, decidedBy, formatTime(at), id, DemotionPending,
	)
	if err != nil {
		return fmt.Errorf("decide demotion: %w", err)
	}
	return checkAffected(res, "pending demotion", id)
}

const demotionColumns = `id, target_user_id, requested_by, reason, status, decided_by, created_at, decided_at`

func getDemotion(ctx context.Context, exec executor, id string) (*DemotionRequest, error) {
	row := exec.QueryRowContext(ctx, `SELECT `+demotionColumns+` FROM demotion_requests WHERE id = ?`, id)
	d, err := scanDemotion(row)
	if err != nil {
		return nil, notFound("demotion", id, err)
	}
	return d, nil
}

func scanUser(r rowScanner) (*User, error) {
	u := &User{}
	var operatorID sql.NullInt64
	var createdAt, updatedAt string
	if err := r.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &operatorID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.OperatorID = nullInt(operatorID)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return u, nil
}

func scanDemotion(r rowScanner) (*DemotionRequest, error) {
	d := &DemotionRequest{}
	var decidedBy sql.NullInt64
	var createdAt string
	var decidedAt sql.NullString
	if err := r.Scan(&d.ID, &d.TargetUserID, &d.RequestedBy, &d.Reason, &d.Status, &decidedBy, &createdAt, &decidedAt); err != nil {
		return nil, err
	}
	d.DecidedBy = nullInt(decidedBy)
	d.CreatedAt = parseTime(createdAt)
	d.DecidedAt = parseNullTime(decidedAt)
	return d, nil
}
