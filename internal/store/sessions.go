package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const sessionColumns = `id, task_id, operator_id, state, started_at, last_resumed_at, paused_at, accumulated_secs, notes`

// InsertSession stores a new open session. The UNIQUE(task_id, operator_id)
// constraint rejects a second open session for the pair with ErrConflict.
func (s *Store) InsertSession(ctx context.Context, ws *WorkSession) error {
	return insertSession(ctx, s.db, ws)
}

// InsertSession is Store.InsertSession inside the transaction.
func (tx *Tx) InsertSession(ctx context.Context, ws *WorkSession) error {
	return insertSession(ctx, tx.tx, ws)
}

func insertSession(ctx context.Context, exec executor, ws *WorkSession) error {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO work_sessions (id, task_id, operator_id, state, started_at, last_resumed_at, paused_at, accumulated_secs, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ws.ID, ws.TaskID, ws.OperatorID, ws.State, formatTime(ws.StartedAt), formatTime(ws.LastResumedAt),
		nullTime(ws.PausedAt), ws.AccumulatedSecs, ws.Notes,
	)
	return wrapWriteErr("insert session", err)
}

// GetSession returns the open session for a (task, operator) pair, or nil when there is none.
func (s *Store) GetSession(ctx context.Context, taskID, operatorID int64) (*WorkSession, error) {
	return getSession(ctx, s.db, taskID, operatorID)
}

func getSession(ctx context.Context, exec executor, taskID, operatorID int64) (*WorkSession, error) {
	row := exec.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM work_sessions WHERE task_id = ? AND operator_id = ?`,
		taskID, operatorID,
	)
	ws, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return ws, nil
}

// UpdateSession persists a state change of an open session.
func (s *Store) UpdateSession(ctx context.Context, ws *WorkSession) error {
	return updateSession(ctx, s.db, ws)
}

func (tx *Tx) UpdateSession(ctx context.Context, ws *WorkSession) error {
	return updateSession(ctx, tx.tx, ws)
}

func updateSession(ctx context.Context, exec executor, ws *WorkSession) error {
	res, err := exec.ExecContext(ctx,
		`UPDATE work_sessions SET state = ?, last_resumed_at = ?, paused_at = ?, accumulated_secs = ?, notes = ?
		 WHERE id = ?`,
		ws.State, formatTime(ws.LastResumedAt), nullTime(ws.PausedAt), ws.AccumulatedSecs, ws.Notes, ws.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return checkAffected(res, "session", ws.ID)
}

// ListSessions returns every open session, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]WorkSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM work_sessions ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []WorkSession
	for rows.Next() {
		ws, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *ws)
	}
	return sessions, rows.Err()
}

// GetSession reads the open session inside the transaction.
func (tx *Tx) GetSession(ctx context.Context, taskID, operatorID int64) (*WorkSession, error) {
	return getSession(ctx, tx.tx, taskID, operatorID)
}

// DeleteSession clears a finished session so the pair can start again.
func (tx *Tx) DeleteSession(ctx context.Context, id string) error {
	res, err := tx.tx.ExecContext(ctx, `DELETE FROM work_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return checkAffected(res, "session", id)
}

func scanSession(r rowScanner) (*WorkSession, error) {
	ws := &WorkSession{}
	var startedAt, resumedAt string
	var pausedAt sql.NullString
	err := r.Scan(&ws.ID, &ws.TaskID, &ws.OperatorID, &ws.State, &startedAt, &resumedAt, &pausedAt, &ws.AccumulatedSecs, &ws.Notes)
	if err != nil {
		return nil, err
	}
	ws.StartedAt = parseTime(startedAt)
	ws.LastResumedAt = parseTime(resumedAt)
	ws.PausedAt = parseNullTime(pausedAt)
	return ws, nil
}
