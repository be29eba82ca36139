package store

import (
	"context"
	"fmt"
	"time"
)

const entryColumns = `id, task_id, operator_id, start_time, end_time, duration, notes, created_at`

// InsertEntry persists a finished stretch of work inside the transaction.
func (tx *Tx) InsertEntry(ctx context.Context, e *TimeEntry) error {
	now := formatTime(time.Now())
	res, err := tx.tx.ExecContext(ctx,
		`INSERT INTO time_entries (task_id, operator_id, start_time, end_time, duration, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.TaskID, e.OperatorID, formatTime(e.StartTime), formatTime(e.EndTime), e.Duration, e.Notes, now,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	e.CreatedAt = parseTime(now)
	return nil
}

func (s *Store) GetEntry(ctx context.Context, id int64) (*TimeEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, notFound("entry", id, err)
	}
	return e, nil
}

func (s *Store) UpdateEntryNotes(ctx context.Context, id int64, notes string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE time_entries SET notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return fmt.Errorf("update entry notes: %w", err)
	}
	return checkAffected(res, "entry", id)
}

func (s *Store) ListEntries(ctx context.Context, f EntryFilter) ([]TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE 1=1`
	var args []any

	if f.TaskID != nil {
		query += ` AND task_id = ?`
		args = append(args, *f.TaskID)
	}
	if f.OperatorID != nil {
		query += ` AND operator_id = ?`
		args = append(args, *f.OperatorID)
	}
	if f.From != nil {
		query += ` AND start_time >= ?`
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		query += ` AND start_time < ?`
		args = append(args, formatTime(*f.To))
	}
	query += ` ORDER BY start_time DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// TaskTrackedSeconds sums all recorded time on a task.
func (s *Store) TaskTrackedSeconds(ctx context.Context, taskID int64) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(duration), 0) FROM time_entries WHERE task_id = ?`, taskID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("task tracked seconds: %w", err)
	}
	return total, nil
}

func (s *Store) GetDailySummary(ctx context.Context, from, to time.Time) ([]DailySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(e.start_time) AS day, e.operator_id, o.full_name,
		       COALESCE(SUM(e.duration), 0), COUNT(*)
		FROM time_entries e
		JOIN operators o ON o.id = e.operator_id
		WHERE e.start_time >= ? AND e.start_time < ?
		GROUP BY day, e.operator_id
		ORDER BY day, o.full_name`,
		formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("daily summary: %w", err)
	}
	defer rows.Close()

	var summaries []DailySummary
	for rows.Next() {
		var ds DailySummary
		if err := rows.Scan(&ds.Date, &ds.OperatorID, &ds.OperatorName, &ds.TotalSeconds, &ds.EntryCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, ds)
	}
	return summaries, rows.Err()
}

func (s *Store) GetTodayTotal(ctx context.Context) (int64, error) {
	today := time.Now().UTC().Format("2006-01-02")
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(duration), 0)
		FROM time_entries
		WHERE date(start_time) = ?`, today,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("today total: %w", err)
	}
	return total, nil
}

func scanEntry(r rowScanner) (*TimeEntry, error) {
	e := &TimeEntry{}
	var startTime, endTime, createdAt string
	if err := r.Scan(&e.ID, &e.TaskID, &e.OperatorID, &startTime, &endTime, &e.Duration, &e.Notes, &createdAt); err != nil {
		return nil, err
	}
	e.StartTime = parseTime(startTime)
	e.EndTime = parseTime(endTime)
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}
