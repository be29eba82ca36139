package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sadopc/teamworkflow/internal/store"
)

// ErrInvalidState is returned (wrapped) when an operation is not allowed
// from the session's current state.
var ErrInvalidState = errors.New("invalid session state")

// Tracker runs the work-session state machine for (task, operator) pairs:
// idle -> active -> paused -> active -> finished.
type Tracker struct {
	store *store.Store
	log   *log.Logger
	now   func() time.Time
}

type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

func New(s *store.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store: s,
		log:   log.New(io.Discard),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start opens a session for the pair. An open task moves to in_progress.
func (t *Tracker) Start(ctx context.Context, taskID, operatorID int64, notes string) (*store.WorkSession, error) {
	now := t.now().UTC()
	ws := &store.WorkSession{
		ID:            uuid.NewString(),
		TaskID:        taskID,
		OperatorID:    operatorID,
		State:         store.SessionActive,
		StartedAt:     now,
		LastResumedAt: now,
		Notes:         notes,
	}

	err := t.store.InTx(ctx, func(tx *store.Tx) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if _, err := tx.GetOperator(ctx, operatorID); err != nil {
			return err
		}
		if !task.Status.Workable() {
			return fmt.Errorf("task %d is %s: %w", taskID, task.Status, ErrInvalidState)
		}
		existing, err := tx.GetSession(ctx, taskID, operatorID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("session already %s: %w", existing.State, ErrInvalidState)
		}
		if err := tx.InsertSession(ctx, ws); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("session already open: %w", ErrInvalidState)
			}
			return err
		}
		if task.Status == store.TaskOpen {
			return tx.SetTaskStatus(ctx, taskID, store.TaskInProgress, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.log.Info("work started", "task", taskID, "operator", operatorID, "session", ws.ID)
	return ws, nil
}

// Pause folds the running interval into the accumulated time.
func (t *Tracker) Pause(ctx context.Context, taskID, operatorID int64) (*store.WorkSession, error) {
	ws, err := t.transition(ctx, taskID, operatorID, func(ws *store.WorkSession, now time.Time) error {
		if ws.State != store.SessionActive {
			return fmt.Errorf("cannot pause a %s session: %w", ws.State, ErrInvalidState)
		}
		ws.AccumulatedSecs += intervalSecs(ws.LastResumedAt, now)
		ws.State = store.SessionPaused
		ws.PausedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.log.Debug("work paused", "task", taskID, "operator", operatorID, "accumulated", ws.AccumulatedSecs)
	return ws, nil
}

func (t *Tracker) Resume(ctx context.Context, taskID, operatorID int64) (*store.WorkSession, error) {
	ws, err := t.transition(ctx, taskID, operatorID, func(ws *store.WorkSession, now time.Time) error {
		if ws.State != store.SessionPaused {
			return fmt.Errorf("cannot resume a %s session: %w", ws.State, ErrInvalidState)
		}
		ws.State = store.SessionActive
		ws.PausedAt = nil
		ws.LastResumedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.log.Debug("work resumed", "task", taskID, "operator", operatorID)
	return ws, nil
}

// transition reads, changes and writes a session in one transaction so two
// concurrent pauses cannot both fold the same interval.
func (t *Tracker) transition(ctx context.Context, taskID, operatorID int64, apply func(*store.WorkSession, time.Time) error) (*store.WorkSession, error) {
	now := t.now().UTC()
	var ws *store.WorkSession
	err := t.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		ws, err = tx.GetSession(ctx, taskID, operatorID)
		if err != nil {
			return err
		}
		if ws == nil {
			return fmt.Errorf("no open session for task %d and operator %d: %w", taskID, operatorID, ErrInvalidState)
		}
		if err := apply(ws, now); err != nil {
			return err
		}
		return tx.UpdateSession(ctx, ws)
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// Finish closes the session: the active time becomes a time entry and is
// added to the task's actual hours, all in one transaction.
func (t *Tracker) Finish(ctx context.Context, taskID, operatorID int64, notes string) (*store.TimeEntry, error) {
	now := t.now().UTC()
	var entry *store.TimeEntry

	err := t.store.InTx(ctx, func(tx *store.Tx) error {
		ws, err := tx.GetSession(ctx, taskID, operatorID)
		if err != nil {
			return err
		}
		if ws == nil {
			return fmt.Errorf("no open session for task %d and operator %d: %w", taskID, operatorID, ErrInvalidState)
		}

		secs := int64(Elapsed(ws, now) / time.Second)
		entry = &store.TimeEntry{
			TaskID:     taskID,
			OperatorID: operatorID,
			StartTime:  ws.StartedAt,
			EndTime:    now,
			Duration:   secs,
			Notes:      joinNotes(ws.Notes, notes),
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}
		if err := tx.DeleteSession(ctx, ws.ID); err != nil {
			return err
		}
		return tx.AddActualHours(ctx, taskID, float64(secs)/3600)
	})
	if err != nil {
		return nil, err
	}
	t.log.Info("work finished", "task", taskID, "operator", operatorID, "seconds", entry.Duration)
	return entry, nil
}

// Current returns the open session for the pair, or nil when idle.
func (t *Tracker) Current(ctx context.Context, taskID, operatorID int64) (*store.WorkSession, error) {
	return t.store.GetSession(ctx, taskID, operatorID)
}

func (t *Tracker) ActiveSessions(ctx context.Context) ([]store.WorkSession, error) {
	return t.store.ListSessions(ctx)
}

// Now exposes the tracker clock so callers can compute Elapsed consistently.
func (t *Tracker) Now() time.Time {
	return t.now()
}

// Elapsed is the active time of a session at now; paused stretches do not count.
func Elapsed(ws *store.WorkSession, now time.Time) time.Duration {
	secs := ws.AccumulatedSecs
	if ws.State == store.SessionActive {
		secs += intervalSecs(ws.LastResumedAt, now)
	}
	return time.Duration(secs) * time.Second
}

func intervalSecs(from, to time.Time) int64 {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

func joinNotes(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n" + b
}
