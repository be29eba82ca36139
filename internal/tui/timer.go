package tui

import (
	"context"
	"time"

	"github.com/sadopc/teamworkflow/internal/store"
	"github.com/sadopc/teamworkflow/internal/tracker"
)

// timerModel mirrors the open work sessions on the floor. The tracker owns
// the state; the model keeps a snapshot and a clock for live elapsed times.
type timerModel struct {
	tracker  *tracker.Tracker
	sessions []store.WorkSession
	now      time.Time
}

func newTimerModel(tr *tracker.Tracker) timerModel {
	return timerModel{tracker: tr, now: tr.Now()}
}

func (t *timerModel) load(ctx context.Context) error {
	sessions, err := t.tracker.ActiveSessions(ctx)
	if err != nil {
		return err
	}
	t.sessions = sessions
	t.now = t.tracker.Now()
	return nil
}

func (t *timerModel) tick() {
	t.now = t.tracker.Now()
}

func (t *timerModel) start(ctx context.Context, taskID, operatorID int64, notes string) (*store.WorkSession, error) {
	ws, err := t.tracker.Start(ctx, taskID, operatorID, notes)
	if err != nil {
		return nil, err
	}
	return ws, t.load(ctx)
}

// toggle pauses an active session or resumes a paused one.
func (t *timerModel) toggle(ctx context.Context, i int) error {
	if i < 0 || i >= len(t.sessions) {
		return nil
	}
	ws := t.sessions[i]
	var err error
	if ws.State == store.SessionPaused {
		_, err = t.tracker.Resume(ctx, ws.TaskID, ws.OperatorID)
	} else {
		_, err = t.tracker.Pause(ctx, ws.TaskID, ws.OperatorID)
	}
	if err != nil {
		return err
	}
	return t.load(ctx)
}

func (t *timerModel) finish(ctx context.Context, i int, notes string) (*store.TimeEntry, error) {
	if i < 0 || i >= len(t.sessions) {
		return nil, nil
	}
	ws := t.sessions[i]
	entry, err := t.tracker.Finish(ctx, ws.TaskID, ws.OperatorID, notes)
	if err != nil {
		return nil, err
	}
	return entry, t.load(ctx)
}

func (t timerModel) elapsed(i int) time.Duration {
	if i < 0 || i >= len(t.sessions) {
		return 0
	}
	return tracker.Elapsed(&t.sessions[i], t.now)
}

// counts returns how many sessions are running and how many are paused.
func (t timerModel) counts() (active, paused int) {
	for _, ws := range t.sessions {
		if ws.State == store.SessionPaused {
			paused++
		} else {
			active++
		}
	}
	return active, paused
}
