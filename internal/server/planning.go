package server

import (
	"net/http"
	"time"

	"github.com/sadopc/teamworkflow/internal/sprint"
	"github.com/sadopc/teamworkflow/internal/store"
	"github.com/sadopc/teamworkflow/internal/tracker"
)

// ==================== Sprint ====================

type sprintResponse struct {
	Summary *sprint.Summary `json:"summary"`
	Tasks   []store.Task    `json:"tasks"`
}

type capacityResponse struct {
	*sprint.Capacity
	Operators []sprint.ResourceCapacity `json:"operators"`
	Machines  []sprint.ResourceCapacity `json:"machines"`
}

// decision carries the (ok, reason) outcome of a sprint rule check.
type decision struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleSprint(w http.ResponseWriter, r *http.Request) {
	summary, err := s.planner.Summary(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	tasks, err := s.planner.SprintTasks(r.Context())
	s.respond(w, sprintResponse{Summary: summary, Tasks: tasks}, err)
}

func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := s.planner.GetSprintCapacity(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	operators, err := s.planner.OperatorCapacities(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	machines, err := s.planner.MachineCapacities(ctx)
	s.respond(w, capacityResponse{Capacity: c, Operators: operators, Machines: machines}, err)
}

func (s *Server) handleBacklog(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.planner.Backlog(r.Context())
	s.respond(w, tasks, err)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	ok, reason, err := s.planner.ValidateTaskForSprint(r.Context(), id)
	s.respond(w, decision{OK: ok, Reason: reason}, err)
}

func (s *Server) handleAutoAssign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MaxTasks int `json:"max_tasks"`
	}
	if err := decodeOptional(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	n, err := s.planner.AutoAssignTasksToSprint(r.Context(), body.MaxTasks)
	s.respond(w, map[string]int{"assigned": n}, err)
}

// A refused add or remove is a business-rule conflict; the reason is returned
// with the 409 so clients can show it.
func (s *Server) handleAddToSprint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	ok, reason, err := s.planner.AddTaskToSprint(r.Context(), id)
	s.respondDecision(w, ok, reason, err)
}

func (s *Server) handleRemoveFromSprint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	ok, reason, err := s.planner.RemoveTaskFromSprint(r.Context(), id)
	s.respondDecision(w, ok, reason, err)
}

func (s *Server) respondDecision(w http.ResponseWriter, ok bool, reason string, err error) {
	status := http.StatusOK
	if !ok {
		status = http.StatusConflict
	}
	s.respondStatus(w, status, decision{OK: ok, Reason: reason}, err)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskIDs []int64 `json:"task_ids"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.planner.ReorderSprint(r.Context(), body.TaskIDs); err != nil {
		s.fail(w, err)
		return
	}
	tasks, err := s.planner.SprintTasks(r.Context())
	s.respond(w, tasks, err)
}

// ==================== Sessions ====================

type sessionView struct {
	store.WorkSession
	ElapsedSecs int64 `json:"elapsed_secs"`
}

type sessionRequest struct {
	TaskID     int64  `json:"task_id"`
	OperatorID int64  `json:"operator_id"`
	Notes      string `json:"notes"`
}

func (s *Server) view(ws *store.WorkSession) sessionView {
	return sessionView{
		WorkSession: *ws,
		ElapsedSecs: int64(tracker.Elapsed(ws, s.tracker.Now()) / time.Second),
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.tracker.ActiveSessions(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, s.view(&sessions[i]))
	}
	s.respond(w, views, nil)
}

func decodeSession(r *http.Request) (sessionRequest, error) {
	var req sessionRequest
	if err := decode(r, &req); err != nil {
		return req, err
	}
	if req.TaskID <= 0 || req.OperatorID <= 0 {
		return req, badRequest("task_id and operator_id are required")
	}
	return req, nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSession(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	ws, err := s.tracker.Start(r.Context(), req.TaskID, req.OperatorID, req.Notes)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondStatus(w, http.StatusCreated, s.view(ws), nil)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSession(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	ws, err := s.tracker.Pause(r.Context(), req.TaskID, req.OperatorID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, s.view(ws), nil)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSession(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	ws, err := s.tracker.Resume(r.Context(), req.TaskID, req.OperatorID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, s.view(ws), nil)
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSession(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	entry, err := s.tracker.Finish(r.Context(), req.TaskID, req.OperatorID, req.Notes)
	s.respond(w, entry, err)
}

// ==================== Entries ====================

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	var f store.EntryFilter
	var err error
	if f.TaskID, err = queryInt(r, "task_id"); err != nil {
		s.fail(w, err)
		return
	}
	if f.OperatorID, err = queryInt(r, "operator_id"); err != nil {
		s.fail(w, err)
		return
	}
	if f.From, err = queryDate(r, "from"); err != nil {
		s.fail(w, err)
		return
	}
	if f.To, err = queryDate(r, "to"); err != nil {
		s.fail(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, err)
		return
	}
	if limit != nil {
		f.Limit = int(*limit)
	}
	entries, err := s.store.ListEntries(r.Context(), f)
	s.respond(w, entries, err)
}

// handleDailyReport defaults to the last seven days.
func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		s.fail(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		s.fail(w, err)
		return
	}
	end := s.tracker.Now().UTC()
	if to != nil {
		end = *to
	}
	start := end.AddDate(0, 0, -7)
	if from != nil {
		start = *from
	}
	summary, err := s.store.GetDailySummary(r.Context(), start, end)
	s.respond(w, summary, err)
}
