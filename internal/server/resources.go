package server

import (
	"net/http"

	"github.com/sadopc/teamworkflow/internal/store"
)

// ==================== Projects ====================

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	archived, err := queryBool(r, "archived")
	if err != nil {
		s.fail(w, err)
		return
	}
	projects, err := s.store.ListProjects(r.Context(), archived != nil && *archived)
	s.respond(w, projects, err)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var p store.Project
	if err := decode(r, &p); err != nil {
		s.fail(w, err)
		return
	}
	err := s.store.CreateProject(r.Context(), &p)
	s.respondStatus(w, http.StatusCreated, p, err)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.store.GetProject(r.Context(), id)
	s.respond(w, p, err)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := decode(r, p); err != nil {
		s.fail(w, err)
		return
	}
	p.ID = id
	err = s.store.UpdateProject(r.Context(), p)
	s.respond(w, p, err)
}

// handleArchiveProject archives rather than deletes; tasks keep their history.
func (s *Server) handleArchiveProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondStatus(w, http.StatusNoContent, nil, s.store.ArchiveProject(r.Context(), id))
}

// ==================== Parts ====================

func (s *Server) handleListParts(w http.ResponseWriter, r *http.Request) {
	projectID, err := queryInt(r, "project_id")
	if err != nil {
		s.fail(w, err)
		return
	}
	parts, err := s.store.ListParts(r.Context(), projectID)
	s.respond(w, parts, err)
}

func (s *Server) handleCreatePart(w http.ResponseWriter, r *http.Request) {
	var p store.Part
	if err := decode(r, &p); err != nil {
		s.fail(w, err)
		return
	}
	err := s.store.CreatePart(r.Context(), &p)
	s.respondStatus(w, http.StatusCreated, p, err)
}

func (s *Server) handleGetPart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.store.GetPart(r.Context(), id)
	s.respond(w, p, err)
}

func (s *Server) handleUpdatePart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.store.GetPart(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := decode(r, p); err != nil {
		s.fail(w, err)
		return
	}
	p.ID = id
	err = s.store.UpdatePart(r.Context(), p)
	s.respond(w, p, err)
}

func (s *Server) handleDeletePart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondStatus(w, http.StatusNoContent, nil, s.store.DeletePart(r.Context(), id))
}

// ==================== Machines ====================

func (s *Server) handleListMachines(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		s.fail(w, err)
		return
	}
	machines, err := s.store.ListMachines(r.Context(), active != nil && *active)
	s.respond(w, machines, err)
}

func (s *Server) handleCreateMachine(w http.ResponseWriter, r *http.Request) {
	hours, err := s.store.GetFloatSetting(r.Context(), store.SettingDefaultCapacityHours, 40)
	if err != nil {
		s.fail(w, err)
		return
	}
	m := store.Machine{Active: true, CapacityHours: hours}
	if err := decode(r, &m); err != nil {
		s.fail(w, err)
		return
	}
	err = s.store.CreateMachine(r.Context(), &m)
	s.respondStatus(w, http.StatusCreated, m, err)
}

func (s *Server) handleGetMachine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	m, err := s.store.GetMachine(r.Context(), id)
	s.respond(w, m, err)
}

func (s *Server) handleUpdateMachine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	m, err := s.store.GetMachine(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := decode(r, m); err != nil {
		s.fail(w, err)
		return
	}
	m.ID = id
	err = s.store.UpdateMachine(r.Context(), m)
	s.respond(w, m, err)
}

func (s *Server) handleDeleteMachine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondStatus(w, http.StatusNoContent, nil, s.store.DeleteMachine(r.Context(), id))
}

// ==================== Operators ====================

func (s *Server) handleListOperators(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		s.fail(w, err)
		return
	}
	operators, err := s.store.ListOperators(r.Context(), active != nil && *active)
	s.respond(w, operators, err)
}

func (s *Server) handleCreateOperator(w http.ResponseWriter, r *http.Request) {
	hours, err := s.store.GetFloatSetting(r.Context(), store.SettingDefaultCapacityHours, 40)
	if err != nil {
		s.fail(w, err)
		return
	}
	o := store.Operator{Active: true, CapacityHours: hours}
	if err := decode(r, &o); err != nil {
		s.fail(w, err)
		return
	}
	err = s.store.CreateOperator(r.Context(), &o)
	s.respondStatus(w, http.StatusCreated, o, err)
}

func (s *Server) handleGetOperator(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	o, err := s.store.GetOperator(r.Context(), id)
	s.respond(w, o, err)
}

func (s *Server) handleUpdateOperator(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	o, err := s.store.GetOperator(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := decode(r, o); err != nil {
		s.fail(w, err)
		return
	}
	o.ID = id
	err = s.store.UpdateOperator(r.Context(), o)
	s.respond(w, o, err)
}

func (s *Server) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	var body struct {
		Availability store.Availability `json:"availability"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.store.SetOperatorAvailability(r.Context(), id, body.Availability); err != nil {
		s.fail(w, err)
		return
	}
	o, err := s.store.GetOperator(r.Context(), id)
	s.respond(w, o, err)
}

// ==================== Tasks ====================

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var f store.TaskFilter
	var err error
	if f.ProjectID, err = queryInt(r, "project_id"); err != nil {
		s.fail(w, err)
		return
	}
	if f.InSprint, err = queryBool(r, "in_sprint"); err != nil {
		s.fail(w, err)
		return
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := store.TaskStatus(v)
		if !status.IsValid() {
			s.fail(w, badRequest("invalid status %q", v))
			return
		}
		f.Status = &status
	}
	tasks, err := s.store.ListTasks(r.Context(), f)
	s.respond(w, tasks, err)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var t store.Task
	if err := decode(r, &t); err != nil {
		s.fail(w, err)
		return
	}
	err := s.store.CreateTask(r.Context(), &t)
	s.respondStatus(w, http.StatusCreated, t, err)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	t, err := s.store.GetTask(r.Context(), id)
	s.respond(w, t, err)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	t, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := decode(r, t); err != nil {
		s.fail(w, err)
		return
	}
	t.ID = id
	if err := s.store.UpdateTask(r.Context(), t); err != nil {
		s.fail(w, err)
		return
	}
	// Re-read so fields the update ignores (status, sprint) reflect the store.
	t, err = s.store.GetTask(r.Context(), id)
	s.respond(w, t, err)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondStatus(w, http.StatusNoContent, nil, s.store.DeleteTask(r.Context(), id))
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	var body struct {
		Status store.TaskStatus `json:"status"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.store.UpdateTaskStatus(r.Context(), id, body.Status); err != nil {
		s.fail(w, err)
		return
	}
	t, err := s.store.GetTask(r.Context(), id)
	s.respond(w, t, err)
}

func (s *Server) handleTaskOperators(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	operators, err := s.store.TaskOperators(r.Context(), id)
	s.respond(w, operators, err)
}

func (s *Server) handleAssignOperator(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	var body struct {
		OperatorID int64 `json:"operator_id"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.store.GetOperator(r.Context(), body.OperatorID); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.store.AssignOperator(r.Context(), id, body.OperatorID); err != nil {
		s.fail(w, err)
		return
	}
	operators, err := s.store.TaskOperators(r.Context(), id)
	s.respond(w, operators, err)
}

func (s *Server) handleUnassignOperator(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	operatorID, err := pathID(r, "operatorID")
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respondStatus(w, http.StatusNoContent, nil, s.store.UnassignOperator(r.Context(), id, operatorID))
}

func (s *Server) handleTaskVariance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	v, err := s.tracker.Variance(r.Context(), id)
	s.respond(w, v, err)
}

func (s *Server) handleTaskEntries(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	entries, err := s.store.ListEntries(r.Context(), store.EntryFilter{TaskID: &id})
	s.respond(w, entries, err)
}

// ==================== Settings ====================

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetAllSettings(r.Context())
	s.respond(w, settings, err)
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var body struct {
		Value string `json:"value"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.store.GetSetting(r.Context(), key); err != nil {
		s.fail(w, err)
		return
	}
	err := s.store.SetSettings(r.Context(), map[string]string{key: body.Value})
	s.respond(w, store.Setting{Key: key, Value: body.Value}, err)
}
