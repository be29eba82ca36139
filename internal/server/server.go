package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sadopc/teamworkflow/internal/roles"
	"github.com/sadopc/teamworkflow/internal/sprint"
	"github.com/sadopc/teamworkflow/internal/store"
	"github.com/sadopc/teamworkflow/internal/tracker"
)

var errBadRequest = errors.New("bad request")

type Server struct {
	store   *store.Store
	planner *sprint.Planner
	tracker *tracker.Tracker
	roles   *roles.Manager
	log     *log.Logger
	server  *http.Server
}

func NewServer(st *store.Store, p *sprint.Planner, tr *tracker.Tracker, rm *roles.Manager, logger *log.Logger) *Server {
	return &Server{store: st, planner: p, tracker: tr, roles: rm, log: logger}
}

// Handler returns the API routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("PUT /api/projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleArchiveProject)

	mux.HandleFunc("GET /api/parts", s.handleListParts)
	mux.HandleFunc("POST /api/parts", s.handleCreatePart)
	mux.HandleFunc("GET /api/parts/{id}", s.handleGetPart)
	mux.HandleFunc("PUT /api/parts/{id}", s.handleUpdatePart)
	mux.HandleFunc("DELETE /api/parts/{id}", s.handleDeletePart)

	mux.HandleFunc("GET /api/machines", s.handleListMachines)
	mux.HandleFunc("POST /api/machines", s.handleCreateMachine)
	mux.HandleFunc("GET /api/machines/{id}", s.handleGetMachine)
	mux.HandleFunc("PUT /api/machines/{id}", s.handleUpdateMachine)
	mux.HandleFunc("DELETE /api/machines/{id}", s.handleDeleteMachine)

	mux.HandleFunc("GET /api/operators", s.handleListOperators)
	mux.HandleFunc("POST /api/operators", s.handleCreateOperator)
	mux.HandleFunc("GET /api/operators/{id}", s.handleGetOperator)
	mux.HandleFunc("PUT /api/operators/{id}", s.handleUpdateOperator)
	mux.HandleFunc("PUT /api/operators/{id}/availability", s.handleSetAvailability)

	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PUT /api/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("PUT /api/tasks/{id}/status", s.handleTaskStatus)
	mux.HandleFunc("GET /api/tasks/{id}/operators", s.handleTaskOperators)
	mux.HandleFunc("POST /api/tasks/{id}/operators", s.handleAssignOperator)
	mux.HandleFunc("DELETE /api/tasks/{id}/operators/{operatorID}", s.handleUnassignOperator)
	mux.HandleFunc("GET /api/tasks/{id}/variance", s.handleTaskVariance)
	mux.HandleFunc("GET /api/tasks/{id}/entries", s.handleTaskEntries)

	mux.HandleFunc("GET /api/sprint", s.handleSprint)
	mux.HandleFunc("GET /api/sprint/capacity", s.handleCapacity)
	mux.HandleFunc("GET /api/sprint/backlog", s.handleBacklog)
	mux.HandleFunc("GET /api/sprint/validate/{id}", s.handleValidate)
	mux.HandleFunc("POST /api/sprint/auto-assign", s.handleAutoAssign)
	mux.HandleFunc("POST /api/sprint/tasks/{id}", s.handleAddToSprint)
	mux.HandleFunc("DELETE /api/sprint/tasks/{id}", s.handleRemoveFromSprint)
	mux.HandleFunc("PUT /api/sprint/order", s.handleReorder)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions/start", s.handleStart)
	mux.HandleFunc("POST /api/sessions/pause", s.handlePause)
	mux.HandleFunc("POST /api/sessions/resume", s.handleResume)
	mux.HandleFunc("POST /api/sessions/finish", s.handleFinish)

	mux.HandleFunc("GET /api/entries", s.handleListEntries)
	mux.HandleFunc("GET /api/reports/daily", s.handleDailyReport)

	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("PUT /api/users/{id}/role", s.handleChangeRole)
	mux.HandleFunc("GET /api/demotions", s.handleListDemotions)
	mux.HandleFunc("POST /api/demotions", s.handleRequestDemotion)
	mux.HandleFunc("POST /api/demotions/{id}/approve", s.handleApproveDemotion)
	mux.HandleFunc("POST /api/demotions/{id}/reject", s.handleRejectDemotion)

	mux.HandleFunc("GET /api/settings", s.handleListSettings)
	mux.HandleFunc("PUT /api/settings/{key}", s.handleSetSetting)

	return s.logRequests(mux)
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("listening", "addr", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

func (s *Server) respond(w http.ResponseWriter, data any, err error) {
	s.respondStatus(w, http.StatusOK, data, err)
}

func (s *Server) respondStatus(w http.ResponseWriter, status int, data any, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "err", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, store.ErrInvalid),
		errors.Is(err, sprint.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, roles.ErrForbidden),
		errors.Is(err, roles.ErrSelfApproval):
		return http.StatusForbidden
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, tracker.ErrInvalidState),
		errors.Is(err, roles.ErrApprovalRequired),
		errors.Is(err, roles.ErrLastAdmin),
		errors.Is(err, roles.ErrNotPending),
		errors.Is(err, roles.ErrDuplicateRequest),
		errors.Is(err, roles.ErrNotAdmin):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errBadRequest)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

// decodeOptional is decode for endpoints whose body may be omitted. An empty
// body leaves v untouched, whether or not the client sent a Content-Length.
func decodeOptional(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, r.PathValue(name))
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (*int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, badRequest("invalid %s %q", name, v)
	}
	return &n, nil
}

func queryBool(r *http.Request, name string) (*bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, badRequest("invalid %s %q", name, v)
	}
	return &b, nil
}

// queryDate parses YYYY-MM-DD or RFC3339 values.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, badRequest("invalid %s %q", name, v)
	}
	return &t, nil
}
