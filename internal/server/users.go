package server

import (
	"net/http"

	"github.com/sadopc/teamworkflow/internal/store"
)

// ==================== Users & roles ====================

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	s.respond(w, users, err)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var u store.User
	if err := decode(r, &u); err != nil {
		s.fail(w, err)
		return
	}
	// New accounts start as guests unless an admin promotes them.
	if u.Role != "" && u.Role != store.RoleGuest {
		s.fail(w, badRequest("new users are created as guests; use the role endpoint"))
		return
	}
	err := s.store.CreateUser(r.Context(), &u)
	s.respondStatus(w, http.StatusCreated, u, err)
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, err)
		return
	}
	var body struct {
		ActorID int64      `json:"actor_id"`
		Role    store.Role `json:"role"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.roles.ChangeRole(r.Context(), body.ActorID, id, body.Role); err != nil {
		s.fail(w, err)
		return
	}
	u, err := s.store.GetUser(r.Context(), id)
	s.respond(w, u, err)
}

func (s *Server) handleListDemotions(w http.ResponseWriter, r *http.Request) {
	status := store.DemotionStatus(r.URL.Query().Get("status"))
	reqs, err := s.store.ListDemotions(r.Context(), status)
	s.respond(w, reqs, err)
}

func (s *Server) handleRequestDemotion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequesterID int64  `json:"requester_id"`
		TargetID    int64  `json:"target_id"`
		Reason      string `json:"reason"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	req, err := s.roles.RequestDemotion(r.Context(), body.RequesterID, body.TargetID, body.Reason)
	s.respondStatus(w, http.StatusCreated, req, err)
}

type deciderBody struct {
	ActorID int64 `json:"actor_id"`
}

func (s *Server) handleApproveDemotion(w http.ResponseWriter, r *http.Request) {
	var body deciderBody
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	req, err := s.roles.ApproveDemotion(r.Context(), body.ActorID, r.PathValue("id"))
	s.respond(w, req, err)
}

func (s *Server) handleRejectDemotion(w http.ResponseWriter, r *http.Request) {
	var body deciderBody
	if err := decode(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	req, err := s.roles.RejectDemotion(r.Context(), body.ActorID, r.PathValue("id"))
	s.respond(w, req, err)
}
