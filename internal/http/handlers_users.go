package http

import (
	"net/http"
	"sync/atomic"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

type userResponse struct {
	Success bool      `json:"success"`
	User    core.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg core.Registration
	if err := decodeJSONBody(w, r, &reg); err != nil {
		s.writeError(w, r, log.OpRegister, err)
		return
	}

	u, err := s.users.Register(r.Context(), reg)
	if err != nil {
		s.writeError(w, r, log.OpRegister, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.usersRegistered, 1)
	log.FromContext(r.Context()).InfoContext(r.Context(), "User registered", log.FieldUserID, u.ID)
	NewJSONResponse().Status(http.StatusCreated).Body(userResponse{Success: true, User: u}).Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.writeError(w, r, log.OpLogin, err)
		return
	}

	u, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, log.OpLogin, err)
		return
	}

	NewJSONResponse().Body(userResponse{Success: true, User: u}).Write(w)
}
