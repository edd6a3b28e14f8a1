package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/internal/service"
	"github.com/jainuniversity/campus-portal/pkg/errors"
)

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "Campus portal API is running")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.auth.Login(r.Context(), req, clientIP(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Login successful",
		User:    result.Principal,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, err := service.CurrentPrincipal(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, User: principal})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.Logout(r.Context(), clientIP(r))
	s.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "Logout successful")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	role, ok := models.ParseRole(chi.URLParam(r, "role"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "Route not found")
		return
	}

	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	actor, _ := service.PrincipalFromContext(r.Context())
	account, err := s.accounts.Register(r.Context(), actor, role, req, false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: roleTitle(role) + " registered successfully",
		User:    account,
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	principal, _ := service.PrincipalFromContext(r.Context())
	if err := s.accounts.ChangePassword(r.Context(), principal, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password updated successfully")
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	role, ok := models.ParseRole(chi.URLParam(r, "role"))
	if !ok {
		s.writeError(w, r, errors.Validation("Invalid role"))
		return
	}

	var req models.StatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.IsActive == nil {
		s.writeError(w, r, errors.Validation("isActive is required"))
		return
	}

	actor, _ := service.PrincipalFromContext(r.Context())
	if err := s.accounts.SetActive(r.Context(), actor, role, chi.URLParam(r, "id"), *req.IsActive); err != nil {
		s.writeError(w, r, err)
		return
	}

	message := "Account deactivated"
	if *req.IsActive {
		message = "Account activated"
	}
	writeMessage(w, http.StatusOK, message)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	role, ok := models.ParseRole(chi.URLParam(r, "role"))
	if !ok {
		s.writeError(w, r, errors.Validation("Invalid role"))
		return
	}

	actor, _ := service.PrincipalFromContext(r.Context())
	if err := s.accounts.Unlock(r.Context(), actor, role, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Account unlocked")
}

func roleTitle(role models.Role) string {
	name := role.String()
	return strings.ToUpper(name[:1]) + name[1:]
}
