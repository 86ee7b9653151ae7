package http

import (
	"net/http"
	"strconv"
	"strings"

	"caretaker/internal/auth"
	"caretaker/internal/core"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	session, err := s.auth.Register(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// A new family starts from the stock settings and charge table.
	if err := s.settings.Initialize(r.Context(), session.FamilyID, in.FamilyName, in.ContractStartDate, in.MonthlyBaseAmount); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := s.auth.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// Older accounts pick up charge-table and calc-param keys that were
	// introduced after they registered.
	if err := s.settings.EnsureDefaults(r.Context(), session.FamilyID); err != nil {
		s.logger.WarnContext(r.Context(), "Failed to ensure defaults at login",
			"family_id", session.FamilyID, "error", err)
	}

	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		s.auth.Logout(token)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, session auth.Session) {
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, session auth.Session) {
	users, err := s.auth.FamilyUsers(r.Context(), session)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request, session auth.Session) {
	var in struct {
		Username string    `json:"username"`
		Password string    `json:"password"`
		Role     core.Role `json:"role"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(in.Username) == "" || len(in.Password) < 4 || !core.ValidRole(in.Role) {
		writeError(w, http.StatusUnprocessableEntity, "username, password of 4+ characters and a valid role are required")
		return
	}

	user, err := s.auth.AddFamilyUser(r.Context(), session, in.Username, in.Password, in.Role)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, session auth.Session) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := s.auth.DeleteFamilyUser(r.Context(), session, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
