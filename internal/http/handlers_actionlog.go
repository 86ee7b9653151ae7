package http

import (
	"net/http"

	"caretaker/internal/actionlog"
	"caretaker/internal/auth"
	"caretaker/internal/core"
)

func (s *Server) handleActionLog(w http.ResponseWriter, r *http.Request, session auth.Session) {
	roleFilter := core.Role(r.URL.Query().Get("role"))
	if roleFilter != "" && !core.ValidRole(roleFilter) {
		writeError(w, http.StatusBadRequest, "invalid role filter")
		return
	}

	entries, err := s.actions.Entries(r.Context(), session, roleFilter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []actionlog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearActionLog(w http.ResponseWriter, r *http.Request, session auth.Session) {
	if err := s.actions.Clear(r.Context(), session); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
