package http

import (
	"net/http"

	"caretaker/internal/auth"
)

func (s *Server) handleSelfTest(w http.ResponseWriter, r *http.Request, session auth.Session) {
	result := s.stores.Family(session.FamilyID).SelfTest(r.Context())
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request, session auth.Session) {
	count, err := s.stores.Family(session.FamilyID).SyncAllFromBackend(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// A full pull may have replaced any of the keys the views derive
	// from.
	s.payslips.InvalidateFamily(session.FamilyID)

	writeJSON(w, http.StatusOK, map[string]int{"keysSynced": count})
}
