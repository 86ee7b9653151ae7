package http

import (
	"net/http"
	"strconv"
	"time"

	"caretaker/internal/auth"
	"caretaker/internal/core"
)

func (s *Server) handleWorklogMonth(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	activities, err := s.worklog.Month(r.Context(), session.FamilyID, monthKey)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if activities == nil {
		activities = []core.Activity{}
	}
	writeJSON(w, http.StatusOK, activities)
}

func (s *Server) handleAddActivity(w http.ResponseWriter, r *http.Request, session auth.Session) {
	var in struct {
		Type core.ActivityType `json:"type"`
		Date string            `json:"date"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	activity, err := s.worklog.AddActivity(r.Context(), session, in.Type, in.Date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// The payslip view derives its one-time payment lines from the
	// worklog; cached months are stale now.
	s.payslips.InvalidateFamily(session.FamilyID)

	writeJSON(w, http.StatusCreated, activity)
}

func (s *Server) handleDeleteActivity(w http.ResponseWriter, r *http.Request, session auth.Session) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid activity id")
		return
	}

	if err := s.worklog.DeleteActivity(r.Context(), session, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.payslips.InvalidateFamily(session.FamilyID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAllowances(w http.ResponseWriter, r *http.Request, session auth.Session) {
	start, err := s.settings.ContractStart(r.Context(), session.FamilyID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "contract start date not configured")
		return
	}

	allowances, err := s.worklog.Allowances(r.Context(), session.FamilyID, start, time.Now())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, allowances)
}
