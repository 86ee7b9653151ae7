package http

import (
	"net/http"
	"strconv"

	"caretaker/internal/auth"
	"caretaker/internal/core"
)

func (s *Server) handleShevahMonth(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	rows, err := s.shevah.Month(r.Context(), session.FamilyID, monthKey)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []core.ShevahRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleAddShevah(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	var in struct {
		Hours         float64 `json:"hours"`
		AmountPerHour float64 `json:"amountPerHour"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	row, err := s.shevah.Add(r.Context(), session.FamilyID, monthKey, in.Hours, in.AmountPerHour)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// Coverage offsets the base amount, so the month's cached payslip
	// view is stale.
	s.payslips.InvalidateFamily(session.FamilyID)

	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleDeleteShevah(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid row id")
		return
	}

	if err := s.shevah.Delete(r.Context(), session.FamilyID, monthKey, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.payslips.InvalidateFamily(session.FamilyID)
	w.WriteHeader(http.StatusNoContent)
}
