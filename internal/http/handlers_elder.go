package http

import (
	"net/http"
	"strconv"

	"caretaker/internal/auth"
	"caretaker/internal/core"
)

// elderMonthList wraps a month's entries with the month actually
// served, which differs from the requested one when the previous-month
// fallback kicked in.
type elderMonthList[T any] struct {
	MonthKey string `json:"monthKey"`
	Entries  []T    `json:"entries"`
}

func (s *Server) handleElderFinancials(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	entries, source, err := s.elder.Financials(r.Context(), session.FamilyID, monthKey)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.ElderFinancialEntry{}
	}
	writeJSON(w, http.StatusOK, elderMonthList[core.ElderFinancialEntry]{MonthKey: source, Entries: entries})
}

func (s *Server) handleAddElderFinancial(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	var in core.ElderFinancialEntry
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := s.elder.AddFinancial(r.Context(), session.FamilyID, monthKey, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDeleteElderFinancial(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	if err := s.elder.DeleteFinancial(r.Context(), session.FamilyID, monthKey, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleElderExpenses(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	entries, source, err := s.elder.Expenses(r.Context(), session.FamilyID, monthKey)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.ElderExpenseEntry{}
	}
	writeJSON(w, http.StatusOK, elderMonthList[core.ElderExpenseEntry]{MonthKey: source, Entries: entries})
}

func (s *Server) handleAddElderExpense(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	var in core.ElderExpenseEntry
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := s.elder.AddExpense(r.Context(), session.FamilyID, monthKey, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDeleteElderExpense(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	if err := s.elder.DeleteExpense(r.Context(), session.FamilyID, monthKey, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleElderBalance(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	balance, err := s.elder.Balance(r.Context(), session.FamilyID, monthKey)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}
