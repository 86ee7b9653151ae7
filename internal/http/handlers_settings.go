package http

import (
	"net/http"
	"time"

	"caretaker/internal/auth"
	"caretaker/internal/core"
	"caretaker/internal/services"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request, session auth.Session) {
	settings, err := s.settings.Settings(r.Context(), session.FamilyID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request, session auth.Session) {
	var in services.FamilySettings
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.settings.UpdateSettings(r.Context(), session.FamilyID, in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// Base amount and yearly overrides feed every computed month.
	s.payslips.InvalidateFamily(session.FamilyID)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetCharges(w http.ResponseWriter, r *http.Request, session auth.Session) {
	charges, err := s.settings.Charges(r.Context(), session.FamilyID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, charges)
}

func (s *Server) handleUpdateCharges(w http.ResponseWriter, r *http.Request, session auth.Session) {
	var in core.ActivityCharges
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.settings.UpdateCharges(r.Context(), session.FamilyID, in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.payslips.InvalidateFamily(session.FamilyID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetCalcParams(w http.ResponseWriter, r *http.Request, session auth.Session) {
	params, err := s.settings.CalcParams(r.Context(), session.FamilyID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

func (s *Server) handleUpdateCalcParams(w http.ResponseWriter, r *http.Request, session auth.Session) {
	var in core.CalcParams
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.settings.UpdateCalcParams(r.Context(), session.FamilyID, in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleYearlyPayments(w http.ResponseWriter, r *http.Request, session auth.Session) {
	payments, err := s.settings.YearlyPayments(r.Context(), session.FamilyID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if payments == nil {
		payments = core.YearlyPayments{}
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) handleUpdateYearlyPaymentSet(w http.ResponseWriter, r *http.Request, session auth.Session) {
	var in core.YearlyPaymentSet
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.settings.UpdateYearlyPaymentSet(r.Context(), session.FamilyID, r.PathValue("yearKey"), in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.payslips.InvalidateFamily(session.FamilyID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContractYears(w http.ResponseWriter, r *http.Request, session auth.Session) {
	includeFuture := r.URL.Query().Get("includeFuture") == "true"
	years, err := s.settings.ContractYears(r.Context(), session.FamilyID, time.Now(), includeFuture)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "contract start date not configured")
		return
	}
	writeJSON(w, http.StatusOK, years)
}

func (s *Server) handleExpectedExpenses(w http.ResponseWriter, r *http.Request, session auth.Session) {
	expenses, err := s.settings.ExpectedExpenses(r.Context(), session.FamilyID, r.PathValue("yearKey"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}
