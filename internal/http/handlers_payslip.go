package http

import (
	"net/http"

	"caretaker/internal/auth"
	"caretaker/internal/core"
)

func (s *Server) handlePayslipMonth(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	view, err := s.payslips.Month(r.Context(), session.FamilyID, monthKey)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type statusBody struct {
	Status core.PaymentStatus `json:"status"`
}

type amountBody struct {
	Amount float64 `json:"amount"`
}

func (s *Server) handleMonthlyStatus(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	var in statusBody
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.payslips.SetMonthlyStatus(r.Context(), session.FamilyID, monthKey, in.Status); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMonthlyPaidAmount(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	var in amountBody
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.payslips.SetMonthlyPaidAmount(r.Context(), session.FamilyID, monthKey, in.Amount); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	var in statusBody
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.payslips.SetPaymentStatus(r.Context(), session.FamilyID, monthKey, r.PathValue("paymentID"), in.Status); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePaymentPaidAmount(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	var in amountBody
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.payslips.SetPaymentPaidAmount(r.Context(), session.FamilyID, monthKey, r.PathValue("paymentID"), in.Amount); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleYearlyStatus(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	var in statusBody
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.payslips.SetYearlyStatus(r.Context(), session.FamilyID, monthKey, r.PathValue("yearKey"), r.PathValue("paymentKey"), in.Status); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleYearlyPaidAmount(w http.ResponseWriter, r *http.Request, session auth.Session) {
	monthKey, err := monthParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	var in amountBody
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.payslips.SetYearlyPaidAmount(r.Context(), session.FamilyID, monthKey, r.PathValue("yearKey"), r.PathValue("paymentKey"), in.Amount); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
