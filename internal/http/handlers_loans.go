package http

import (
	"net/http"
	"strings"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
)

// handleListLoans lists every loan, or one direction with ?direction=LENT|BORROWED.
func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	dir := core.LoanDirection(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("direction"))))
	if dir == "" {
		loans, err := s.svc.Engine().Loans(r.Context())
		if err != nil {
			errorFor(r.Context(), err).Write(w)
			return
		}
		NewResponse().JSON(nonNil(loans)).Write(w)
		return
	}
	loans, err := s.svc.Engine().LoansByDirection(r.Context(), dir)
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().JSON(nonNil(loans)).Write(w)
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := decodeJSONLimit(w, r, &req, maxEvidenceBodyBytes); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	receipt, err := s.svc.CreateLoan(r.Context(), req.input())
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Loan created",
		applog.FieldLoanID, receipt.Loan.ID,
		applog.FieldDirection, string(receipt.Loan.Type),
		"contact_created", receipt.ContactCreated)
	NewResponse().Status(http.StatusCreated).JSON(receipt).Write(w)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := s.svc.Engine().Loan(r.Context(), r.PathValue("id"))
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().JSON(loan).Write(w)
}

// handleLoanHistory returns the loan's transactions, 404 for an unknown loan.
func (s *Server) handleLoanHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.svc.Engine().LoanHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().JSON(nonNil(history)).Write(w)
}

func (s *Server) handleRegisterPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSONLimit(w, r, &req, maxEvidenceBodyBytes); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	receipt, err := s.svc.RegisterPayment(r.Context(), req.input(r.PathValue("id")))
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Payment registered",
		applog.FieldLoanID, receipt.Loan.ID,
		applog.FieldRemaining, receipt.Loan.RemainingAmount.String(),
		"settled", receipt.Settled)
	NewResponse().Status(http.StatusCreated).JSON(receipt).Write(w)
}
