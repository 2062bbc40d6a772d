package http

import (
	"net/http"
	"strings"

	"finanzas/internal/core"
	"finanzas/internal/ledger"
	applog "finanzas/internal/log"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.Engine().Accounts(r.Context())
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().JSON(nonNil(accounts)).Write(w)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	account, err := s.svc.Engine().CreateAccount(r.Context(), req.input())
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(account).Write(w)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.svc.Engine().Contacts(r.Context())
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().JSON(nonNil(contacts)).Write(w)
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	contact, err := s.svc.Engine().CreateContact(r.Context(), req.input())
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(contact).Write(w)
}

// handleListTransactions returns transactions newest first, optionally
// filtered by ?type= and ?accountId=.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	kind := core.TransactionType(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("type"))))
	if kind != "" && !kind.Valid() {
		ValidationErrorResponse(&ledger.ValidationError{Field: "type", Err: core.ErrInvalidKind}).Write(w)
		return
	}
	accountID := strings.TrimSpace(r.URL.Query().Get("accountId"))

	txs, err := s.svc.Engine().Transactions(r.Context())
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	filtered := txs[:0:0]
	for _, tx := range txs {
		if kind != "" && tx.Type != kind {
			continue
		}
		if accountID != "" && tx.AccountID != accountID {
			continue
		}
		filtered = append(filtered, tx)
	}
	NewResponse().JSON(nonNil(filtered)).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSONLimit(w, r, &req, maxEvidenceBodyBytes); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	receipt, err := s.svc.RecordTransaction(r.Context(), req.input())
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Transaction created",
		applog.FieldTransactionID, receipt.Transaction.ID,
		applog.FieldTxType, string(receipt.Transaction.Type))
	NewResponse().Status(http.StatusCreated).JSON(receipt).Write(w)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Stats(r.Context())
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().JSON(st).Write(w)
}

func (s *Server) handleOverdue(w http.ResponseWriter, r *http.Request) {
	loans, err := s.svc.Overdue(r.Context())
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().JSON(nonNil(loans)).Write(w)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.svc.Settings(r.Context())
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().JSON(settings).Write(w)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if req.RemindersEnabled == nil {
		ValidationErrorResponse(&ledger.ValidationError{Field: "remindersEnabled", Err: errMissingField}).Write(w)
		return
	}
	settings, err := s.svc.UpdateSettings(r.Context(), core.Settings{RemindersEnabled: *req.RemindersEnabled})
	if err != nil {
		errorFor(r.Context(), err).Write(w)
		return
	}
	NewResponse().JSON(settings).Write(w)
}

// nonNil keeps empty collections encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
