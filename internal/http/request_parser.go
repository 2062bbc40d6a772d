// Package http exposes the ledger as a JSON API.
//
// This file holds the request bodies and the helpers that decode them.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	"finanzas/internal/ledger"
)

const (
	maxBodyBytes   = 1 << 20
	maxBackupBytes = 32 << 20

	// Evidence travels inline as a data URL, so bodies that may carry it
	// get the backup limit.
	maxEvidenceBodyBytes = maxBackupBytes
)

var errMissingField = errors.New("missing field")

// decodeJSON reads a single JSON object into dst, rejecting unknown fields
// and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeJSONLimit(w, r, dst, maxBodyBytes)
}

func decodeJSONLimit(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON object")
	}
	return nil
}

// readBackup reads the raw snapshot payload.
func readBackup(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBackupBytes))
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	return data, nil
}

// sanitizeInput trims whitespace and drops control characters other than
// tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

type accountRequest struct {
	Name    string           `json:"name"`
	Bank    string           `json:"bank"`
	Type    core.AccountType `json:"type"`
	Balance decimal.Decimal  `json:"balance"`
	Color   string           `json:"color"`
}

func (req accountRequest) input() ledger.AccountInput {
	return ledger.AccountInput{
		Name:    sanitizeInput(req.Name),
		Bank:    sanitizeInput(req.Bank),
		Type:    req.Type,
		Balance: req.Balance,
		Color:   strings.TrimSpace(req.Color),
	}
}

type contactRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Relation string `json:"relation"`
}

func (req contactRequest) input() ledger.ContactInput {
	return ledger.ContactInput{
		Name:     sanitizeInput(req.Name),
		Phone:    sanitizeInput(req.Phone),
		Relation: sanitizeInput(req.Relation),
	}
}

type transactionRequest struct {
	Type        core.TransactionType `json:"type"`
	Amount      decimal.Decimal      `json:"amount"`
	Description string               `json:"description"`
	Date        core.Date            `json:"date"`
	AccountID   string               `json:"accountId"`
	EvidenceURL string               `json:"evidenceUrl"`
}

func (req transactionRequest) input() ledger.TransactionInput {
	return ledger.TransactionInput{
		Type:        req.Type,
		Amount:      req.Amount,
		Description: sanitizeInput(req.Description),
		Date:        req.Date,
		AccountID:   strings.TrimSpace(req.AccountID),
		EvidenceURL: strings.TrimSpace(req.EvidenceURL),
	}
}

type loanRequest struct {
	ContactName string             `json:"contactName"`
	Direction   core.LoanDirection `json:"type"`
	Principal   decimal.Decimal    `json:"amount"`
	Rate        decimal.Decimal    `json:"interestRate"`
	StartDate   core.Date          `json:"startDate"`
	DueDate     *core.Date         `json:"dueDate"`
	Description string             `json:"description"`
	EvidenceURL string             `json:"evidenceUrl"`
	AccountID   string             `json:"accountId"`
}

func (req loanRequest) input() ledger.LoanInput {
	due := req.DueDate
	if due != nil && due.IsZero() {
		due = nil
	}
	return ledger.LoanInput{
		ContactName: sanitizeInput(req.ContactName),
		Direction:   req.Direction,
		Principal:   req.Principal,
		Rate:        req.Rate,
		StartDate:   req.StartDate,
		DueDate:     due,
		Description: sanitizeInput(req.Description),
		EvidenceURL: strings.TrimSpace(req.EvidenceURL),
		AccountID:   strings.TrimSpace(req.AccountID),
	}
}

type paymentRequest struct {
	Amount      decimal.Decimal        `json:"amount"`
	Date        core.Date              `json:"date"`
	AccountID   string                 `json:"accountId"`
	EvidenceURL string                 `json:"evidenceUrl"`
	Allocation  core.PaymentAllocation `json:"paymentType"`
}

func (req paymentRequest) input(loanID string) ledger.PaymentInput {
	return ledger.PaymentInput{
		LoanID:      loanID,
		Amount:      req.Amount,
		Date:        req.Date,
		AccountID:   strings.TrimSpace(req.AccountID),
		EvidenceURL: strings.TrimSpace(req.EvidenceURL),
		Allocation:  req.Allocation,
	}
}

type settingsRequest struct {
	RemindersEnabled *bool `json:"remindersEnabled"`
}
