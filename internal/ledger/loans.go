package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

type LoanInput struct {
	ContactName string
	Direction   core.LoanDirection
	Principal   decimal.Decimal
	// Rate is a percentage; zero means no interest.
	Rate        decimal.Decimal
	StartDate   core.Date
	DueDate     *core.Date
	Description string
	EvidenceURL string
	AccountID   string
}

func (in LoanInput) validate() error {
	if err := core.ValidateName(in.ContactName); err != nil {
		return invalid("contactName", err)
	}
	if !in.Direction.Valid() {
		return invalid("direction", core.ErrInvalidDirection)
	}
	if err := core.ValidateAmount(in.Principal); err != nil {
		return invalid("principal", err)
	}
	if in.Rate.IsNegative() {
		return invalid("rate", core.ErrInvalidRate)
	}
	if err := in.StartDate.Validate(); err != nil {
		return invalid("startDate", err)
	}
	if in.DueDate != nil && !in.DueDate.IsZero() {
		if err := in.DueDate.Validate(); err != nil {
			return invalid("dueDate", err)
		}
	}
	if err := core.ValidateDescription(in.Description); err != nil {
		return invalid("description", err)
	}
	return nil
}

type LoanReceipt struct {
	Loan           core.Loan        `json:"loan"`
	ContactID      string           `json:"contactId"`
	ContactCreated bool             `json:"contactCreated"`
	Transaction    core.Transaction `json:"transaction"`
	Account        *core.Account    `json:"account,omitempty"`
	Warnings       []Warning        `json:"warnings,omitempty"`
}

// loanDescription is the description of the transaction linked to a new loan.
func loanDescription(desc string) string {
	if strings.TrimSpace(desc) == "" {
		desc = "Sin descripción"
	}
	return "Préstamo: " + desc
}

// CreateLoan resolves or creates the contact, persists an ACTIVE loan whose
// remaining amount is the interest-inclusive total, and records the linked
// principal transaction.
func (e *Engine) CreateLoan(ctx context.Context, in LoanInput) (LoanReceipt, error) {
	if err := in.validate(); err != nil {
		return LoanReceipt{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	contact, created, err := e.resolveContact(ctx, in.ContactName)
	if err != nil {
		return LoanReceipt{}, err
	}

	total := core.TotalWithInterest(in.Principal, in.Rate)
	loan := core.Loan{
		ID:                      e.newID(),
		ContactID:               contact.ID,
		Type:                    in.Direction,
		OriginalAmount:          in.Principal,
		InterestRate:            in.Rate,
		TotalAmountWithInterest: total,
		RemainingAmount:         total,
		StartDate:               in.StartDate,
		Status:                  core.LoanActive,
		Description:             in.Description,
		EvidenceURL:             in.EvidenceURL,
		AccountID:               in.AccountID,
	}
	if in.DueDate != nil {
		loan.DueDate = in.DueDate.Ptr()
	}

	_, err = updateList(ctx, e.store, storage.KeyLoans, func(loans []core.Loan) ([]core.Loan, error) {
		return append([]core.Loan{loan}, loans...), nil
	})
	if err != nil {
		return LoanReceipt{}, fmt.Errorf("save loan: %w", err)
	}

	kind := core.TxLoanGiven
	if in.Direction == core.Borrowed {
		kind = core.TxLoanTaken
	}
	rec, err := e.record(ctx, core.Transaction{
		ID:          e.newID(),
		Type:        kind,
		Amount:      in.Principal,
		Date:        in.StartDate,
		Description: loanDescription(in.Description),
		ContactID:   contact.ID,
		LoanID:      loan.ID,
		AccountID:   in.AccountID,
	}, in.Direction)
	if err != nil {
		return LoanReceipt{}, err
	}

	e.logger.InfoContext(ctx, "Loan created",
		applog.NewFields().
			WithOperation(applog.OpLoan).
			WithLoan(loan.ID, string(loan.Type), loan.RemainingAmount.String()).
			ToSlice()...)

	return LoanReceipt{
		Loan:           loan,
		ContactID:      contact.ID,
		ContactCreated: created,
		Transaction:    rec.Transaction,
		Account:        rec.Account,
		Warnings:       rec.Warnings,
	}, nil
}

func (e *Engine) Loans(ctx context.Context) ([]core.Loan, error) {
	return loadList[core.Loan](ctx, e.store, storage.KeyLoans)
}

func (e *Engine) Loan(ctx context.Context, id string) (core.Loan, error) {
	loans, err := e.Loans(ctx)
	if err != nil {
		return core.Loan{}, err
	}
	for _, l := range loans {
		if l.ID == id {
			return l, nil
		}
	}
	return core.Loan{}, fmt.Errorf("%w: %s", ErrLoanNotFound, id)
}

func (e *Engine) LoansByDirection(ctx context.Context, dir core.LoanDirection) ([]core.Loan, error) {
	if !dir.Valid() {
		return nil, invalid("direction", core.ErrInvalidDirection)
	}
	loans, err := e.Loans(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Loan, 0, len(loans))
	for _, l := range loans {
		if l.Type == dir {
			out = append(out, l)
		}
	}
	return out, nil
}

// LoanHistory returns the transactions linked to a loan, latest date first.
func (e *Engine) LoanHistory(ctx context.Context, loanID string) ([]core.Transaction, error) {
	if _, err := e.Loan(ctx, loanID); err != nil {
		return nil, err
	}
	txs, err := e.Transactions(ctx)
	if err != nil {
		return nil, err
	}

	history := make([]core.Transaction, 0)
	for _, tx := range txs {
		if tx.LoanID == loanID {
			history = append(history, tx)
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Date.After(history[j].Date.Time)
	})
	return history, nil
}
