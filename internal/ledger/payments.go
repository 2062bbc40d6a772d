package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

type PaymentInput struct {
	LoanID      string
	Amount      decimal.Decimal
	Date        core.Date
	AccountID   string
	EvidenceURL string
	// Allocation only changes the transaction description.
	Allocation core.PaymentAllocation
}

func (in PaymentInput) validate() error {
	if strings.TrimSpace(in.LoanID) == "" {
		return invalid("loanId", core.ErrEmptyName)
	}
	if err := core.ValidateAmount(in.Amount); err != nil {
		return invalid("amount", err)
	}
	if err := in.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if !in.Allocation.Valid() {
		return invalid("allocation", core.ErrInvalidAllocation)
	}
	return nil
}

type PaymentReceipt struct {
	Loan        core.Loan        `json:"loan"`
	Transaction core.Transaction `json:"transaction"`
	Account     *core.Account    `json:"account,omitempty"`
	// Settled is true when this payment moved the loan to PAID.
	Settled bool `json:"settled"`
	// Overpaid is the part of the payment beyond the remaining amount.
	Overpaid decimal.Decimal `json:"overpaid"`
	Warnings []Warning       `json:"warnings,omitempty"`
}

func paymentDescription(dir core.LoanDirection, alloc core.PaymentAllocation) string {
	desc := "Abono préstamo a contacto"
	if dir == core.Lent {
		desc = "Abono préstamo de contacto"
	}
	switch alloc {
	case core.AllocCapital:
		desc += " (capital)"
	case core.AllocInterest:
		desc += " (intereses)"
	case core.AllocCapitalAndInterest:
		desc += " (capital e intereses)"
	}
	return desc
}

// RegisterPayment reduces the loan's remaining amount, clamped at zero, and
// records a payment transaction for the full nominal amount. The account
// moves by the nominal amount even when the loan clamps.
func (e *Engine) RegisterPayment(ctx context.Context, in PaymentInput) (PaymentReceipt, error) {
	if err := in.validate(); err != nil {
		return PaymentReceipt{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		loan     core.Loan
		settled  bool
		overpaid = decimal.Zero
	)
	_, err := updateList(ctx, e.store, storage.KeyLoans, func(loans []core.Loan) ([]core.Loan, error) {
		idx := -1
		for i := range loans {
			if loans[i].ID == in.LoanID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return loans, fmt.Errorf("%w: %s", ErrLoanNotFound, in.LoanID)
		}

		l := &loans[idx]
		remaining := l.RemainingAmount.Sub(in.Amount)
		if remaining.IsNegative() {
			overpaid = remaining.Neg()
			remaining = decimal.Zero
		}
		l.RemainingAmount = remaining

		if remaining.IsZero() {
			machine := newLoanFSM(l)
			if machine.CanSettle() {
				if err := machine.Settle(ctx); err != nil {
					return loans, err
				}
				settled = true
			}
		} else if l.Status != core.LoanPaid {
			l.Status = core.LoanActive
		}

		loan = *l
		return loans, nil
	})
	if err != nil {
		return PaymentReceipt{}, err
	}

	rec, err := e.record(ctx, core.Transaction{
		ID:          e.newID(),
		Type:        core.TxLoanPayment,
		Amount:      in.Amount,
		Date:        in.Date,
		Description: paymentDescription(loan.Type, in.Allocation),
		EvidenceURL: in.EvidenceURL,
		ContactID:   loan.ContactID,
		LoanID:      loan.ID,
		AccountID:   in.AccountID,
	}, loan.Type)
	if err != nil {
		return PaymentReceipt{}, err
	}

	warnings := rec.Warnings
	if overpaid.IsPositive() {
		warnings = append(warnings, WarnOverpayment)
		e.logger.WarnContext(ctx, "Payment exceeds remaining amount",
			applog.FieldLoanID, loan.ID,
			applog.FieldAmount, in.Amount.String(),
			"overpaid", overpaid.String())
	}

	e.logger.InfoContext(ctx, "Loan payment registered",
		applog.NewFields().
			WithOperation(applog.OpPayment).
			WithLoan(loan.ID, string(loan.Type), loan.RemainingAmount.String()).
			ToSlice()...)

	return PaymentReceipt{
		Loan:        loan,
		Transaction: rec.Transaction,
		Account:     rec.Account,
		Settled:     settled,
		Overpaid:    overpaid,
		Warnings:    warnings,
	}, nil
}
