package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

// TransactionInput describes a direct income or expense.
type TransactionInput struct {
	Type        core.TransactionType
	Amount      decimal.Decimal
	Description string
	Date        core.Date
	AccountID   string
	EvidenceURL string
}

func (in TransactionInput) validate() error {
	if in.Type != core.TxIncome && in.Type != core.TxExpense {
		return invalid("type", core.ErrInvalidKind)
	}
	if err := core.ValidateAmount(in.Amount); err != nil {
		return invalid("amount", err)
	}
	if err := in.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if err := core.ValidateDescription(in.Description); err != nil {
		return invalid("description", err)
	}
	return nil
}

// TransactionReceipt is the outcome of a recorded transaction. Account holds
// the account after the balance moved, nil when no account moved.
type TransactionReceipt struct {
	Transaction core.Transaction `json:"transaction"`
	Account     *core.Account    `json:"account,omitempty"`
	Warnings    []Warning        `json:"warnings,omitempty"`
}

// balanceDelta is the signed effect of a transaction on its account.
// Loan payments mirror loan creation: money arrives on LENT loans and
// leaves on BORROWED ones.
func balanceDelta(kind core.TransactionType, dir core.LoanDirection, amount decimal.Decimal) decimal.Decimal {
	switch kind {
	case core.TxIncome, core.TxLoanTaken:
		return amount
	case core.TxLoanPayment:
		if dir == core.Lent {
			return amount
		}
		return amount.Neg()
	default:
		return amount.Neg()
	}
}

// RecordTransaction records a direct income or expense and moves the
// referenced account, if any.
func (e *Engine) RecordTransaction(ctx context.Context, in TransactionInput) (TransactionReceipt, error) {
	if err := in.validate(); err != nil {
		return TransactionReceipt{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx := core.Transaction{
		ID:          e.newID(),
		Type:        in.Type,
		Amount:      in.Amount,
		Date:        in.Date,
		Description: in.Description,
		EvidenceURL: in.EvidenceURL,
		AccountID:   in.AccountID,
	}
	return e.record(ctx, tx, "")
}

// record prepends tx and applies its balance effect. Callers hold e.mu.
func (e *Engine) record(ctx context.Context, tx core.Transaction, dir core.LoanDirection) (TransactionReceipt, error) {
	_, err := updateList(ctx, e.store, storage.KeyTransactions, func(txs []core.Transaction) ([]core.Transaction, error) {
		return append([]core.Transaction{tx}, txs...), nil
	})
	if err != nil {
		return TransactionReceipt{}, fmt.Errorf("save transaction: %w", err)
	}

	acc, warnings, err := e.applyToAccount(ctx, tx.AccountID, balanceDelta(tx.Type, dir, tx.Amount))
	if err != nil {
		return TransactionReceipt{}, err
	}

	fields := applog.NewFields().
		WithOperation(applog.OpRecord).
		WithTransaction(tx.ID, string(tx.Type), tx.Amount.String(), tx.AccountID)
	if tx.LoanID != "" {
		fields[applog.FieldLoanID] = tx.LoanID
	}
	e.logger.InfoContext(ctx, "Transaction recorded", fields.ToSlice()...)

	return TransactionReceipt{Transaction: tx, Account: acc, Warnings: warnings}, nil
}

// Transactions returns all transactions, newest first.
func (e *Engine) Transactions(ctx context.Context) ([]core.Transaction, error) {
	return loadList[core.Transaction](ctx, e.store, storage.KeyTransactions)
}

func (e *Engine) Transaction(ctx context.Context, id string) (core.Transaction, error) {
	txs, err := e.Transactions(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	for _, tx := range txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
}
