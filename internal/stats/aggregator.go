// Package stats derives dashboard figures from the stored collections.
// Every call is a full scan; nothing is cached or written.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	"finanzas/internal/storage"
)

type Aggregator struct {
	store *storage.Store
}

func NewAggregator(store *storage.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Compute returns the dashboard totals for the store's current contents.
func (a *Aggregator) Compute(ctx context.Context) (core.DashboardStats, error) {
	txs, err := storage.Load(ctx, a.store, storage.KeyTransactions, []core.Transaction{})
	if err != nil {
		return core.DashboardStats{}, fmt.Errorf("load transactions: %w", err)
	}
	loans, err := storage.Load(ctx, a.store, storage.KeyLoans, []core.Loan{})
	if err != nil {
		return core.DashboardStats{}, fmt.Errorf("load loans: %w", err)
	}
	accounts, err := storage.Load(ctx, a.store, storage.KeyAccounts, []core.Account{})
	if err != nil {
		return core.DashboardStats{}, fmt.Errorf("load accounts: %w", err)
	}
	return Summarize(txs, loans, accounts), nil
}

// Summarize is the pure computation behind Compute.
func Summarize(txs []core.Transaction, loans []core.Loan, accounts []core.Account) core.DashboardStats {
	s := core.DashboardStats{
		TotalExpenses:   decimal.Zero,
		TotalLoansGiven: decimal.Zero,
		TotalLoansTaken: decimal.Zero,
		TotalBalance:    decimal.Zero,
	}

	for _, tx := range txs {
		if tx.Type == core.TxExpense {
			s.TotalExpenses = s.TotalExpenses.Add(tx.Amount)
		}
	}

	for _, l := range loans {
		if l.Status == core.LoanActive {
			s.ActiveLoansCount++
		}
		if l.Status == core.LoanPaid {
			continue
		}
		switch l.Type {
		case core.Lent:
			s.TotalLoansGiven = s.TotalLoansGiven.Add(l.RemainingAmount)
		case core.Borrowed:
			s.TotalLoansTaken = s.TotalLoansTaken.Add(l.RemainingAmount)
		}
	}

	for _, acc := range accounts {
		s.TotalBalance = s.TotalBalance.Add(acc.Balance)
	}
	return s
}

// Overdue lists unpaid loans whose due date is before now. Stored status is
// not changed.
func (a *Aggregator) Overdue(ctx context.Context, now time.Time) ([]core.Loan, error) {
	loans, err := storage.Load(ctx, a.store, storage.KeyLoans, []core.Loan{})
	if err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}
	out := make([]core.Loan, 0)
	for _, l := range loans {
		if l.IsOverdue(now) {
			out = append(out, l)
		}
	}
	return out, nil
}
