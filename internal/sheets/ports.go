// Package sheets mirrors ledger transactions into a spreadsheet, one row per
// transaction, for people who read their finances outside the app.
package sheets

import (
	"context"

	"finanzas/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionWriter appends one row per transaction. Appending a
	// transaction whose ID is already mirrored returns the existing row.
	TransactionWriter interface {
		Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}
)

// Header is the first row of every mirror sheet.
var Header = []any{"Fecha", "Tipo", "Descripción", "Monto", "Cuenta", "Préstamo", "ID"}

// IDColumn is the zero-based column holding the transaction ID.
const IDColumn = 6

// RowValues renders tx in Header order.
func RowValues(tx core.Transaction) []any {
	return []any{
		tx.Date.Format("2006-01-02"),
		string(tx.Type),
		tx.Description,
		tx.Amount.InexactFloat64(),
		tx.AccountID,
		tx.LoanID,
		tx.ID,
	}
}
