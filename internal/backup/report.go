package backup

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"finanzas/internal/core"
	"finanzas/internal/stats"
)

// Report sheet names.
const (
	SheetSummary      = "Resumen"
	SheetAccounts     = "Cuentas"
	SheetTransactions = "Movimientos"
	SheetLoans        = "Prestamos"
	SheetContacts     = "Contactos"
)

const dateLayout = "2006-01-02"

// WriteReport exports the current state and writes it to w as an XLSX
// workbook.
func (c *Codec) WriteReport(ctx context.Context, w io.Writer) error {
	snap, err := c.Export(ctx)
	if err != nil {
		return err
	}
	f, err := Report(snap, stats.Summarize(snap.Transactions, snap.Loans, snap.Accounts))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Report renders a snapshot and its dashboard figures into a workbook.
func Report(snap Snapshot, summary core.DashboardStats) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create style: %w", err)
	}

	contactNames := make(map[string]string, len(snap.Contacts))
	for _, ct := range snap.Contacts {
		contactNames[ct.ID] = ct.Name
	}
	accountNames := make(map[string]string, len(snap.Accounts))
	for _, a := range snap.Accounts {
		accountNames[a.ID] = a.Name
	}

	sheets := []struct {
		name   string
		header []any
		rows   [][]any
	}{
		{
			name:   SheetSummary,
			header: []any{"Métrica", "Valor"},
			rows: [][]any{
				{"Generado", snap.Timestamp.Format("2006-01-02 15:04")},
				{"Saldo total", summary.TotalBalance.InexactFloat64()},
				{"Gastos totales", summary.TotalExpenses.InexactFloat64()},
				{"Me deben", summary.TotalLoansGiven.InexactFloat64()},
				{"Debo", summary.TotalLoansTaken.InexactFloat64()},
				{"Préstamos activos", summary.ActiveLoansCount},
			},
		},
		{
			name:   SheetAccounts,
			header: []any{"Nombre", "Banco", "Tipo", "Saldo"},
			rows:   accountRows(snap.Accounts),
		},
		{
			name:   SheetTransactions,
			header: []any{"Fecha", "Tipo", "Descripción", "Monto", "Cuenta", "Contacto", "Préstamo"},
			rows:   transactionRows(snap.Transactions, accountNames, contactNames),
		},
		{
			name:   SheetLoans,
			header: []any{"Contacto", "Tipo", "Capital", "Interés %", "Total", "Pendiente", "Inicio", "Vence", "Estado", "Descripción"},
			rows:   loanRows(snap.Loans, contactNames),
		},
		{
			name:   SheetContacts,
			header: []any{"Nombre", "Teléfono", "Relación", "Creado"},
			rows:   contactRows(snap.Contacts),
		},
	}

	for _, sh := range sheets {
		if sh.name != SheetSummary {
			if _, err := f.NewSheet(sh.name); err != nil {
				f.Close()
				return nil, fmt.Errorf("create sheet %s: %w", sh.name, err)
			}
		}
		if err := writeTable(f, sh.name, sh.header, sh.rows, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeTable(f *excelize.File, sheet string, header []any, rows [][]any, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(header))
	return f.SetColWidth(sheet, "A", lastCol, 18)
}

func formatDate(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func accountRows(accounts []core.Account) [][]any {
	rows := make([][]any, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, []any{a.Name, a.Bank, string(a.Type), a.Balance.InexactFloat64()})
	}
	return rows
}

func transactionRows(txs []core.Transaction, accounts, contacts map[string]string) [][]any {
	rows := make([][]any, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, []any{
			formatDate(tx.Date),
			string(tx.Type),
			tx.Description,
			tx.Amount.InexactFloat64(),
			accounts[tx.AccountID],
			contacts[tx.ContactID],
			tx.LoanID,
		})
	}
	return rows
}

func loanRows(loans []core.Loan, contacts map[string]string) [][]any {
	rows := make([][]any, 0, len(loans))
	for _, l := range loans {
		due := ""
		if l.DueDate != nil {
			due = formatDate(*l.DueDate)
		}
		rows = append(rows, []any{
			contacts[l.ContactID],
			string(l.Type),
			l.OriginalAmount.InexactFloat64(),
			l.InterestRate.InexactFloat64(),
			l.TotalAmountWithInterest.InexactFloat64(),
			l.RemainingAmount.InexactFloat64(),
			formatDate(l.StartDate),
			due,
			string(l.Status),
			l.Description,
		})
	}
	return rows
}

func contactRows(contacts []core.Contact) [][]any {
	rows := make([][]any, 0, len(contacts))
	for _, ct := range contacts {
		rows = append(rows, []any{ct.Name, ct.Phone, ct.Relation, formatDate(ct.CreatedAt)})
	}
	return rows
}
