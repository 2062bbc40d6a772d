// Package reminders plans and schedules the one-time due-date reminder
// attached to a loan.
package reminders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
)

// ReminderHour is the local hour at which reminders fire on the due date.
const ReminderHour = 9

const Title = "Recordatorio de Pago 💸"

// Reminder is a planned notification for one loan.
type Reminder struct {
	NotificationID int       `json:"notificationId"`
	LoanID         string    `json:"loanId"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	At             time.Time `json:"at"`
}

// Plan builds the reminder for a loan's due date at 09:00 in loc. It
// reports false when the loan has no due date or that moment is not after
// now. The calendar day is taken from the due date as stored.
func Plan(loan core.Loan, contactName string, now time.Time, loc *time.Location) (Reminder, bool) {
	if loan.DueDate == nil || loan.DueDate.IsZero() {
		return Reminder{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	y, m, d := loan.DueDate.Date()
	at := time.Date(y, m, d, ReminderHour, 0, 0, 0, loc)
	if !at.After(now) {
		return Reminder{}, false
	}

	return Reminder{
		NotificationID: NotificationID(loan.ID),
		LoanID:         loan.ID,
		Title:          Title,
		Body:           body(loan, contactName),
		At:             at,
	}, true
}

func body(loan core.Loan, contactName string) string {
	lead := "Hoy debes pagar el préstamo a"
	if loan.Type == core.Lent {
		lead = "Hoy vence el préstamo de"
	}
	return lead + " " + contactName + " por $" + FormatAmount(loan.RemainingAmount)
}

// NotificationID derives a stable id below 1,000,000 from a loan id. It
// folds the first character of every dash-separated part into a 32-bit
// hash, so ids keep matching reminders scheduled by older clients. Distinct
// loans can share an id; it labels a notification and never identifies a loan.
func NotificationID(loanID string) int {
	var h int32
	for _, part := range strings.Split(loanID, "-") {
		if part == "" {
			h = 0
			continue
		}
		first := []rune(part)[0]
		h = (h << 5) - h + int32(first)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % 1000000)
}

// FormatAmount renders an amount with dot thousands separators and, when
// needed, up to two comma decimals: 55000 -> "55.000", 1234.5 -> "1.234,5".
func FormatAmount(amount decimal.Decimal) string {
	amount = amount.Round(2)
	neg := amount.IsNegative()
	s := amount.Abs().String()

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	if frac != "" {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return b.String()
}
