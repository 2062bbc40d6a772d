// Package worker consumes ledger events and reminder requests published by
// the server and applies them to the spreadsheet mirror and the timer table.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	"finanzas/internal/ledger"
	applog "finanzas/internal/log"
	"finanzas/internal/reminders"
	"finanzas/internal/sheets"
)

// Ledger is the read side of the ledger the worker needs.
type Ledger interface {
	Transaction(ctx context.Context, id string) (core.Transaction, error)
	Transactions(ctx context.Context) ([]core.Transaction, error)
	Loans(ctx context.Context) ([]core.Loan, error)
	Contacts(ctx context.Context) ([]core.Contact, error)
	Settings(ctx context.Context) (core.Settings, error)
}

// MirrorWorker mirrors transactions into a sheet and keeps loan reminders
// on a scheduler.
type MirrorWorker struct {
	ledger    Ledger
	sheets    sheets.TransactionWriter
	scheduler reminders.Scheduler
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*MirrorWorker)

func WithLocation(loc *time.Location) Option {
	return func(w *MirrorWorker) {
		if loc != nil {
			w.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *MirrorWorker) { w.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *MirrorWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewMirrorWorker builds a worker. A nil writer skips mirroring and a nil
// scheduler skips reminders.
func NewMirrorWorker(l Ledger, writer sheets.TransactionWriter, scheduler reminders.Scheduler, opts ...Option) *MirrorWorker {
	w := &MirrorWorker{
		ledger:    l,
		sheets:    writer,
		scheduler: scheduler,
		loc:       time.Local,
		now:       time.Now,
		logger:    slog.Default().With(applog.FieldComponent, applog.ComponentWorker),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleTransactionEvent mirrors the transaction named by the event. The
// stored transaction wins; the event's copy is used when the worker's store
// does not have it.
func (w *MirrorWorker) HandleTransactionEvent(ctx context.Context, msg *amqp.TransactionEvent) error {
	w.logger.InfoContext(ctx, "Processing transaction event",
		applog.FieldTransactionID, msg.TransactionID)

	if w.sheets == nil {
		w.logger.WarnContext(ctx, "No sheet writer configured, skipping transaction",
			applog.FieldTransactionID, msg.TransactionID)
		return nil
	}

	tx, err := w.ledger.Transaction(ctx, msg.TransactionID)
	switch {
	case errors.Is(err, ledger.ErrTransactionNotFound) && msg.Transaction.ID == msg.TransactionID:
		w.logger.DebugContext(ctx, "Transaction not in local store, using event copy",
			applog.FieldTransactionID, msg.TransactionID)
		tx = msg.Transaction
	case err != nil:
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	ref, err := w.sheets.Append(ctx, tx)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	w.logger.InfoContext(ctx, "Successfully mirrored transaction",
		applog.FieldTransactionID, tx.ID,
		applog.FieldTxType, tx.Type,
		"sheets_ref", ref)
	return nil
}

// HandleReminderMessage applies a schedule or cancel request.
func (w *MirrorWorker) HandleReminderMessage(ctx context.Context, msg *amqp.ReminderMessage) error {
	if w.scheduler == nil {
		w.logger.WarnContext(ctx, "No reminder scheduler configured, skipping message",
			applog.FieldLoanID, msg.LoanID)
		return nil
	}

	switch msg.Action {
	case amqp.ActionSchedule:
		if msg.Reminder == nil {
			return fmt.Errorf("schedule message without reminder")
		}
		if err := w.scheduler.Schedule(ctx, *msg.Reminder); err != nil {
			return fmt.Errorf("schedule reminder: %w", err)
		}
	case amqp.ActionCancel:
		if err := w.scheduler.Cancel(ctx, msg.LoanID); err != nil {
			return fmt.Errorf("cancel reminder: %w", err)
		}
	default:
		return fmt.Errorf("unknown reminder action %q", msg.Action)
	}

	w.logger.InfoContext(ctx, "Reminder message applied",
		applog.FieldLoanID, msg.LoanID,
		"action", msg.Action)
	return nil
}

// StartupSyncCheck mirrors every stored transaction, oldest first. Writers
// skip IDs they already hold, so this only fills gaps left while the worker
// was down.
func (w *MirrorWorker) StartupSyncCheck(ctx context.Context) error {
	if w.sheets == nil {
		return nil
	}
	txs, err := w.ledger.Transactions(ctx)
	if err != nil {
		return fmt.Errorf("load transactions for startup check: %w", err)
	}

	synced, failed := 0, 0
	for i := len(txs) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.sheets.Append(ctx, txs[i]); err != nil {
			w.logger.ErrorContext(ctx, "Failed to mirror transaction during startup",
				applog.FieldTransactionID, txs[i].ID,
				applog.FieldError, err)
			failed++
			continue
		}
		synced++
	}

	w.logger.InfoContext(ctx, "Startup sync completed",
		"total", len(txs),
		"synced", synced,
		"errors", failed)
	return nil
}

// RestoreReminders re-plans reminders for unpaid loans with a due date. The
// in-process timer table starts empty after a restart.
func (w *MirrorWorker) RestoreReminders(ctx context.Context) (int, error) {
	if w.scheduler == nil {
		return 0, nil
	}
	settings, err := w.ledger.Settings(ctx)
	if err != nil {
		return 0, fmt.Errorf("load settings: %w", err)
	}
	if !settings.RemindersEnabled {
		return 0, nil
	}

	loans, err := w.ledger.Loans(ctx)
	if err != nil {
		return 0, fmt.Errorf("load loans: %w", err)
	}
	contacts, err := w.ledger.Contacts(ctx)
	if err != nil {
		return 0, fmt.Errorf("load contacts: %w", err)
	}
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		names[c.ID] = c.Name
	}

	now := w.now()
	restored := 0
	for _, l := range loans {
		if l.Status == core.LoanPaid {
			continue
		}
		r, ok := reminders.Plan(l, names[l.ContactID], now, w.loc)
		if !ok {
			continue
		}
		if err := w.scheduler.Schedule(ctx, r); err != nil {
			w.logger.ErrorContext(ctx, "Failed to restore reminder",
				applog.FieldLoanID, l.ID,
				applog.FieldError, err)
			continue
		}
		restored++
	}

	w.logger.InfoContext(ctx, "Reminders restored", "count", restored)
	return restored, nil
}
