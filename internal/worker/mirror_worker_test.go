package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	"finanzas/internal/ledger"
	"finanzas/internal/reminders"
	"finanzas/internal/sheets/memory"
	"finanzas/internal/storage"
)

var testNow = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T) *ledger.Engine {
	t.Helper()
	store := storage.NewStore(storage.NewMemoryBackend(), storage.WithLogger(quietLogger()))
	n := 0
	return ledger.New(store,
		ledger.WithClock(func() time.Time { return testNow }),
		ledger.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%03d", n)
		}),
		ledger.WithLogger(quietLogger()),
	)
}

type failingWriter struct{ err error }

func (f failingWriter) Append(context.Context, core.Transaction) (string, error) {
	return "", f.err
}

func record(t *testing.T, e *ledger.Engine, desc string) core.Transaction {
	t.Helper()
	receipt, err := e.RecordTransaction(context.Background(), ledger.TransactionInput{
		Type:        core.TxExpense,
		Amount:      decimal.NewFromInt(1000),
		Description: desc,
		Date:        core.NewDate(2024, 3, 5),
	})
	require.NoError(t, err)
	return receipt.Transaction
}

func TestHandleTransactionEvent_UsesStoredTransaction(t *testing.T) {
	e := newEngine(t)
	writer := memory.New()
	w := NewMirrorWorker(e, writer, nil, WithLogger(quietLogger()))

	tx := record(t, e, "Mercado")
	event := amqp.NewTransactionEvent(tx)
	event.Transaction.Description = "stale copy"

	require.NoError(t, w.HandleTransactionEvent(context.Background(), event))

	rows := writer.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "Mercado", rows[0].Description)
}

func TestHandleTransactionEvent_FallsBackToEventCopy(t *testing.T) {
	writer := memory.New()
	w := NewMirrorWorker(newEngine(t), writer, nil, WithLogger(quietLogger()))

	tx := core.Transaction{ID: "remote-1", Type: core.TxIncome, Amount: decimal.NewFromInt(5), Description: "Venta"}
	require.NoError(t, w.HandleTransactionEvent(context.Background(), amqp.NewTransactionEvent(tx)))

	rows := writer.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "remote-1", rows[0].ID)
}

func TestHandleTransactionEvent_Errors(t *testing.T) {
	t.Run("unknown transaction without a usable copy", func(t *testing.T) {
		w := NewMirrorWorker(newEngine(t), memory.New(), nil, WithLogger(quietLogger()))
		event := &amqp.TransactionEvent{Type: amqp.EventTransactionRecorded, TransactionID: "missing"}

		err := w.HandleTransactionEvent(context.Background(), event)
		assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
	})

	t.Run("writer failure is returned for requeue", func(t *testing.T) {
		e := newEngine(t)
		boom := errors.New("quota exceeded")
		w := NewMirrorWorker(e, failingWriter{err: boom}, nil, WithLogger(quietLogger()))

		err := w.HandleTransactionEvent(context.Background(), amqp.NewTransactionEvent(record(t, e, "x")))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("no writer configured", func(t *testing.T) {
		w := NewMirrorWorker(newEngine(t), nil, nil, WithLogger(quietLogger()))
		event := &amqp.TransactionEvent{Type: amqp.EventTransactionRecorded, TransactionID: "missing"}
		assert.NoError(t, w.HandleTransactionEvent(context.Background(), event))
	})
}

func TestHandleReminderMessage(t *testing.T) {
	table := reminders.NewTable(func(context.Context, reminders.Reminder) {}, quietLogger())
	t.Cleanup(table.Stop)
	w := NewMirrorWorker(newEngine(t), nil, table, WithLogger(quietLogger()))
	ctx := context.Background()

	r := reminders.Reminder{
		NotificationID: reminders.NotificationID("loan-1"),
		LoanID:         "loan-1",
		Title:          reminders.Title,
		At:             time.Now().Add(time.Hour),
	}
	require.NoError(t, w.HandleReminderMessage(ctx, amqp.NewScheduleMessage(r)))
	require.Len(t, table.Pending(), 1)

	require.NoError(t, w.HandleReminderMessage(ctx, amqp.NewCancelMessage("loan-1")))
	assert.Empty(t, table.Pending())

	err := w.HandleReminderMessage(ctx, &amqp.ReminderMessage{Action: "snooze", LoanID: "loan-1"})
	assert.Error(t, err)
}

func TestStartupSyncCheck_FillsGapsOldestFirst(t *testing.T) {
	e := newEngine(t)
	writer := memory.New()
	w := NewMirrorWorker(e, writer, nil, WithLogger(quietLogger()))
	ctx := context.Background()

	first := record(t, e, "uno")
	require.NoError(t, w.HandleTransactionEvent(ctx, amqp.NewTransactionEvent(first)))
	record(t, e, "dos")
	record(t, e, "tres")

	require.NoError(t, w.StartupSyncCheck(ctx))

	rows := writer.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"uno", "dos", "tres"},
		[]string{rows[0].Description, rows[1].Description, rows[2].Description})
}

type recordingScheduler struct {
	scheduled []reminders.Reminder
}

func (s *recordingScheduler) Schedule(_ context.Context, r reminders.Reminder) error {
	s.scheduled = append(s.scheduled, r)
	return nil
}

func (s *recordingScheduler) Cancel(context.Context, string) error { return nil }

func TestRestoreReminders(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	create := func(name string, due *core.Date) core.Loan {
		receipt, err := e.CreateLoan(ctx, ledger.LoanInput{
			ContactName: name,
			Direction:   core.Borrowed,
			Principal:   decimal.NewFromInt(20000),
			StartDate:   core.NewDate(2024, 3, 1),
			DueDate:     due,
		})
		require.NoError(t, err)
		return receipt.Loan
	}
	upcoming := create("Ana", core.NewDate(2024, 4, 1).Ptr())
	create("Luis", core.NewDate(2024, 3, 1).Ptr())
	create("Eva", nil)
	paid := create("Sara", core.NewDate(2024, 5, 1).Ptr())
	_, err := e.RegisterPayment(ctx, ledger.PaymentInput{LoanID: paid.ID, Amount: decimal.NewFromInt(20000), Date: core.NewDate(2024, 3, 2)})
	require.NoError(t, err)

	sched := &recordingScheduler{}
	w := NewMirrorWorker(e, nil, sched, WithClock(func() time.Time { return testNow }), WithLocation(time.UTC), WithLogger(quietLogger()))

	n, err := w.RestoreReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "reminders are off by default")

	require.NoError(t, e.SaveSettings(ctx, core.Settings{RemindersEnabled: true}))
	n, err = w.RestoreReminders(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, upcoming.ID, sched.scheduled[0].LoanID)
	assert.Equal(t, "Hoy debes pagar el préstamo a Ana por $20.000", sched.scheduled[0].Body)
}
