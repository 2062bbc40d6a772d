package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finanzas/internal/core"
	"finanzas/internal/ledger"
	"finanzas/internal/reminders"
	"finanzas/internal/storage"
)

var (
	testNow = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	bogota  = time.FixedZone("COT", -5*60*60)
)

type recordingPublisher struct {
	mu  sync.Mutex
	txs []core.Transaction
	err error
}

func (p *recordingPublisher) PublishTransaction(_ context.Context, tx core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.txs = append(p.txs, tx)
	return nil
}

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []reminders.Reminder
	cancelled []string
}

func (s *recordingScheduler) Schedule(_ context.Context, r reminders.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, r)
	return nil
}

func (s *recordingScheduler) Cancel(_ context.Context, loanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, loanID)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	svc       *LedgerService
	publisher *recordingPublisher
	scheduler *recordingScheduler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := storage.NewStore(storage.NewMemoryBackend(), storage.WithLogger(quietLogger()))
	n := 0
	engine := ledger.New(store,
		ledger.WithClock(func() time.Time { return testNow }),
		ledger.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%03d", n)
		}),
		ledger.WithLogger(quietLogger()),
	)
	f := fixture{publisher: &recordingPublisher{}, scheduler: &recordingScheduler{}}
	f.svc = NewLedgerService(engine,
		WithPublisher(f.publisher),
		WithScheduler(f.scheduler),
		WithLocation(bogota),
		WithClock(func() time.Time { return testNow }),
		WithLogger(quietLogger()),
	)
	return f
}

func (f fixture) enableReminders(t *testing.T) {
	t.Helper()
	_, err := f.svc.UpdateSettings(context.Background(), core.Settings{RemindersEnabled: true})
	require.NoError(t, err)
}

func loanInput(name string, due *core.Date) ledger.LoanInput {
	return ledger.LoanInput{
		ContactName: name,
		Direction:   core.Lent,
		Principal:   decimal.NewFromInt(100000),
		Rate:        decimal.NewFromInt(10),
		StartDate:   core.NewDate(2024, 3, 1),
		DueDate:     due,
		Description: "Moto",
		AccountID:   ledger.DefaultAccountID,
	}
}

func TestLedgerService_RecordTransactionPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	receipt, err := f.svc.RecordTransaction(ctx, ledger.TransactionInput{
		Type:        core.TxExpense,
		Amount:      decimal.NewFromInt(2500),
		Description: "Almuerzo",
		Date:        core.NewDate(2024, 3, 5),
	})
	require.NoError(t, err)

	require.Len(t, f.publisher.txs, 1)
	assert.Equal(t, receipt.Transaction.ID, f.publisher.txs[0].ID)
}

func TestLedgerService_PublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")
	ctx := context.Background()

	receipt, err := f.svc.RecordTransaction(ctx, ledger.TransactionInput{
		Type:        core.TxIncome,
		Amount:      decimal.NewFromInt(10),
		Description: "Venta",
		Date:        core.NewDate(2024, 3, 5),
	})
	require.NoError(t, err)

	tx, err := f.svc.Engine().Transaction(ctx, receipt.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, "Venta", tx.Description)
}

func TestLedgerService_ValidationErrorSkipsSideEffects(t *testing.T) {
	f := newFixture(t)
	f.enableReminders(t)

	in := loanInput("Ana", core.NewDate(2024, 4, 1).Ptr())
	in.Principal = decimal.Zero
	_, err := f.svc.CreateLoan(context.Background(), in)

	require.ErrorIs(t, err, ledger.ErrValidation)
	assert.Empty(t, f.publisher.txs)
	assert.Empty(t, f.scheduler.scheduled)
}

func TestLedgerService_CreateLoanSchedulesReminder(t *testing.T) {
	f := newFixture(t)
	f.enableReminders(t)
	ctx := context.Background()

	_, err := f.svc.Engine().CreateContact(ctx, ledger.ContactInput{Name: "Ana María"})
	require.NoError(t, err)

	receipt, err := f.svc.CreateLoan(ctx, loanInput("  ana maría ", core.NewDate(2024, 4, 1).Ptr()))
	require.NoError(t, err)
	assert.False(t, receipt.ContactCreated)

	require.Len(t, f.scheduler.scheduled, 1)
	r := f.scheduler.scheduled[0]
	assert.Equal(t, receipt.Loan.ID, r.LoanID)
	assert.True(t, r.At.Equal(time.Date(2024, 4, 1, 9, 0, 0, 0, bogota)), "at = %s", r.At)
	assert.Equal(t, "Hoy vence el préstamo de Ana María por $110.000", r.Body)

	require.Len(t, f.publisher.txs, 1)
	assert.Equal(t, core.TxLoanGiven, f.publisher.txs[0].Type)
}

func TestLedgerService_CreateLoanWithoutReminder(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		due      *core.Date
		expected int
	}{
		{"reminders disabled", false, core.NewDate(2024, 4, 1).Ptr(), 0},
		{"no due date", true, nil, 0},
		{"due date already passed", true, core.NewDate(2024, 3, 1).Ptr(), 0},
		{"due today, reminder hour still ahead", true, core.NewDate(2024, 3, 5).Ptr(), 1},
		{"due tomorrow", true, core.NewDate(2024, 3, 6).Ptr(), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.enabled {
				f.enableReminders(t)
			}
			_, err := f.svc.CreateLoan(context.Background(), loanInput("Luis", tt.due))
			require.NoError(t, err)
			assert.Len(t, f.scheduler.scheduled, tt.expected)
		})
	}
}

func TestLedgerService_SettledPaymentCancelsReminder(t *testing.T) {
	f := newFixture(t)
	f.enableReminders(t)
	ctx := context.Background()

	receipt, err := f.svc.CreateLoan(ctx, loanInput("Luis", core.NewDate(2024, 4, 1).Ptr()))
	require.NoError(t, err)
	loanID := receipt.Loan.ID

	partial, err := f.svc.RegisterPayment(ctx, ledger.PaymentInput{
		LoanID: loanID,
		Amount: decimal.NewFromInt(60000),
		Date:   core.NewDate(2024, 3, 10),
	})
	require.NoError(t, err)
	assert.False(t, partial.Settled)
	assert.Empty(t, f.scheduler.cancelled)

	final, err := f.svc.RegisterPayment(ctx, ledger.PaymentInput{
		LoanID: loanID,
		Amount: decimal.NewFromInt(50000),
		Date:   core.NewDate(2024, 3, 20),
	})
	require.NoError(t, err)
	assert.True(t, final.Settled)
	assert.Equal(t, []string{loanID}, f.scheduler.cancelled)

	// loan transaction plus two payments
	assert.Len(t, f.publisher.txs, 3)
}

func TestLedgerService_Settings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	settings, err := f.svc.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, settings.RemindersEnabled)

	_, err = f.svc.UpdateSettings(ctx, core.Settings{RemindersEnabled: true})
	require.NoError(t, err)

	settings, err = f.svc.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.RemindersEnabled)
}

func TestLedgerService_StatsAndOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Engine().EnsureDefaultAccount(ctx)
	require.NoError(t, err)

	_, err = f.svc.CreateLoan(ctx, loanInput("Luis", core.NewDate(2024, 3, 1).Ptr()))
	require.NoError(t, err)
	_, err = f.svc.CreateLoan(ctx, loanInput("Ana", core.NewDate(2024, 5, 1).Ptr()))
	require.NoError(t, err)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.ActiveLoansCount)
	assert.True(t, decimal.NewFromInt(220000).Equal(st.TotalLoansGiven), "given = %s", st.TotalLoansGiven)
	assert.True(t, decimal.NewFromInt(-200000).Equal(st.TotalBalance), "balance = %s", st.TotalBalance)

	overdue, err := f.svc.Overdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "Moto", overdue[0].Description)
}

func TestLedgerService_WithoutCollaborators(t *testing.T) {
	store := storage.NewStore(storage.NewMemoryBackend(), storage.WithLogger(quietLogger()))
	svc := NewLedgerService(ledger.New(store, ledger.WithLogger(quietLogger())), WithLogger(quietLogger()))
	ctx := context.Background()

	_, err := svc.UpdateSettings(ctx, core.Settings{RemindersEnabled: true})
	require.NoError(t, err)

	_, err = svc.CreateLoan(ctx, loanInput("Luis", core.NewDate(2099, 1, 1).Ptr()))
	require.NoError(t, err)
	assert.NoError(t, svc.Close())
}
