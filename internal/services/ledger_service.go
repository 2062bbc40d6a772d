package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/ledger"
	applog "finanzas/internal/log"
	"finanzas/internal/reminders"
	"finanzas/internal/stats"
)

// EventPublisher announces recorded transactions to the mirror worker.
type EventPublisher interface {
	PublishTransaction(ctx context.Context, tx core.Transaction) error
}

// LedgerService orchestrates ledger operations with their side effects:
// transaction events and loan reminders. Side effects are best-effort; the
// ledger write is the source of truth and never rolls back.
type LedgerService struct {
	engine    *ledger.Engine
	stats     *stats.Aggregator
	publisher EventPublisher
	scheduler reminders.Scheduler
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*LedgerService)

// WithPublisher sets where transaction events go. Without one, events are
// skipped.
func WithPublisher(p EventPublisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

// WithScheduler sets the reminder scheduler. Without one, reminders are
// skipped.
func WithScheduler(r reminders.Scheduler) Option {
	return func(s *LedgerService) { s.scheduler = r }
}

// WithLocation sets the zone reminders fire in.
func WithLocation(loc *time.Location) Option {
	return func(s *LedgerService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *LedgerService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewLedgerService(engine *ledger.Engine, opts ...Option) *LedgerService {
	s := &LedgerService{
		engine: engine,
		stats:  stats.NewAggregator(engine.Store()),
		loc:    time.Local,
		now:    time.Now,
		logger: slog.Default().With(applog.FieldComponent, applog.ComponentApp),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine exposes the underlying ledger for read paths.
func (s *LedgerService) Engine() *ledger.Engine { return s.engine }

// RecordTransaction records an income or expense and publishes its event.
func (s *LedgerService) RecordTransaction(ctx context.Context, in ledger.TransactionInput) (ledger.TransactionReceipt, error) {
	receipt, err := s.engine.RecordTransaction(ctx, in)
	if err != nil {
		return receipt, err
	}
	s.publish(ctx, receipt.Transaction)
	return receipt, nil
}

// CreateLoan creates the loan, publishes its principal transaction and, when
// reminders are enabled, schedules the due-date reminder.
func (s *LedgerService) CreateLoan(ctx context.Context, in ledger.LoanInput) (ledger.LoanReceipt, error) {
	receipt, err := s.engine.CreateLoan(ctx, in)
	if err != nil {
		return receipt, err
	}
	s.publish(ctx, receipt.Transaction)

	if receipt.Loan.DueDate == nil || s.scheduler == nil {
		return receipt, nil
	}
	settings, err := s.Settings(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read settings, skipping reminder",
			applog.FieldLoanID, receipt.Loan.ID,
			applog.FieldError, err)
		return receipt, nil
	}
	if settings.RemindersEnabled {
		s.scheduleReminder(ctx, receipt.Loan, s.contactName(ctx, receipt.ContactID, in.ContactName))
	}
	return receipt, nil
}

// RegisterPayment applies a payment, publishes its transaction and cancels
// the reminder once the loan is settled.
func (s *LedgerService) RegisterPayment(ctx context.Context, in ledger.PaymentInput) (ledger.PaymentReceipt, error) {
	receipt, err := s.engine.RegisterPayment(ctx, in)
	if err != nil {
		return receipt, err
	}
	s.publish(ctx, receipt.Transaction)

	if receipt.Settled && s.scheduler != nil {
		if err := s.scheduler.Cancel(ctx, receipt.Loan.ID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to cancel loan reminder",
				applog.FieldLoanID, receipt.Loan.ID,
				applog.FieldError, err)
		}
	}
	return receipt, nil
}

// Settings returns the stored settings, defaulting to reminders off.
func (s *LedgerService) Settings(ctx context.Context) (core.Settings, error) {
	return s.engine.Settings(ctx)
}

func (s *LedgerService) UpdateSettings(ctx context.Context, settings core.Settings) (core.Settings, error) {
	if err := s.engine.SaveSettings(ctx, settings); err != nil {
		return core.Settings{}, err
	}
	s.logger.InfoContext(ctx, "Settings updated", "reminders_enabled", settings.RemindersEnabled)
	return settings, nil
}

func (s *LedgerService) Stats(ctx context.Context) (core.DashboardStats, error) {
	return s.stats.Compute(ctx)
}

// Overdue lists unpaid loans past their due date.
func (s *LedgerService) Overdue(ctx context.Context) ([]core.Loan, error) {
	return s.stats.Overdue(ctx, s.now())
}

func (s *LedgerService) publish(ctx context.Context, tx core.Transaction) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher, skipping transaction event",
			applog.FieldTransactionID, tx.ID)
		return
	}
	if err := s.publisher.PublishTransaction(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			applog.FieldTransactionID, tx.ID,
			applog.FieldError, err)
	}
}

func (s *LedgerService) scheduleReminder(ctx context.Context, loan core.Loan, contactName string) {
	r, ok := reminders.Plan(loan, contactName, s.now(), s.loc)
	if !ok {
		s.logger.DebugContext(ctx, "Reminder time already passed",
			applog.FieldLoanID, loan.ID)
		return
	}
	if err := s.scheduler.Schedule(ctx, r); err != nil {
		s.logger.ErrorContext(ctx, "Failed to schedule loan reminder",
			applog.FieldLoanID, loan.ID,
			applog.FieldError, err)
	}
}

// contactName prefers the stored name so a matched contact keeps its casing.
func (s *LedgerService) contactName(ctx context.Context, contactID, fallback string) string {
	contacts, err := s.engine.Contacts(ctx)
	if err == nil {
		for _, c := range contacts {
			if c.ID == contactID {
				return c.Name
			}
		}
	}
	return strings.TrimSpace(fallback)
}

// Close releases the publisher when it holds a connection. The scheduler
// belongs to the caller.
func (s *LedgerService) Close() error {
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close publisher: %w", err)
		}
	}
	return nil
}
