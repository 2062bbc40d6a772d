package reminders

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	applog "finanzas/internal/log"
)

// Scheduler schedules and cancels loan reminders.
type Scheduler interface {
	Schedule(ctx context.Context, r Reminder) error
	Cancel(ctx context.Context, loanID string) error
}

// Notifier delivers a reminder when it fires.
type Notifier func(ctx context.Context, r Reminder)

// Table keeps one in-process timer per loan, keyed by loan id.
type Table struct {
	mu     sync.Mutex
	timers map[string]*pending
	notify Notifier
	now    func() time.Time
	logger *slog.Logger
}

type pending struct {
	reminder Reminder
	timer    *time.Timer
}

// NewTable returns a table that calls notify when a reminder fires. A nil
// notify logs the reminder.
func NewTable(notify Notifier, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default().With(applog.FieldComponent, applog.ComponentReminders)
	}
	t := &Table{
		timers: make(map[string]*pending),
		now:    time.Now,
		logger: logger,
	}
	if notify == nil {
		notify = func(ctx context.Context, r Reminder) {
			t.logger.InfoContext(ctx, "Loan reminder due",
				applog.FieldLoanID, r.LoanID,
				"title", r.Title,
				"body", r.Body)
		}
	}
	t.notify = notify
	return t
}

// Schedule replaces any reminder already held for the same loan. Reminders
// whose time has passed are dropped.
func (t *Table) Schedule(ctx context.Context, r Reminder) error {
	delay := r.At.Sub(t.now())
	if delay <= 0 {
		t.logger.DebugContext(ctx, "Reminder in the past, skipped", applog.FieldLoanID, r.LoanID)
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.timers[r.LoanID]; ok {
		old.timer.Stop()
	}
	p := &pending{reminder: r}
	p.timer = time.AfterFunc(delay, func() { t.fire(p) })
	t.timers[r.LoanID] = p

	t.logger.InfoContext(ctx, "Reminder scheduled",
		applog.FieldOperation, applog.OpSchedule,
		applog.FieldLoanID, r.LoanID,
		"at", r.At)
	return nil
}

func (t *Table) fire(p *pending) {
	t.mu.Lock()
	cur, ok := t.timers[p.reminder.LoanID]
	if !ok || cur != p {
		t.mu.Unlock()
		return
	}
	delete(t.timers, p.reminder.LoanID)
	t.mu.Unlock()

	t.notify(context.Background(), p.reminder)
}

// Cancel stops the reminder for loanID, if any.
func (t *Table) Cancel(ctx context.Context, loanID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.timers[loanID]; ok {
		p.timer.Stop()
		delete(t.timers, loanID)
		t.logger.InfoContext(ctx, "Reminder cancelled",
			applog.FieldOperation, applog.OpCancel,
			applog.FieldLoanID, loanID)
	}
	return nil
}

// Pending lists scheduled reminders, soonest first.
func (t *Table) Pending() []Reminder {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Reminder, 0, len(t.timers))
	for _, p := range t.timers {
		out = append(out, p.reminder)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Stop cancels every pending timer.
func (t *Table) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.timers {
		p.timer.Stop()
		delete(t.timers, id)
	}
}
