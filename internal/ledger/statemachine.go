package ledger

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"finanzas/internal/core"
)

const eventSettle = "settle"

// loanFSM drives a loan's stored status. PAID is terminal.
type loanFSM struct {
	loan *core.Loan
	fsm  *fsm.FSM
}

func newLoanFSM(loan *core.Loan) *loanFSM {
	initial := loan.Status
	if initial != core.LoanPaid && initial != core.LoanOverdue {
		initial = core.LoanActive
	}

	return &loanFSM{
		loan: loan,
		fsm: fsm.NewFSM(
			string(initial),
			fsm.Events{
				{Name: eventSettle, Src: []string{string(core.LoanActive), string(core.LoanOverdue)}, Dst: string(core.LoanPaid)},
			},
			fsm.Callbacks{},
		),
	}
}

// Settle moves the loan to PAID.
func (l *loanFSM) Settle(ctx context.Context) error {
	if err := l.fsm.Event(ctx, eventSettle); err != nil {
		return fmt.Errorf("settle loan %s: %w", l.loan.ID, err)
	}
	l.loan.Status = core.LoanStatus(l.fsm.Current())
	return nil
}

func (l *loanFSM) CanSettle() bool {
	return l.fsm.Can(eventSettle)
}
