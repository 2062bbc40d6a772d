package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	AccountSavings AccountType = "SAVINGS"
	AccountCurrent AccountType = "CURRENT"
	AccountDigital AccountType = "DIGITAL"
	AccountCash    AccountType = "CASH"
)

const (
	TxExpense     TransactionType = "EXPENSE"
	TxIncome      TransactionType = "INCOME"
	TxLoanGiven   TransactionType = "LOAN_GIVEN"
	TxLoanTaken   TransactionType = "LOAN_TAKEN"
	TxLoanPayment TransactionType = "LOAN_PAYMENT"
)

const (
	Lent     LoanDirection = "LENT"
	Borrowed LoanDirection = "BORROWED"
)

const (
	LoanActive  LoanStatus = "ACTIVE"
	LoanPaid    LoanStatus = "PAID"
	LoanOverdue LoanStatus = "OVERDUE"
)

// Payment allocation tags only change the payment description.
const (
	AllocCapital            PaymentAllocation = "CAPITAL"
	AllocInterest           PaymentAllocation = "INTEREST"
	AllocCapitalAndInterest PaymentAllocation = "CAPITAL_AND_INTEREST"
)

type (
	AccountType       string
	TransactionType   string
	LoanDirection     string
	LoanStatus        string
	PaymentAllocation string

	Account struct {
		ID      string          `json:"id"`
		Name    string          `json:"name"`
		Bank    string          `json:"bank"`
		Type    AccountType     `json:"type"`
		Balance decimal.Decimal `json:"balance"`
		Color   string          `json:"color"`
	}

	Contact struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Phone     string `json:"phone,omitempty"`
		Relation  string `json:"relation,omitempty"`
		CreatedAt Date   `json:"createdAt"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Date        Date            `json:"date"`
		Description string          `json:"description"`
		EvidenceURL string          `json:"evidenceUrl,omitempty"`
		ContactID   string          `json:"contactId,omitempty"`
		LoanID      string          `json:"loanId,omitempty"`
		AccountID   string          `json:"accountId,omitempty"`
	}

	Loan struct {
		ID                      string          `json:"id"`
		ContactID               string          `json:"contactId"`
		Type                    LoanDirection   `json:"type"`
		OriginalAmount          decimal.Decimal `json:"originalAmount"`
		InterestRate            decimal.Decimal `json:"interestRate"`
		TotalAmountWithInterest decimal.Decimal `json:"totalAmountWithInterest"`
		RemainingAmount         decimal.Decimal `json:"remainingAmount"`
		StartDate               Date            `json:"startDate"`
		DueDate                 *Date           `json:"dueDate,omitempty"`
		Status                  LoanStatus      `json:"status"`
		Description             string          `json:"description"`
		EvidenceURL             string          `json:"evidenceUrl,omitempty"`
		AccountID               string          `json:"accountId,omitempty"`
	}

	Settings struct {
		RemindersEnabled bool `json:"remindersEnabled"`
	}

	// DashboardStats is derived on demand and never persisted.
	DashboardStats struct {
		TotalExpenses    decimal.Decimal `json:"totalExpenses"`
		TotalLoansGiven  decimal.Decimal `json:"totalLoansGiven"`
		TotalLoansTaken  decimal.Decimal `json:"totalLoansTaken"`
		ActiveLoansCount int             `json:"activeLoansCount"`
		TotalBalance     decimal.Decimal `json:"totalBalance"`
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidRate        = errors.New("invalid interest rate")
	ErrEmptyName          = errors.New("empty name")
	ErrInvalidKind        = errors.New("invalid transaction type")
	ErrInvalidDirection   = errors.New("invalid loan direction")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrInvalidAllocation  = errors.New("invalid payment allocation")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

const maxDescriptionLen = 200

func (t AccountType) Valid() bool {
	switch t {
	case AccountSavings, AccountCurrent, AccountDigital, AccountCash:
		return true
	}
	return false
}

func (t TransactionType) Valid() bool {
	switch t {
	case TxExpense, TxIncome, TxLoanGiven, TxLoanTaken, TxLoanPayment:
		return true
	}
	return false
}

func (d LoanDirection) Valid() bool {
	return d == Lent || d == Borrowed
}

func (a PaymentAllocation) Valid() bool {
	switch a {
	case "", AllocCapital, AllocInterest, AllocCapitalAndInterest:
		return true
	}
	return false
}

// ValidateAmount requires a strictly positive amount.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateDescription trims nothing; it only bounds the length in characters.
func ValidateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

// ValidateName rejects blank names.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	return nil
}

// TotalWithInterest returns principal * (1 + rate/100).
func TotalWithInterest(principal, rate decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(rate.Div(decimal.NewFromInt(100)))
	return principal.Mul(factor)
}

// IsOverdue reports whether the due date has passed on an unpaid loan.
// It is a read-only check; the engine never stores OVERDUE.
func (l Loan) IsOverdue(now time.Time) bool {
	if l.Status == LoanPaid || l.DueDate == nil || l.DueDate.IsZero() {
		return false
	}
	return now.After(l.DueDate.Time)
}

// Paid is the settled portion of the interest-inclusive total.
func (l Loan) Paid() decimal.Decimal {
	return l.TotalAmountWithInterest.Sub(l.RemainingAmount)
}
