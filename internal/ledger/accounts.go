package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

// Default cash account, created the first time the account list is empty.
const (
	DefaultAccountID    = "default-cash"
	DefaultAccountName  = "Mi Efectivo"
	DefaultAccountBank  = "Efectivo"
	DefaultAccountColor = "#22c55e"

	defaultColor = "#3b82f6"
)

type AccountInput struct {
	Name    string
	Bank    string
	Type    core.AccountType
	Balance decimal.Decimal
	Color   string
}

func (in AccountInput) validate() error {
	if err := core.ValidateName(in.Name); err != nil {
		return invalid("name", err)
	}
	if !in.Type.Valid() {
		return invalid("type", core.ErrInvalidAccountType)
	}
	return nil
}

// CreateAccount appends a new account with the given opening balance.
func (e *Engine) CreateAccount(ctx context.Context, in AccountInput) (core.Account, error) {
	if err := in.validate(); err != nil {
		return core.Account{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	acc := core.Account{
		ID:      e.newID(),
		Name:    strings.TrimSpace(in.Name),
		Bank:    strings.TrimSpace(in.Bank),
		Type:    in.Type,
		Balance: in.Balance,
		Color:   in.Color,
	}
	if acc.Color == "" {
		acc.Color = defaultColor
	}

	_, err := updateList(ctx, e.store, storage.KeyAccounts, func(accounts []core.Account) ([]core.Account, error) {
		return append(accounts, acc), nil
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("save account: %w", err)
	}

	e.logger.InfoContext(ctx, "Account created",
		applog.FieldAccountID, acc.ID,
		"type", acc.Type,
		"balance", acc.Balance.String())
	return acc, nil
}

// EnsureDefaultAccount creates the default cash account when no account
// exists yet. Otherwise it returns the existing default account, or the
// first account when the default was never created.
func (e *Engine) EnsureDefaultAccount(ctx context.Context) (core.Account, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	def := core.Account{
		ID:      DefaultAccountID,
		Name:    DefaultAccountName,
		Bank:    DefaultAccountBank,
		Type:    core.AccountCash,
		Balance: decimal.Zero,
		Color:   DefaultAccountColor,
	}

	created := false
	accounts, err := updateList(ctx, e.store, storage.KeyAccounts, func(accounts []core.Account) ([]core.Account, error) {
		if len(accounts) > 0 {
			return accounts, errNoChange
		}
		created = true
		return []core.Account{def}, nil
	})
	if err != nil {
		return core.Account{}, false, fmt.Errorf("ensure default account: %w", err)
	}

	if created {
		e.logger.InfoContext(ctx, "Default cash account created", applog.FieldAccountID, def.ID)
		return def, true, nil
	}
	for _, a := range accounts {
		if a.ID == DefaultAccountID {
			return a, false, nil
		}
	}
	return accounts[0], false, nil
}

func (e *Engine) Accounts(ctx context.Context) ([]core.Account, error) {
	return loadList[core.Account](ctx, e.store, storage.KeyAccounts)
}

func (e *Engine) Account(ctx context.Context, id string) (core.Account, error) {
	accounts, err := e.Accounts(ctx)
	if err != nil {
		return core.Account{}, err
	}
	for _, a := range accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return core.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
}

// adjustBalance adds delta to the account's balance. It returns nil when the
// account does not resolve, in which case nothing is written.
func (e *Engine) adjustBalance(ctx context.Context, accountID string, delta decimal.Decimal) (*core.Account, error) {
	var updated *core.Account
	_, err := updateList(ctx, e.store, storage.KeyAccounts, func(accounts []core.Account) ([]core.Account, error) {
		for i := range accounts {
			if accounts[i].ID == accountID {
				accounts[i].Balance = accounts[i].Balance.Add(delta)
				acc := accounts[i]
				updated = &acc
				return accounts, nil
			}
		}
		return accounts, errNoChange
	})
	if err != nil {
		return nil, fmt.Errorf("adjust balance: %w", err)
	}
	return updated, nil
}

// applyToAccount moves delta on accountID when one is given and reports a
// dangling reference as a warning.
func (e *Engine) applyToAccount(ctx context.Context, accountID string, delta decimal.Decimal) (*core.Account, []Warning, error) {
	if accountID == "" {
		return nil, nil, nil
	}
	acc, err := e.adjustBalance(ctx, accountID, delta)
	if err != nil {
		return nil, nil, err
	}
	if acc == nil {
		e.logger.WarnContext(ctx, "Account reference did not resolve; balance unchanged",
			applog.FieldAccountID, accountID,
			applog.FieldAmount, delta.String())
		return nil, []Warning{WarnDanglingAccount}, nil
	}
	return acc, nil, nil
}
