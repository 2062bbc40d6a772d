package ledger

import (
	"context"
	"fmt"
	"strings"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

// LoanContactRelation labels contacts created implicitly by a loan.
const LoanContactRelation = "Contacto"

type ContactInput struct {
	Name     string
	Phone    string
	Relation string
}

// CreateContact appends a contact. It does not check for duplicate names;
// only loan creation resolves contacts by name.
func (e *Engine) CreateContact(ctx context.Context, in ContactInput) (core.Contact, error) {
	if err := core.ValidateName(in.Name); err != nil {
		return core.Contact{}, invalid("name", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c := core.Contact{
		ID:        e.newID(),
		Name:      strings.TrimSpace(in.Name),
		Phone:     strings.TrimSpace(in.Phone),
		Relation:  strings.TrimSpace(in.Relation),
		CreatedAt: core.DateOf(e.now()),
	}
	_, err := updateList(ctx, e.store, storage.KeyContacts, func(contacts []core.Contact) ([]core.Contact, error) {
		return append(contacts, c), nil
	})
	if err != nil {
		return core.Contact{}, fmt.Errorf("save contact: %w", err)
	}

	e.logger.InfoContext(ctx, "Contact created", applog.FieldContactID, c.ID)
	return c, nil
}

func (e *Engine) Contacts(ctx context.Context) ([]core.Contact, error) {
	return loadList[core.Contact](ctx, e.store, storage.KeyContacts)
}

// resolveContact finds a contact by trimmed, case-insensitive name or
// creates one. Callers hold e.mu.
func (e *Engine) resolveContact(ctx context.Context, name string) (core.Contact, bool, error) {
	name = strings.TrimSpace(name)

	var (
		found   core.Contact
		created bool
	)
	_, err := updateList(ctx, e.store, storage.KeyContacts, func(contacts []core.Contact) ([]core.Contact, error) {
		for _, c := range contacts {
			if strings.EqualFold(strings.TrimSpace(c.Name), name) {
				found = c
				return contacts, errNoChange
			}
		}
		found = core.Contact{
			ID:        e.newID(),
			Name:      name,
			Relation:  LoanContactRelation,
			CreatedAt: core.DateOf(e.now()),
		}
		created = true
		return append(contacts, found), nil
	})
	if err != nil {
		return core.Contact{}, false, fmt.Errorf("resolve contact: %w", err)
	}
	if created {
		e.logger.InfoContext(ctx, "Contact created for loan", applog.FieldContactID, found.ID)
	}
	return found, created, nil
}
