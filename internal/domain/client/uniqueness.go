package client

import (
	"context"
	"strings"

	"clientregistry/internal/core/apperror"
	"clientregistry/internal/core/id"
)

// OwnerLookup resolves which client holds a tax id or email.
// Both methods return a NotFound AppError when nobody does.
type OwnerLookup interface {
	FindOwnerByTaxID(ctx context.Context, taxID string) (id.ID, error)
	FindOwnerByEmail(ctx context.Context, email string) (id.ID, error)
}

// UniquenessGuard rejects tax ids and emails already held by another client.
// The database unique constraints remain the final arbiter under concurrent
// writers; the guard gives a precise error first.
type UniquenessGuard struct {
	lookup OwnerLookup
}

func NewUniquenessGuard(lookup OwnerLookup) *UniquenessGuard {
	return &UniquenessGuard{lookup: lookup}
}

// CheckUnique checks taxID, then email. excludeID is the client being updated
// and is zero on create.
func (g *UniquenessGuard) CheckUnique(ctx context.Context, taxID, email string, excludeID id.ID) error {
	taken, err := g.heldByOther(ctx, g.lookup.FindOwnerByTaxID, taxID, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperror.NewDuplicateTaxID(taxID)
	}

	email = strings.ToLower(strings.TrimSpace(email))
	taken, err = g.heldByOther(ctx, g.lookup.FindOwnerByEmail, email, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperror.NewDuplicateEmail(email)
	}
	return nil
}

func (g *UniquenessGuard) heldByOther(
	ctx context.Context,
	find func(context.Context, string) (id.ID, error),
	value string,
	excludeID id.ID,
) (bool, error) {
	owner, err := find(ctx, value)
	if err != nil {
		// Not found is OK; anything else is a storage failure.
		if apperror.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return owner != excludeID, nil
}
