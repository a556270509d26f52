package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
)

type variantSource struct {
	variant Variant
	store   IdentityStore
}

// Directory resolves identities across the user and inspector collections
// in a fixed order and tags each result with the collection it came from.
type Directory struct {
	sources []variantSource
}

func NewDirectory(users, inspectors IdentityStore) *Directory {
	return &Directory{sources: []variantSource{
		{variant: VariantUser, store: users},
		{variant: VariantInspector, store: inspectors},
	}}
}

// Collection returns the store backing variant v, or nil.
func (d *Directory) Collection(v Variant) IdentityStore {
	for _, src := range d.sources {
		if src.variant == v {
			return src.store
		}
	}
	return nil
}

func (d *Directory) FindByEmail(ctx context.Context, email string) (Identity, error) {
	return d.find(ctx, func(s IdentityStore) (Identity, error) { return s.FindByEmail(ctx, email) })
}

func (d *Directory) FindByID(ctx context.Context, id string) (Identity, error) {
	return d.find(ctx, func(s IdentityStore) (Identity, error) { return s.FindByID(ctx, id) })
}

// EmailTaken reports whether any collection already holds email.
func (d *Directory) EmailTaken(ctx context.Context, email string) (bool, error) {
	_, err := d.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (d *Directory) find(ctx context.Context, lookup func(IdentityStore) (Identity, error)) (Identity, error) {
	for _, src := range d.sources {
		if err := ctx.Err(); err != nil {
			return Identity{}, err
		}
		identity, err := lookup(src.store)
		if err == nil {
			identity.Variant = src.variant
			if src.variant == VariantInspector {
				identity.Role = RoleInspector
			}
			return identity, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return Identity{}, fmt.Errorf("lookup %s: %w", src.variant, err)
		}
	}
	return Identity{}, ErrUserNotFound
}
