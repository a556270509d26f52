package auth

import (
	"context"
	"time"
)

// IdentityStore persists one identity collection. Lookups of absent records
// return an error matching apperr.ErrNotFound; duplicate emails on Create
// return one matching apperr.ErrConflict.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (Identity, error)
	FindByID(ctx context.Context, id string) (Identity, error)
	Create(ctx context.Context, identity *Identity) error
	SetAssignedStores(ctx context.Context, id string, storeIDs []string, at time.Time) (Identity, error)
}

// RefreshTokenStore keeps the per-subject set of live refresh token digests.
type RefreshTokenStore interface {
	AddRefreshToken(ctx context.Context, subjectID, digest string, expiresAt time.Time) error
	// ReplaceRefreshToken swaps oldDigest for newDigest in one step and reports
	// false without writing when oldDigest is not in the set.
	ReplaceRefreshToken(ctx context.Context, subjectID, oldDigest, newDigest string, expiresAt time.Time) (bool, error)
	RemoveRefreshToken(ctx context.Context, subjectID, digest string) (bool, error)
	HasRefreshToken(ctx context.Context, subjectID, digest string) (bool, error)
}

// Memberships is the store hierarchy as seen by registration.
type Memberships interface {
	AddMember(ctx context.Context, storeID, userID string, role Role) error
	MissingStores(ctx context.Context, storeIDs []string) ([]string, error)
}
