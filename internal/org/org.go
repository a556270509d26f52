// Package org maintains the store hierarchy: stores and their role-partitioned
// manager and associate memberships.
package org

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/ids"
)

var ErrStoreNotFound = apperr.NotFound("Store not found")

type Store struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Managers   []string  `json:"managers"`
	Associates []string  `json:"associates"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Members returns the membership list for role.
func (s Store) Members(role auth.Role) []string {
	switch role {
	case auth.RoleManager:
		return s.Managers
	case auth.RoleAssociate:
		return s.Associates
	}
	return nil
}

// HasMember reports whether userID is in the membership list for role.
func (s Store) HasMember(userID string, role auth.Role) bool {
	for _, id := range s.Members(role) {
		if id == userID {
			return true
		}
	}
	return false
}

// Repository persists stores. Membership additions are set-like: adding an
// existing member is a no-op. Unknown stores yield ErrStoreNotFound.
type Repository interface {
	CreateStore(ctx context.Context, store *Store) error
	GetStore(ctx context.Context, id string) (Store, error)
	ListStores(ctx context.Context) ([]Store, error)
	AddStoreMember(ctx context.Context, storeID, userID string, role auth.Role) error
	RemoveStoreMember(ctx context.Context, storeID, userID string, role auth.Role) (bool, error)
	StoresWithMember(ctx context.Context, userID string, role auth.Role) ([]Store, error)
}

type Service struct {
	repo Repository
	dir  *auth.Directory
	now  func() time.Time
}

func NewService(repo Repository, dir *auth.Directory) *Service {
	return &Service{repo: repo, dir: dir, now: time.Now}
}

func membershipRole(role auth.Role) error {
	if role != auth.RoleManager && role != auth.RoleAssociate {
		return apperr.BadRequest(fmt.Sprintf("Role %q has no store membership.", role))
	}
	return nil
}

// AddMember adds userID to storeID's membership for role.
func (s *Service) AddMember(ctx context.Context, storeID, userID string, role auth.Role) error {
	if err := membershipRole(role); err != nil {
		return err
	}
	return s.repo.AddStoreMember(ctx, storeID, userID, role)
}

// MissingStores returns the ids in storeIDs that name no store.
func (s *Service) MissingStores(ctx context.Context, storeIDs []string) ([]string, error) {
	var missing []string
	for _, id := range storeIDs {
		if !ids.Valid(id) {
			missing = append(missing, id)
			continue
		}
		if _, err := s.repo.GetStore(ctx, id); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				missing = append(missing, id)
				continue
			}
			return nil, err
		}
	}
	return missing, nil
}

func (s *Service) CreateStore(ctx context.Context, name string) (Store, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Store{}, apperr.BadRequest("Store name is required.")
	}
	now := s.now().UTC()
	store := Store{
		ID:         ids.NewAt(now),
		Name:       name,
		Managers:   []string{},
		Associates: []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateStore(ctx, &store); err != nil {
		return Store{}, fmt.Errorf("create store: %w", err)
	}
	return store, nil
}

func (s *Service) ListStores(ctx context.Context) ([]Store, error) {
	return s.repo.ListStores(ctx)
}

func (s *Service) GetStore(ctx context.Context, id string) (Store, error) {
	if strings.TrimSpace(id) == "" {
		return Store{}, apperr.BadRequest("Store id is required.")
	}
	return s.repo.GetStore(ctx, id)
}

func (s *Service) StoresWithMember(ctx context.Context, userID string, role auth.Role) ([]Store, error) {
	return s.repo.StoresWithMember(ctx, userID, role)
}

// AssignStores replaces the user's assigned store list with storeIDs and adds
// the user to each store's membership. Memberships of stores dropped from the
// list are kept; use UnassignStore to remove them.
func (s *Service) AssignStores(ctx context.Context, userID string, storeIDs []string) (auth.Identity, error) {
	if strings.TrimSpace(userID) == "" {
		return auth.Identity{}, apperr.BadRequest("User id is required.")
	}
	stores := dedupe(storeIDs)
	if len(stores) == 0 {
		return auth.Identity{}, apperr.BadRequest("At least one store id is required.")
	}
	users := s.dir.Collection(auth.VariantUser)
	user, err := users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return auth.Identity{}, auth.ErrUserNotFound
		}
		return auth.Identity{}, err
	}
	missing, err := s.MissingStores(ctx, stores)
	if err != nil {
		return auth.Identity{}, err
	}
	if len(missing) > 0 {
		return auth.Identity{}, apperr.BadRequest("Unknown store ids: " + strings.Join(missing, ", "))
	}
	for _, storeID := range stores {
		if err := s.AddMember(ctx, storeID, user.ID, user.Role); err != nil {
			return auth.Identity{}, fmt.Errorf("assign store %s: %w", storeID, err)
		}
	}
	updated, err := users.SetAssignedStores(ctx, user.ID, stores, s.now().UTC())
	if err != nil {
		return auth.Identity{}, fmt.Errorf("assign stores: %w", err)
	}
	updated.Variant = auth.VariantUser
	return updated, nil
}

// UnassignStore removes the user from storeID's membership and assigned list.
func (s *Service) UnassignStore(ctx context.Context, userID, storeID string) (auth.Identity, error) {
	userID = strings.TrimSpace(userID)
	storeID = strings.TrimSpace(storeID)
	if userID == "" || storeID == "" {
		return auth.Identity{}, apperr.BadRequest("User id and store id are required.")
	}
	users := s.dir.Collection(auth.VariantUser)
	user, err := users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return auth.Identity{}, auth.ErrUserNotFound
		}
		return auth.Identity{}, err
	}
	if _, err := s.repo.GetStore(ctx, storeID); err != nil {
		return auth.Identity{}, err
	}
	removed, err := s.repo.RemoveStoreMember(ctx, storeID, user.ID, user.Role)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("unassign store: %w", err)
	}
	remaining := make([]string, 0, len(user.AssignedStores))
	listed := false
	for _, id := range user.AssignedStores {
		if id == storeID {
			listed = true
			continue
		}
		remaining = append(remaining, id)
	}
	if !removed && !listed {
		return auth.Identity{}, apperr.NotFound("Store assignment not found")
	}
	updated, err := users.SetAssignedStores(ctx, user.ID, remaining, s.now().UTC())
	if err != nil {
		return auth.Identity{}, fmt.Errorf("unassign store: %w", err)
	}
	updated.Variant = auth.VariantUser
	return updated, nil
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
