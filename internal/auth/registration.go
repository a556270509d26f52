package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
	"github.com/Chitrarthrai/NeoCompliance/internal/ids"
)

// NewUser is the input of the generic (manager/associate) creation flow.
type NewUser struct {
	Name           string
	Email          string
	Password       string
	Role           string
	AssignedStores []string
}

type NewInspector struct {
	Name     string
	Email    string
	Password string
}

type NewAssociate struct {
	Name     string
	Email    string
	Password string
}

// CreateUser registers a manager or associate and adds them to every
// assigned store's membership for their role.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (Identity, error) {
	if err := validateCredentials(in.Name, in.Email, in.Password); err != nil {
		return Identity{}, err
	}
	role := RoleAssociate
	if strings.TrimSpace(in.Role) != "" {
		parsed, ok := ParseRole(in.Role)
		if !ok {
			return Identity{}, apperr.BadRequest("Role must be manager or associate.")
		}
		role = parsed
	}
	if role == RoleInspector {
		return Identity{}, apperr.Forbidden("Use dedicated route to create inspectors.")
	}
	stores := dedupe(in.AssignedStores)
	if err := s.checkStores(ctx, stores); err != nil {
		return Identity{}, err
	}
	identity := Identity{
		Name:           strings.TrimSpace(in.Name),
		Email:          strings.TrimSpace(in.Email),
		Role:           role,
		AssignedStores: stores,
		Variant:        VariantUser,
	}
	return s.register(ctx, identity, in.Password)
}

// CreateInspector registers an inspector. Inspectors own no store membership.
func (s *Service) CreateInspector(ctx context.Context, in NewInspector) (Identity, error) {
	if err := validateCredentials(in.Name, in.Email, in.Password); err != nil {
		return Identity{}, err
	}
	identity := Identity{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.TrimSpace(in.Email),
		Role:    RoleInspector,
		Variant: VariantInspector,
	}
	return s.register(ctx, identity, in.Password)
}

// CreateAssociate registers an associate under the calling manager, who
// must be a manager. The associate inherits the manager's assigned stores.
func (s *Service) CreateAssociate(ctx context.Context, manager Principal, in NewAssociate) (Identity, error) {
	if manager.Role != RoleManager {
		return Identity{}, apperr.Forbidden("Only managers can create associates.")
	}
	if err := validateCredentials(in.Name, in.Email, in.Password); err != nil {
		return Identity{}, err
	}
	record, err := s.dir.FindByID(ctx, manager.ID)
	if err != nil {
		return Identity{}, err
	}
	identity := Identity{
		Name:           strings.TrimSpace(in.Name),
		Email:          strings.TrimSpace(in.Email),
		Role:           RoleAssociate,
		AssignedStores: dedupe(record.AssignedStores),
		Variant:        VariantUser,
	}
	return s.register(ctx, identity, in.Password)
}

func (s *Service) register(ctx context.Context, identity Identity, password string) (Identity, error) {
	taken, err := s.dir.EmailTaken(ctx, identity.Email)
	if err != nil {
		return Identity{}, fmt.Errorf("register: %w", err)
	}
	if taken {
		return Identity{}, apperr.BadRequest("Email already exists.")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Identity{}, fmt.Errorf("register: hash password: %w", err)
	}
	now := s.now().UTC()
	identity.ID = ids.NewAt(now)
	identity.PasswordHash = hash
	identity.Status = StatusActive
	identity.CreatedAt = now
	identity.UpdatedAt = now

	collection := s.dir.Collection(identity.Variant)
	if collection == nil {
		return Identity{}, fmt.Errorf("register: no collection for %s", identity.Variant)
	}
	if err := collection.Create(ctx, &identity); err != nil {
		return Identity{}, fmt.Errorf("register: %w", err)
	}
	if s.members != nil {
		for _, storeID := range identity.AssignedStores {
			if err := s.members.AddMember(ctx, storeID, identity.ID, identity.Role); err != nil {
				return Identity{}, fmt.Errorf("register: add %s to store %s: %w", identity.ID, storeID, err)
			}
		}
	}
	return identity, nil
}

func (s *Service) checkStores(ctx context.Context, stores []string) error {
	if len(stores) == 0 || s.members == nil {
		return nil
	}
	missing, err := s.members.MissingStores(ctx, stores)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if len(missing) > 0 {
		return apperr.BadRequest("Unknown store ids: " + strings.Join(missing, ", "))
	}
	return nil
}

func validateCredentials(name, email, password string) error {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return apperr.BadRequest("Name, email, and password are required.")
	}
	if !validEmail(email) {
		return apperr.BadRequest("Invalid Email Address")
	}
	if len(password) < minPasswordLength {
		return apperr.BadRequest(fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
	}
	if n := len([]rune(name)); n < minNameLength || n > maxNameLength {
		return apperr.BadRequest(fmt.Sprintf("Name must be between %d and %d characters.", minNameLength, maxNameLength))
	}
	return nil
}

// dedupe trims ids and drops blanks and repeats, keeping first occurrence order.
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
