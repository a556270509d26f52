package auth

import (
	"strings"
	"time"
)

// Role is the business role carried by every identity.
type Role string

const (
	RoleManager   Role = "manager"
	RoleAssociate Role = "associate"
	RoleInspector Role = "inspector"
)

// ParseRole normalises s into a known role.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleManager:
		return RoleManager, true
	case RoleAssociate:
		return RoleAssociate, true
	case RoleInspector:
		return RoleInspector, true
	}
	return "", false
}

// ParseRoles parses a configured role list, rejecting unknown names.
func ParseRoles(names []string) ([]Role, bool) {
	out := make([]Role, 0, len(names))
	for _, name := range names {
		r, ok := ParseRole(name)
		if !ok {
			return nil, false
		}
		out = append(out, r)
	}
	return out, true
}

// Variant tags the identity collection a record was resolved from.
type Variant string

const (
	VariantUser      Variant = "user"
	VariantInspector Variant = "inspector"
)

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Identity is a user or inspector account record.
type Identity struct {
	ID             string
	Name           string
	Email          string
	PasswordHash   string
	Role           Role
	AssignedStores []string
	Status         string
	Variant        Variant
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (i Identity) Active() bool { return i.Status == StatusActive }

// Principal returns the claim set embedded in tokens issued for i.
func (i Identity) Principal() Principal {
	return Principal{
		ID:       i.ID,
		Email:    i.Email,
		Username: i.Name,
		Role:     i.Role,
		Variant:  i.Variant,
	}
}

// Profile returns the client-facing view of i. It never carries the password hash.
func (i Identity) Profile() Profile {
	stores := i.AssignedStores
	if stores == nil {
		stores = []string{}
	}
	return Profile{
		ID:             i.ID,
		Name:           i.Name,
		Email:          i.Email,
		Role:           i.Role,
		Variant:        i.Variant,
		AssignedStores: stores,
		Status:         i.Status,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
}

type Profile struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	Variant        Variant   `json:"variant"`
	AssignedStores []string  `json:"assigned_stores"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Principal is the authenticated caller as asserted by a verified token.
type Principal struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Role     Role    `json:"role"`
	Variant  Variant `json:"variant"`
}

// TokenPair is the result of issuing credentials for a principal.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
