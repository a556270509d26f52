package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier confirms that a plaintext secret matches a stored hash.
type CredentialVerifier interface {
	Verify(hash, secret string) bool
}

// PasswordHasher produces hashes that its own Verify accepts.
type PasswordHasher interface {
	CredentialVerifier
	Hash(secret string) (string, error)
}

// Bcrypt implements PasswordHasher. A zero Cost uses bcrypt.DefaultCost.
type Bcrypt struct {
	Cost int
}

func (b Bcrypt) Hash(secret string) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("password is empty")
	}
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (Bcrypt) Verify(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
