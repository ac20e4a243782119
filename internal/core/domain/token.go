package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// API Tokens
// =============================================================================

var (
	ErrEmptyTokenName = errors.New("token name must not be empty")
	ErrEmptyTokenHash = errors.New("token hash must not be empty")
)

// APIToken is a stored API credential. Only the bcrypt hash is persisted;
// the plaintext token is shown once at creation time.
type APIToken struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Hash      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAPIToken creates a token record for a precomputed hash.
func NewAPIToken(name, hash string) (*APIToken, error) {
	if name == "" {
		return nil, ErrEmptyTokenName
	}
	if hash == "" {
		return nil, ErrEmptyTokenHash
	}
	return &APIToken{
		ID:        uuid.New().String(),
		Name:      name,
		Hash:      hash,
		CreatedAt: time.Now().UTC(),
	}, nil
}
