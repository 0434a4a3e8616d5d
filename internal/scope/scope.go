// Package scope carries the per-request authorization context: the
// authenticated user plus their optional preference record. A Scope is
// constructed fresh for every request and never persisted.
package scope

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"smarttodo/internal/apperr"
	"smarttodo/internal/db"
)

type Scope struct {
	User       db.User
	Preference *db.UserPreference
}

func (s Scope) UserID() int64 { return s.User.ID }

// Provider builds scopes for validated caller identities.
type Provider struct {
	gdb *gorm.DB
}

func NewProvider(gdb *gorm.DB) (*Provider, error) {
	if gdb == nil {
		return nil, errors.New("db is required")
	}
	return &Provider{gdb: gdb}, nil
}

// ForUser loads the scope for userID. The preference row is optional.
func (p *Provider) ForUser(userID int64) (Scope, error) {
	var user db.User
	err := p.gdb.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Scope{}, apperr.NotFound("user %d not found", userID)
	}
	if err != nil {
		return Scope{}, fmt.Errorf("load user %d: %w", userID, err)
	}

	var pref db.UserPreference
	err = p.gdb.First(&pref, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Scope{User: user}, nil
	}
	if err != nil {
		return Scope{}, fmt.Errorf("load preference for user %d: %w", userID, err)
	}
	return Scope{User: user, Preference: &pref}, nil
}

// ForEmail resolves a caller by email, creating the user row on first use.
// Authentication is out of scope; the CLI trusts the supplied identity.
func (p *Provider) ForEmail(email string) (Scope, error) {
	if email == "" {
		return Scope{}, apperr.Validation("email is required")
	}
	var user db.User
	err := p.gdb.Where(db.User{Email: email}).FirstOrCreate(&user).Error
	if err != nil {
		return Scope{}, fmt.Errorf("resolve user %q: %w", email, err)
	}
	return p.ForUser(user.ID)
}
