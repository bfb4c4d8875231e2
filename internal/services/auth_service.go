// Package services provides the business logic layer for AdvisorDesk: login,
// form-filling sessions, template import, the PDF overlay editor and draft
// autosave. Handlers talk to services; services talk to repositories.
package services

import (
	"context"
	"errors"

	"github.com/avissapr/advisordesk/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by Authenticate for an unknown email and
// for a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserFinder looks up accounts by email. Satisfied by *repository.UserRepository.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// AuthService checks credentials and hashes passwords with bcrypt.
type AuthService struct {
	users UserFinder
	cost  int
	// dummy is compared against when the email is unknown so both failure
	// paths cost one bcrypt comparison.
	dummy []byte
}

// NewAuthService returns an AuthService hashing at cost. A cost below
// bcrypt.MinCost falls back to 12.
func NewAuthService(users UserFinder, cost int) *AuthService {
	if cost < bcrypt.MinCost {
		cost = 12
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("advisordesk-unknown-user"), cost)
	return &AuthService{users: users, cost: cost, dummy: dummy}
}

// Authenticate returns the account for email when password matches its hash.
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// HashPassword returns the bcrypt hash of password, salt and cost included.
// cmd/hashpw uses it to seed accounts.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	return string(hash), err
}
