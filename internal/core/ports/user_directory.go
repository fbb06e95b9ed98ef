package ports

import (
	"context"
	"time"

	"github.com/yarago/auth-service/internal/core/domain"
)

// UserDirectory persists accounts and their lockout state.
//
// RecordLoginFailure and RecordLoginSuccess must each be a single atomic
// conditional update: concurrent callers can never push the failure counter
// past maxAttempts or reset it on a locked account.
type UserDirectory interface {
	// FindByIdentifier looks a user up by username or e-mail.
	FindByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// Create stores a new user. Returns domain.ErrDuplicateIdentifier when the
	// username or e-mail is taken.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)

	// RecordLoginFailure increments the counter by one while the account is
	// unlocked and locks it when the counter reaches maxAttempts. On a locked
	// account it changes nothing and reports Locked.
	RecordLoginFailure(ctx context.Context, userID string, maxAttempts int) (domain.LoginFailure, error)
	// RecordLoginSuccess resets the counter and stamps the login time. Returns
	// domain.ErrAccountLocked if the account was locked in the meantime.
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error

	Unlock(ctx context.Context, userID string) error
	SetActive(ctx context.Context, userID string, active bool) error
	UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error
}

// RoleDirectory resolves role names.
type RoleDirectory interface {
	FindByName(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
}
