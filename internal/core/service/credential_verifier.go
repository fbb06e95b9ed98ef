package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
	"github.com/yarago/auth-service/internal/pkg/metrics"
)

// CredentialVerifier checks identifier+password pairs and applies the
// progressive lockout.
type CredentialVerifier struct {
	users       ports.UserDirectory
	hasher      ports.PasswordHasher
	maxAttempts int
	now         func() time.Time
	log         zerolog.Logger
}

func NewCredentialVerifier(users ports.UserDirectory, hasher ports.PasswordHasher, maxAttempts int, log zerolog.Logger) *CredentialVerifier {
	if maxAttempts <= 0 {
		maxAttempts = domain.MaxLoginAttempts
	}
	return &CredentialVerifier{
		users:       users,
		hasher:      hasher,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log,
	}
}

// Verify returns the authenticated user.
//
// Unknown and inactive accounts fail exactly like a wrong password. A locked
// account fails with domain.ErrAccountLocked before the password is looked at.
func (v *CredentialVerifier) Verify(ctx context.Context, identifier, password string) (*domain.User, error) {
	if identifier == "" || password == "" {
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	user, err := v.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active {
		metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, domain.ErrInvalidCredentials
	}
	if user.AccountLocked {
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, domain.ErrAccountLocked
	}

	ok, err := v.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, v.recordFailure(ctx, user)
	}

	now := v.now()
	if err := v.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		if errors.Is(err, domain.ErrAccountLocked) {
			metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
			return nil, domain.ErrAccountLocked
		}
		return nil, fmt.Errorf("record login success: %w", err)
	}

	user.FailedLoginAttempts = 0
	user.LastLoginAt = &now
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	return user, nil
}

func (v *CredentialVerifier) recordFailure(ctx context.Context, user *domain.User) error {
	failure, err := v.users.RecordLoginFailure(ctx, user.ID, v.maxAttempts)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}

	metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
	if failure.JustLocked() {
		metrics.AccountLockoutsTotal.Inc()
		v.log.Warn().
			Str("user_id", user.ID).
			Int("attempts", failure.Attempts).
			Msg("account locked after repeated failed logins")
	}
	return domain.ErrInvalidCredentials
}
