package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
)

// AdminService performs administrative account actions. Anything that
// changes who may authenticate also ends the user's sessions.
type AdminService struct {
	users    ports.UserDirectory
	roles    ports.RoleDirectory
	sessions ports.SessionStore
	hasher   ports.PasswordHasher
	now      func() time.Time
	log      zerolog.Logger
}

func NewAdminService(users ports.UserDirectory, roles ports.RoleDirectory, sessions ports.SessionStore, hasher ports.PasswordHasher, log zerolog.Logger) *AdminService {
	return &AdminService{
		users:    users,
		roles:    roles,
		sessions: sessions,
		hasher:   hasher,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

func (s *AdminService) GetUser(ctx context.Context, userID string) (*ports.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	info := ToUserInfo(user)
	return &info, nil
}

// UnlockAccount clears the lock flag and the failed-attempt counter.
func (s *AdminService) UnlockAccount(ctx context.Context, userID string) error {
	if err := s.users.Unlock(ctx, userID); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Msg("account unlocked")
	return nil
}

// SetActive enables or disables the account. Disabling revokes its sessions.
func (s *AdminService) SetActive(ctx context.Context, userID string, active bool) error {
	if err := s.users.SetActive(ctx, userID, active); err != nil {
		return err
	}
	if !active {
		if err := s.revokeSessions(ctx, userID); err != nil {
			return err
		}
	}
	s.log.Info().Str("user_id", userID).Bool("active", active).Msg("account status changed")
	return nil
}

// ResetPassword replaces the password, unlocks the account and revokes its
// sessions.
func (s *AdminService) ResetPassword(ctx context.Context, userID, newPassword string) error {
	if newPassword == "" {
		return domain.ErrInvalidInput
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash, s.now()); err != nil {
		return err
	}
	if err := s.revokeSessions(ctx, userID); err != nil {
		return err
	}
	s.log.Info().Str("user_id", userID).Msg("password reset")
	return nil
}

func (s *AdminService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.roles.List(ctx)
}

func (s *AdminService) revokeSessions(ctx context.Context, userID string) error {
	if _, err := s.sessions.RevokeAll(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}
