package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
	"github.com/yarago/auth-service/internal/pkg/metrics"
)

const (
	tokenTypeBearer = "Bearer"

	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// AuthConfig holds the tunables of the session lifecycle.
type AuthConfig struct {
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	MaxActiveSessions int
	DefaultRole       string
}

// AuthService implements login, registration, refresh and logout on top of
// the credential verifier, the token codec and the session store.
type AuthService struct {
	users    ports.UserDirectory
	roles    ports.RoleDirectory
	sessions ports.SessionStore
	codec    ports.TokenCodec
	hasher   ports.PasswordHasher
	verifier *CredentialVerifier
	cfg      AuthConfig
	now      func() time.Time
	log      zerolog.Logger
}

func NewAuthService(
	users ports.UserDirectory,
	roles ports.RoleDirectory,
	sessions ports.SessionStore,
	codec ports.TokenCodec,
	hasher ports.PasswordHasher,
	verifier *CredentialVerifier,
	cfg AuthConfig,
	log zerolog.Logger,
) *AuthService {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = defaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = defaultRefreshTokenTTL
	}
	if cfg.MaxActiveSessions <= 0 {
		cfg.MaxActiveSessions = domain.MaxActiveSessions
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = domain.DefaultRole
	}
	return &AuthService{
		users:    users,
		roles:    roles,
		sessions: sessions,
		codec:    codec,
		hasher:   hasher,
		verifier: verifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// Login verifies credentials and opens a new refresh session.
func (s *AuthService) Login(ctx context.Context, in ports.LoginInput) (*ports.AuthResult, error) {
	user, err := s.verifier.Verify(ctx, in.Identifier, in.Password)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, user, in.IPAddress, in.UserAgent)
}

// Register creates the account and logs it in.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*ports.AuthResult, error) {
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, domain.ErrInvalidInput
	}

	roles, err := s.resolveRoles(ctx, in.Roles)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	created, err := s.users.Create(ctx, &domain.User{
		ID:                uuid.NewString(),
		Username:          in.Username,
		Email:             in.Email,
		PasswordHash:      hash,
		Active:            true,
		PasswordChangedAt: &now,
		Roles:             roles,
		BranchID:          in.BranchID,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		PhoneNumber:       in.PhoneNumber,
		Designation:       in.Designation,
		Department:        in.Department,
		EmployeeID:        in.EmployeeID,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", created.ID).Strs("roles", roles).Msg("user registered")
	return s.openSession(ctx, created, in.IPAddress, in.UserAgent)
}

// Refresh mints a new access token for a live session. The refresh token is
// returned unchanged.
//
// Every rejection is domain.ErrInvalidToken; the concrete reason is only
// logged. Infrastructure failures propagate.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*ports.AuthResult, error) {
	result, err := s.refresh(ctx, refreshToken)
	if err != nil {
		var rej *rejection
		if errors.As(err, &rej) {
			metrics.RefreshTotal.WithLabelValues("invalid_token").Inc()
			s.log.Info().Err(rej.reason).Msg("refresh rejected")
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	metrics.RefreshTotal.WithLabelValues("success").Inc()
	return result, nil
}

// rejection marks a refresh failure caused by the token or its session, as
// opposed to an infrastructure error.
type rejection struct {
	reason error
}

func (r *rejection) Error() string { return "refresh rejected: " + r.reason.Error() }

func reject(reason error) error { return &rejection{reason: reason} }

func (s *AuthService) refresh(ctx context.Context, refreshToken string) (*ports.AuthResult, error) {
	claims, err := s.codec.ParseSessionToken(refreshToken)
	if err != nil {
		return nil, reject(err)
	}

	session, err := s.sessions.Resolve(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, reject(err)
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if session.Revoked {
		return nil, reject(domain.ErrSessionRevoked)
	}
	if !session.IsValid(s.now()) {
		return nil, reject(domain.ErrSessionExpired)
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, reject(fmt.Errorf("session owner %s: %w", session.UserID, err))
		}
		return nil, fmt.Errorf("load session owner: %w", err)
	}
	if user.Username != claims.Subject {
		return nil, reject(errors.New("token subject does not own session"))
	}
	if !user.CanAuthenticate() {
		return nil, reject(fmt.Errorf("session owner %s is inactive or locked", user.ID))
	}

	access, err := s.codec.IssueAccessToken(user.Username, user.ID, user.BranchID, user.Roles, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &ports.AuthResult{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL / time.Second),
		User:         ToUserInfo(user),
	}, nil
}

// Logout revokes every session of the user. Repeating it is harmless.
func (s *AuthService) Logout(ctx context.Context, username string) error {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return err
	}

	revoked, err := s.sessions.RevokeAll(ctx, user.ID, s.now())
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	metrics.LogoutsTotal.Inc()
	s.log.Info().Str("user_id", user.ID).Int64("sessions_revoked", revoked).Msg("user logged out")
	return nil
}

func (s *AuthService) openSession(ctx context.Context, user *domain.User, ip, userAgent string) (*ports.AuthResult, error) {
	access, err := s.codec.IssueAccessToken(user.Username, user.ID, user.BranchID, user.Roles, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.IssueSessionToken(user.Username, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	created, err := s.sessions.Create(ctx, ports.CreateSessionInput{
		UserID:    user.ID,
		Token:     refresh,
		TTL:       s.cfg.RefreshTokenTTL,
		IPAddress: ip,
		UserAgent: userAgent,
		Now:       s.now(),
		MaxActive: s.cfg.MaxActiveSessions,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	metrics.SessionsCreatedTotal.Inc()
	if created.Evicted > 0 {
		metrics.SessionEvictionsTotal.Add(float64(created.Evicted))
		s.log.Info().
			Str("user_id", user.ID).
			Int64("evicted", created.Evicted).
			Msg("session cap reached, revoked existing sessions")
	}

	return &ports.AuthResult{
		AccessToken:     access,
		RefreshToken:    refresh,
		TokenType:       tokenTypeBearer,
		ExpiresIn:       int64(s.cfg.AccessTokenTTL / time.Second),
		User:            ToUserInfo(user),
		EvictedSessions: created.Evicted,
	}, nil
}

func (s *AuthService) resolveRoles(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) == 0 {
		requested = []string{s.cfg.DefaultRole}
	}

	roles := make([]string, 0, len(requested))
	for _, name := range requested {
		if slices.Contains(roles, name) {
			continue
		}
		role, err := s.roles.FindByName(ctx, name)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role.Name)
	}
	return roles, nil
}

// ToUserInfo projects a user onto its public view.
func ToUserInfo(u *domain.User) ports.UserInfo {
	return ports.UserInfo{
		ID:                  u.ID,
		Username:            u.Username,
		Email:               u.Email,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		BranchID:            u.BranchID,
		Roles:               slices.Clone(u.Roles),
		Active:              u.Active,
		AccountLocked:       u.AccountLocked,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LastLoginAt:         u.LastLoginAt,
	}
}
