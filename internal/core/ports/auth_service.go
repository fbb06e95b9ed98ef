package ports

import (
	"context"
	"time"

	"github.com/yarago/auth-service/internal/core/domain"
)

// LoginInput carries credentials plus request provenance.
type LoginInput struct {
	Identifier string
	Password   string
	IPAddress  string
	UserAgent  string
}

// RegisterInput carries a new account. Roles default to domain.DefaultRole.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber string
	Designation string
	Department  string
	EmployeeID  string
	BranchID    string
	Roles       []string
	IPAddress   string
	UserAgent   string
}

// UserInfo is the public view of an account.
type UserInfo struct {
	ID                  string
	Username            string
	Email               string
	FirstName           string
	LastName            string
	BranchID            string
	Roles               []string
	Active              bool
	AccountLocked       bool
	FailedLoginAttempts int
	LastLoginAt         *time.Time
}

// AuthResult is returned by every operation that opens or extends a session.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	// ExpiresIn is the access-token lifetime in seconds.
	ExpiresIn int64
	User      UserInfo
	// EvictedSessions counts sessions revoked by the per-user cap.
	EvictedSessions int64
}

// AuthService is the session lifecycle API.
type AuthService interface {
	Login(ctx context.Context, in LoginInput) (*AuthResult, error)
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResult, error)
	Logout(ctx context.Context, username string) error
}

// AdminService covers the administrative account actions.
type AdminService interface {
	GetUser(ctx context.Context, userID string) (*UserInfo, error)
	UnlockAccount(ctx context.Context, userID string) error
	SetActive(ctx context.Context, userID string, active bool) error
	ResetPassword(ctx context.Context, userID, newPassword string) error
	ListRoles(ctx context.Context) ([]domain.Role, error)
}
