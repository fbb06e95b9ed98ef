package handler

import (
	"time"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// envelope wraps every successful payload.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func success(message string, data any) envelope {
	return envelope{Success: true, Message: message, Data: data}
}

// --- Request types ---

type loginRequest struct {
	// Identifier is a username or an email address.
	Identifier string `json:"username" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username    string   `json:"username"     validate:"required,min=3,max=50"`
	Email       string   `json:"email"        validate:"required,email"`
	Password    string   `json:"password"     validate:"required,min=8"`
	FirstName   string   `json:"first_name"   validate:"required"`
	LastName    string   `json:"last_name"    validate:"required"`
	PhoneNumber string   `json:"phone_number"`
	Designation string   `json:"designation"`
	Department  string   `json:"department"`
	EmployeeID  string   `json:"employee_id"`
	BranchID    string   `json:"branch_id"`
	Roles       []string `json:"roles"        validate:"omitempty,dive,startswith=ROLE_"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type statusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type passwordResetRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

// --- Response types ---

type userResponse struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	FirstName           string     `json:"first_name,omitempty"`
	LastName            string     `json:"last_name,omitempty"`
	BranchID            string     `json:"branch_id,omitempty"`
	Roles               []string   `json:"roles"`
	Active              bool       `json:"active"`
	AccountLocked       bool       `json:"account_locked"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
}

type authResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         userResponse `json:"user"`
}

type meResponse struct {
	Username  string    `json:"username"`
	UserID    string    `json:"user_id"`
	BranchID  string    `json:"branch_id,omitempty"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expires_at"`
}

type roleResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func toUserResponse(u ports.UserInfo) userResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return userResponse{
		ID:                  u.ID,
		Username:            u.Username,
		Email:               u.Email,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		BranchID:            u.BranchID,
		Roles:               roles,
		Active:              u.Active,
		AccountLocked:       u.AccountLocked,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LastLoginAt:         u.LastLoginAt,
	}
}

func toAuthResponse(r *ports.AuthResult) authResponse {
	return authResponse{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresIn:    r.ExpiresIn,
		User:         toUserResponse(r.User),
	}
}

func toRoleResponses(roles []domain.Role) []roleResponse {
	out := make([]roleResponse, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleResponse{Name: r.Name, Description: r.Description})
	}
	return out
}
