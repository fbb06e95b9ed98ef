package domain

import (
	"slices"
	"time"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the verified content of a token. It is a value snapshot: the role
// list is copied in and out so holders cannot mutate each other's view.
type Claims struct {
	Subject   string
	UserID    string
	BranchID  string
	TokenType string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time

	roles []string
}

// NewClaims builds a Claims value with a private copy of roles.
func NewClaims(subject, userID, branchID, tokenType string, roles []string, issuedAt, expiresAt time.Time) Claims {
	return Claims{
		Subject:   subject,
		UserID:    userID,
		BranchID:  branchID,
		TokenType: tokenType,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		roles:     slices.Clone(roles),
	}
}

// Roles returns a copy of the role names.
func (c Claims) Roles() []string {
	return slices.Clone(c.roles)
}

// HasRole reports whether role is among the claimed roles.
func (c Claims) HasRole(role string) bool {
	return slices.Contains(c.roles, role)
}
