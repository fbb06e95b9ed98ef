package domain

import "time"

// MaxActiveSessions bounds the number of valid refresh sessions per user.
const MaxActiveSessions = 5

// Session is a server-side record backing one refresh token.
type Session struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// IsValid reports whether the session is neither revoked nor expired at now.
func (s *Session) IsValid(now time.Time) bool {
	return !s.Revoked && s.ExpiresAt.After(now)
}
