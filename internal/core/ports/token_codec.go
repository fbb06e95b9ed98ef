package ports

import (
	"time"

	"github.com/yarago/auth-service/internal/core/domain"
)

// TokenCodec mints and verifies signed tokens. Implementations hold no state
// beyond their key and clock.
type TokenCodec interface {
	IssueAccessToken(subject, userID, branchID string, roles []string, ttl time.Duration) (string, error)
	IssueSessionToken(subject string, ttl time.Duration) (string, error)
	// ParseAndVerify checks signature, structure and expiry. Any failure is
	// domain.ErrInvalidToken.
	ParseAndVerify(token string) (domain.Claims, error)
	VerifyFor(token, expectedSubject string) (domain.Claims, error)
	ParseAccessToken(token string) (domain.Claims, error)
	ParseSessionToken(token string) (domain.Claims, error)
	IsExpired(token string) bool
}

// PasswordHasher hashes and checks secrets.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches hash. A mismatch is (false, nil);
	// an error means the hash itself could not be evaluated.
	Verify(password, hash string) (bool, error)
}
