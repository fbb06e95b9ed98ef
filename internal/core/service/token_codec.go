package service

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yarago/auth-service/internal/core/domain"
)

// MinSecretLength is the shortest HMAC key accepted for HS512 signing.
const MinSecretLength = 32

// init sets the process-wide jwt.TimePrecision so expiry instants keep
// millisecond precision on the wire. Any other jwt/v5 user in the same binary
// sees the same setting.
func init() {
	jwt.TimePrecision = time.Millisecond
}

var signingMethod = jwt.SigningMethodHS512

type tokenClaims struct {
	UserID   string   `json:"userId,omitempty"`
	BranchID string   `json:"branchId,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Type     string   `json:"type"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS512 JWTs. It is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// CodecOption customises a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock replaces the wall clock used for issuing and validating tokens.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec returns a codec signing with secret. An empty issuer disables
// the issuer check.
func NewTokenCodec(secret, issuer string, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token codec: secret must be at least %d bytes", MinSecretLength)
	}
	c := &TokenCodec{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IssueAccessToken mints a short-lived token carrying identity and roles.
func (c *TokenCodec) IssueAccessToken(subject, userID, branchID string, roles []string, ttl time.Duration) (string, error) {
	return c.sign(tokenClaims{
		UserID:   userID,
		BranchID: branchID,
		Roles:    slices.Clone(roles),
		Type:     domain.TokenTypeAccess,
	}, subject, ttl)
}

// IssueSessionToken mints the opaque-to-clients refresh token.
func (c *TokenCodec) IssueSessionToken(subject string, ttl time.Duration) (string, error) {
	return c.sign(tokenClaims{Type: domain.TokenTypeRefresh}, subject, ttl)
}

func (c *TokenCodec) sign(claims tokenClaims, subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token codec: empty subject")
	}
	if ttl <= 0 {
		return "", errors.New("token codec: ttl must be positive")
	}

	now := c.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    c.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndVerify checks signature, algorithm, issuer and expiry.
func (c *TokenCodec) ParseAndVerify(token string) (domain.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var tc tokenClaims
	if _, err := jwt.ParseWithClaims(token, &tc, c.keyFunc, opts...); err != nil {
		return domain.Claims{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if tc.Subject == "" {
		return domain.Claims{}, fmt.Errorf("%w: missing subject", domain.ErrInvalidToken)
	}
	return toClaims(tc), nil
}

// VerifyFor is ParseAndVerify plus a subject match.
func (c *TokenCodec) VerifyFor(token, expectedSubject string) (domain.Claims, error) {
	claims, err := c.ParseAndVerify(token)
	if err != nil {
		return domain.Claims{}, err
	}
	if claims.Subject != expectedSubject {
		return domain.Claims{}, fmt.Errorf("%w: subject mismatch", domain.ErrInvalidToken)
	}
	return claims, nil
}

// ParseAccessToken accepts only access tokens.
func (c *TokenCodec) ParseAccessToken(token string) (domain.Claims, error) {
	return c.parseTyped(token, domain.TokenTypeAccess)
}

// ParseSessionToken accepts only refresh tokens.
func (c *TokenCodec) ParseSessionToken(token string) (domain.Claims, error) {
	return c.parseTyped(token, domain.TokenTypeRefresh)
}

func (c *TokenCodec) parseTyped(token, tokenType string) (domain.Claims, error) {
	claims, err := c.ParseAndVerify(token)
	if err != nil {
		return domain.Claims{}, err
	}
	if claims.TokenType != tokenType {
		return domain.Claims{}, fmt.Errorf("%w: expected %s token", domain.ErrInvalidToken, tokenType)
	}
	return claims, nil
}

// IsExpired reports whether the token's expiry has passed. The signature is
// still checked; tokens that cannot be read count as expired.
func (c *TokenCodec) IsExpired(token string) bool {
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, c.keyFunc,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || tc.ExpiresAt == nil {
		return true
	}
	return !c.now().Before(tc.ExpiresAt.Time)
}

func (c *TokenCodec) keyFunc(*jwt.Token) (any, error) {
	return c.secret, nil
}

func toClaims(tc tokenClaims) domain.Claims {
	var issuedAt, expiresAt time.Time
	if tc.IssuedAt != nil {
		issuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		expiresAt = tc.ExpiresAt.Time
	}
	claims := domain.NewClaims(tc.Subject, tc.UserID, tc.BranchID, tc.Type, tc.Roles, issuedAt, expiresAt)
	claims.TokenID = tc.ID
	return claims
}
