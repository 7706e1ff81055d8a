package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/srm-service/internal/infra/config"
)

var (
	// ErrTokenInvalid indicates the bearer token failed parsing or validation.
	ErrTokenInvalid = errors.New("jwt: invalid token")
	// ErrSecretMissing indicates no HMAC secret was configured.
	ErrSecretMissing = errors.New("jwt: secret not configured")
)

const defaultAccessTokenTTL = 15 * time.Minute

// AccessTokenClaims carries the authenticated user id. The "uid" claim wins over "sub".
type AccessTokenClaims struct {
	UserID string `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the user id asserted by the token.
func (c *AccessTokenClaims) Identity() string {
	if id := strings.TrimSpace(c.UserID); id != "" {
		return id
	}
	return strings.TrimSpace(c.Subject)
}

// TokenManager verifies HS256 access tokens issued by the identity provider.
type TokenManager struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewTokenManager constructs a TokenManager from JWT settings.
func NewTokenManager(cfg config.JWTSettings) (*TokenManager, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, ErrSecretMissing
	}
	return &TokenManager{
		secret:   []byte(cfg.Secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		leeway:   cfg.Leeway,
		now:      time.Now,
	}, nil
}

// Verify parses the raw token and returns the authenticated user id.
func (m *TokenManager) Verify(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	userID := claims.Identity()
	if userID == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return userID, nil
}

// Issue signs a token for userID. Used by local tooling and tests; production tokens come from the identity provider.
func (m *TokenManager) Issue(userID string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("jwt: user id is required")
	}
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}

	now := m.now().UTC()
	claims := &AccessTokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}
