// Package auth provides the webdoc credential surface: JWT issue/verify,
// argon2id password hashing, the user store, and the login/register REST
// endpoints. The chat gateway consumes only the verification side, through
// chat.TokenVerifier.
package auth

import (
	"errors"
	"time"

	"webdoc/internal/chat"

	"github.com/golang-jwt/jwt/v5"
)

const minSecretLen = 32

// ErrInvalidToken covers every verification failure: bad signature, expired,
// malformed, or wrong signing method.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the payload carried by webdoc access tokens.
type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 access tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager constructs a TokenManager. The secret must be at least 32
// bytes; the ttl defaults to 24h when non-positive.
func NewTokenManager(secret []byte, ttl time.Duration) (*TokenManager, error) {
	if len(secret) < minSecretLen {
		return nil, errors.New("auth: secret too short (min 32 bytes)")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: append([]byte(nil), secret...), ttl: ttl}, nil
}

// Issue signs a token for the given identity.
func (m *TokenManager) Issue(id chat.Identity, now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	claims := Claims{
		ID:       id.ID,
		Username: id.Username,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "webdoc",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify validates the token's signature and expiry and decodes the identity.
// It implements chat.TokenVerifier.
func (m *TokenManager) Verify(token string) (chat.Identity, error) {
	if token == "" {
		return chat.Identity{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return chat.Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ID == "" || claims.Username == "" {
		return chat.Identity{}, ErrInvalidToken
	}

	return chat.Identity{ID: claims.ID, Username: claims.Username, Role: claims.Role}, nil
}
