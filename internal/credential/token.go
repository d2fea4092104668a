// Package credential hashes passwords and issues and verifies signed
// bearer tokens.
package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeAPIKey Scope = "api_key"
)

// RoleAPIKey is the role claim carried by project key tokens.
const RoleAPIKey = "api_key"

// ProjectKeyTTL is the lifetime of tokens issued for a project API key.
const ProjectKeyTTL = 10 * 365 * 24 * time.Hour

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrEmptySecret    = errors.New("token secret is empty")
)

// Claims is the token payload. ProjectID is null for user tokens.
type Claims struct {
	Role      string  `json:"role"`
	ProjectID *string `json:"projectId"`
	Scope     Scope   `json:"scope"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 tokens with an explicit secret and ttl.
type Codec struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewCodec(secret string, ttl time.Duration, clk clock.Clock) *Codec {
	if clk == nil {
		clk = clock.Real()
	}
	return &Codec{secret: []byte(secret), ttl: ttl, clock: clk}
}

// Secret is the signing key, shared with the bearer middleware.
func (c *Codec) Secret() []byte { return c.secret }

// IssueUserToken issues a session token. Each token carries a random jti,
// so sessions issued within the same second stay distinct.
func (c *Codec) IssueUserToken(userID uuid.UUID, role string) (string, time.Time, error) {
	now := c.clock.Now()
	exp := now.Add(c.ttl)
	claims := Claims{
		Role:  role,
		Scope: ScopeUser,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := c.sign(claims)
	return token, exp, err
}

// IssueProjectKeyToken issues a long-lived token acting for projectID.
// The subject is random so two tokens for one project never collide.
func (c *Codec) IssueProjectKeyToken(projectID uuid.UUID) (string, time.Time, error) {
	now := c.clock.Now()
	exp := now.Add(ProjectKeyTTL)
	pid := projectID.String()
	claims := Claims{
		Role:      RoleAPIKey,
		ProjectID: &pid,
		Scope:     ScopeAPIKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := c.sign(claims)
	return token, exp, err
}

func (c *Codec) sign(claims Claims) (string, error) {
	if len(c.secret) == 0 {
		return "", ErrEmptySecret
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry. A token is rejected at and after exp.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	if len(c.secret) == 0 {
		return nil, ErrEmptySecret
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Scope != ScopeUser && claims.Scope != ScopeAPIKey {
		return nil, fmt.Errorf("%w: unknown scope %q", ErrMalformedToken, claims.Scope)
	}
	return claims, nil
}
