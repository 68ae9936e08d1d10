package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// clockLeeway absorbs small clock drift between the dashboard issuer
// and this service when checking exp/nbf.
const clockLeeway = 30 * time.Second

var (
	// ErrInvalidToken covers malformed, unsigned or expired tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrInvalidClaims covers structurally valid tokens whose claims do
	// not identify a tenant and facility role.
	ErrInvalidClaims = errors.New("auth: invalid claims")
)

// Claims is the token payload issued to dashboard users: the tenant
// (facility) the user belongs to and their role on the ladder.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// ParseJWT verifies an HS256 token against secret and returns its
// claims. Tokens without a tenant or with an unknown role are rejected
// even when the signature checks out.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockLeeway),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant_id", ErrInvalidClaims)
	}
	if _, ok := NormalizeRole(claims.Role); !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidClaims, claims.Role)
	}
	return claims, nil
}

// SignJWT issues an HS256 token for a dashboard user. Used by the
// token-issuing tooling and by tests that exercise the middleware.
func SignJWT(secret []byte, tenantID string, role Role, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("auth: empty secret")
	}
	if tenantID == "" {
		return "", fmt.Errorf("%w: missing tenant_id", ErrInvalidClaims)
	}
	if _, ok := NormalizeRole(string(role)); !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidClaims, role)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := Claims{
		TenantID: tenantID,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
