// Package auth implements the thin bearer-token lifecycle spec §6 assumes
// as an external collaborator ("an opaque verify_access_token(token) →
// {sub,role,type} predicate is assumed"). Since nothing outside this module
// issues that token, pkg/auth is it: password hashing for the user table and
// HMAC-signed JWTs for access/refresh tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sentryhound/sentryhound/pkg/models"
)

// TokenType distinguishes an access token (short-lived, used on every
// request) from a refresh token (long-lived, used only against /auth/refresh).
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

var (
	// ErrInvalidToken covers malformed tokens, bad signatures, and anything
	// else jwt.ParseWithClaims rejects outright.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWrongTokenType is returned when a refresh token is presented where
	// an access token is required, or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims is the JWT payload. Role and Type ride alongside the registered
// subject/expiry claims so Verify can reconstruct a models.Principal without
// a database round trip.
type Claims struct {
	Role models.UserRole `json:"role"`
	Type TokenType       `json:"typ"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies the two token types, keyed on the process
// secret (spec §6: "process secret... also used for AEAD key material" —
// reused here rather than introducing a second secret to rotate).
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer constructs an Issuer. accessTTL/refreshTTL of zero fall back to
// the spec's defaults (15 minutes / 7 days).
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	if accessTTL == 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL == 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// IssueAccessToken mints a short-lived token authorizing userID as role.
func (i *Issuer) IssueAccessToken(userID string, role models.UserRole) (string, error) {
	return i.issue(userID, role, TokenAccess, i.accessTTL)
}

// IssueRefreshToken mints a long-lived token carrying no role, since a
// refresh exchange re-reads the user's current role from the database
// rather than trusting a stale claim.
func (i *Issuer) IssueRefreshToken(userID string) (string, error) {
	return i.issue(userID, "", TokenRefresh, i.refreshTTL)
}

func (i *Issuer) issue(userID string, role models.UserRole, typ TokenType, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates tokenString, requiring it to be of wantType.
// Expiry, signature, and type mismatches all collapse to ErrInvalidToken or
// ErrWrongTokenType — callers only need to distinguish those two for the
// 401 response spec §6 calls for.
func (i *Issuer) Verify(tokenString string, wantType TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != wantType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// PrincipalFromClaims builds the authenticated-caller context an access
// token's claims carry.
func PrincipalFromClaims(c *Claims) models.Principal {
	return models.Principal{Subject: c.Subject, Role: c.Role}
}
