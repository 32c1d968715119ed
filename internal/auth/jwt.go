package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/oklog/ulid/v2"
)

const issuer = "disruptionhub"

// CollaboratorClaim marks a token issued to a collaborator login. Only the
// email is trusted on resolve; the role is re-read from the account.
type CollaboratorClaim struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

// Claims is the payload inside every bearer token. Subject is the primary
// account id and ID (jti) is the revocation handle.
type Claims struct {
	Collaborator *CollaboratorClaim `json:"collab,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for the identity. It has no side effects
// beyond generation.
func GenerateToken(id *models.Identity, secret string, ttl time.Duration, now time.Time) (string, *Claims, error) {
	if id == nil {
		return "", nil, errors.New("identity is required")
	}
	jti, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", nil, fmt.Errorf("generate token id: %w", err)
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.AccountID.String(),
			ID:        jti.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if id.Collaborator != nil {
		claims.Collaborator = &CollaboratorClaim{
			Email: id.Collaborator.Email,
			Role:  id.Collaborator.Role,
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// ParseToken verifies signature, signing method, issuer and expiry against
// the supplied clock.
func ParseToken(tokenString, secret string, now time.Time) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			// Reject "none" and asymmetric algorithms before verifying.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("token missing subject or id")
	}
	return claims, nil
}
