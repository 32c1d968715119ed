package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/apperr"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const defaultTTL = 24 * time.Hour

// Authority issues, resolves and revokes bearer tokens. Resolve always goes
// back to the account directory, so a suspension or a collaborator being
// restricted takes effect on the very next request.
type Authority struct {
	accounts repository.AccountRepository
	revoked  RevocationSet
	secret   string
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Authority)

// WithTTL sets the lifetime used when Issue is called with ttl <= 0.
func WithTTL(ttl time.Duration) Option {
	return func(a *Authority) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAuthority(accounts repository.AccountRepository, revoked RevocationSet, secret string, logger *zap.Logger, opts ...Option) *Authority {
	a := &Authority{
		accounts: accounts,
		revoked:  revoked,
		secret:   secret,
		ttl:      defaultTTL,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Issue signs a credential for id. ttl <= 0 uses the configured default.
func (a *Authority) Issue(id *models.Identity, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = a.ttl
	}
	token, _, err := GenerateToken(id, a.secret, ttl, a.now())
	return token, err
}

// Resolve turns a raw credential into a live identity. Every way a token can
// be unusable (bad signature, expired, revoked, account or collaborator gone
// or no longer active) returns the same authentication error. Directory or
// revocation-store outages are dependency failures.
func (a *Authority) Resolve(ctx context.Context, raw string) (*models.Identity, error) {
	claims, err := ParseToken(raw, a.secret, a.now())
	if err != nil {
		return nil, a.reject("decode", err)
	}

	revoked, err := a.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperr.Dependency("revocation store unavailable", err)
	}
	if revoked {
		return nil, a.reject("revoked", nil)
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, a.reject("subject", err)
	}
	account, err := a.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, apperr.Dependency("account directory unavailable", err)
	}
	if account == nil || account.Status != models.AccountActive {
		return nil, a.reject("account inactive", nil)
	}

	id := identityFor(account)
	id.TokenID = claims.ID
	if claims.Collaborator != nil {
		c := account.Collaborator(claims.Collaborator.Email)
		if c == nil || c.Status != models.CollaboratorActive {
			return nil, a.reject("collaborator inactive", nil)
		}
		id.Collaborator = publicCollaborator(c)
	}
	return id, nil
}

// Revoke adds the token's id to the revocation set until the token's own
// expiry. Revoking twice, or revoking an already expired token, is a no-op.
func (a *Authority) Revoke(ctx context.Context, raw string) error {
	claims, err := ParseToken(raw, a.secret, a.now())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil
		}
		return a.reject("decode", err)
	}
	ttl := claims.ExpiresAt.Time.Sub(a.now())
	if err := a.revoked.Revoke(ctx, claims.ID, ttl); err != nil {
		return apperr.Dependency("revocation store unavailable", err)
	}
	return nil
}

// Login checks a primary account password first, then a collaborator
// credential, and issues a token for whichever matches.
func (a *Authority) Login(ctx context.Context, email, password string) (string, *models.Identity, error) {
	account, err := a.accounts.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, apperr.Dependency("account directory unavailable", err)
	}
	if account != nil && account.PasswordHash != "" &&
		bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) == nil {
		if account.Status != models.AccountActive {
			return "", nil, a.reject("account inactive", nil)
		}
		id := identityFor(account)
		token, err := a.Issue(id, 0)
		if err != nil {
			return "", nil, fmt.Errorf("issue token: %w", err)
		}
		return token, id, nil
	}

	parent, err := a.accounts.FindByCollaboratorEmail(ctx, email)
	if err != nil {
		return "", nil, apperr.Dependency("account directory unavailable", err)
	}
	if parent == nil {
		return "", nil, a.reject("unknown login", nil)
	}
	c := parent.Collaborator(email)
	if c == nil || c.CredentialHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(c.CredentialHash), []byte(password)) != nil {
		return "", nil, a.reject("bad collaborator credential", nil)
	}
	if parent.Status != models.AccountActive || c.Status != models.CollaboratorActive {
		return "", nil, a.reject("collaborator inactive", nil)
	}

	id := identityFor(parent)
	id.Collaborator = publicCollaborator(c)
	token, err := a.Issue(id, 0)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, id, nil
}

// HashSecret bcrypt-hashes a password or collaborator credential.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

func (a *Authority) reject(reason string, cause error) error {
	a.logger.Debug("credential rejected", zap.String("reason", reason), zap.Error(cause))
	return apperr.Authentication(nil)
}

func identityFor(account *models.Account) *models.Identity {
	return &models.Identity{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		Premium:   account.Premium,
		Status:    account.Status,
	}
}

func publicCollaborator(c *models.Collaborator) *models.Collaborator {
	return &models.Collaborator{
		Email:  c.Email,
		Name:   c.Name,
		Role:   c.Role,
		Status: c.Status,
	}
}
