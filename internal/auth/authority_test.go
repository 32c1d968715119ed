package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/apperr"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/repository/memory"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

type fixture struct {
	accounts *memory.AccountStore
	revoked  *MemoryRevocationSet
	authz    *Authority
	clock    *time.Time
	owner    *models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	nowFn := func() time.Time { return *clock }

	hash := func(s string) string {
		h, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		return string(h)
	}

	accounts := memory.NewAccountStore()
	owner := &models.Account{
		ID:           uuid.New(),
		Email:        "owner@hotel.test",
		Role:         models.RoleUser,
		Premium:      true,
		Status:       models.AccountActive,
		PasswordHash: hash("owner-pass"),
		Collaborators: []models.Collaborator{
			{Email: "frontdesk@hotel.test", Name: "Front Desk", Role: models.RoleManager, Status: models.CollaboratorActive, CredentialHash: hash("desk-pass")},
			{Email: "invited@hotel.test", Role: models.RoleViewer, Status: models.CollaboratorInvited, CredentialHash: hash("invite-pass")},
		},
	}
	if err := accounts.Save(context.Background(), owner); err != nil {
		t.Fatalf("save: %v", err)
	}

	revoked := NewMemoryRevocationSet(nowFn)
	return &fixture{
		accounts: accounts,
		revoked:  revoked,
		authz:    NewAuthority(accounts, revoked, testSecret, zap.NewNop(), WithClock(nowFn), WithTTL(time.Hour)),
		clock:    clock,
		owner:    owner,
	}
}

func (f *fixture) update(t *testing.T, fn func(a *models.Account)) {
	t.Helper()
	a, _ := f.accounts.FindByID(context.Background(), f.owner.ID)
	fn(a)
	if err := f.accounts.Save(context.Background(), a); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func assertAuthFailure(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, apperr.ErrAuthentication) {
		t.Fatalf("expected authentication failure, got %v", err)
	}
	// Every rejection looks the same to the caller.
	if err.Error() != apperr.Authentication(nil).Error() {
		t.Errorf("expected uniform message, got %q", err.Error())
	}
}

func TestResolve_ReturnsLiveAccountState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.authz.Issue(&models.Identity{AccountID: f.owner.ID, Role: models.RoleUser}, 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Promote after issuance; resolve must see the new role and premium flag.
	f.update(t, func(a *models.Account) {
		a.Role = models.RoleAdmin
		a.Premium = false
	})

	id, err := f.authz.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.Role != models.RoleAdmin || id.Premium {
		t.Errorf("expected fresh role/premium, got %s/%v", id.Role, id.Premium)
	}
	if id.Collaborator != nil {
		t.Error("expected no collaborator on a primary token")
	}
	if id.TokenID == "" {
		t.Error("expected token id to be populated")
	}
}

func TestResolve_Expired(t *testing.T) {
	f := newFixture(t)
	token, _ := f.authz.Issue(&models.Identity{AccountID: f.owner.ID}, time.Minute)

	*f.clock = f.clock.Add(2 * time.Minute)
	_, err := f.authz.Resolve(context.Background(), token)
	assertAuthFailure(t, err)
}

func TestResolve_TamperedAndWrongSecret(t *testing.T) {
	f := newFixture(t)
	token, _ := f.authz.Issue(&models.Identity{AccountID: f.owner.ID}, 0)

	_, err := f.authz.Resolve(context.Background(), token[:len(token)-2]+"xx")
	assertAuthFailure(t, err)

	other := NewAuthority(f.accounts, f.revoked, "other-secret", zap.NewNop())
	_, err = other.Resolve(context.Background(), token)
	assertAuthFailure(t, err)

	_, err = f.authz.Resolve(context.Background(), "not-a-jwt")
	assertAuthFailure(t, err)
}

func TestResolve_AccountNoLongerActive(t *testing.T) {
	for _, status := range []models.AccountStatus{models.AccountRestricted, models.AccountPending, models.AccountDeleted} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			token, _ := f.authz.Issue(&models.Identity{AccountID: f.owner.ID}, 0)

			f.update(t, func(a *models.Account) { a.Status = status })
			_, err := f.authz.Resolve(context.Background(), token)
			assertAuthFailure(t, err)
		})
	}
}

func TestResolve_CollaboratorRestrictedAfterIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, id, err := f.authz.Login(ctx, "frontdesk@hotel.test", "desk-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.Collaborator == nil || id.EffectiveRole() != models.RoleManager {
		t.Fatalf("expected manager collaborator identity, got %+v", id)
	}
	if _, err := f.authz.Resolve(ctx, token); err != nil {
		t.Fatalf("first resolve should pass: %v", err)
	}

	f.update(t, func(a *models.Account) {
		a.Collaborator("frontdesk@hotel.test").Status = models.CollaboratorRestricted
	})
	_, err = f.authz.Resolve(ctx, token)
	assertAuthFailure(t, err)
}

func TestResolve_CollaboratorRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, _, err := f.authz.Login(ctx, "frontdesk@hotel.test", "desk-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.update(t, func(a *models.Account) { a.Collaborators = a.Collaborators[1:] })
	_, err = f.authz.Resolve(ctx, token)
	assertAuthFailure(t, err)
}

func TestResolve_CollaboratorRoleIsRereadLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, _, _ := f.authz.Login(ctx, "frontdesk@hotel.test", "desk-pass")

	f.update(t, func(a *models.Account) {
		a.Collaborator("frontdesk@hotel.test").Role = models.RoleViewer
	})
	id, err := f.authz.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.EffectiveRole() != models.RoleViewer {
		t.Errorf("expected live viewer role, got %s", id.EffectiveRole())
	}
	if !id.Premium {
		t.Error("collaborator should inherit parent premium")
	}
	if id.Collaborator.CredentialHash != "" {
		t.Error("credential hash must not leak into the identity")
	}
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, _ := f.authz.Issue(&models.Identity{AccountID: f.owner.ID}, 30*time.Minute)

	if err := f.authz.Revoke(ctx, token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := f.authz.Revoke(ctx, token); err != nil {
		t.Fatalf("second revoke should be a no-op: %v", err)
	}
	_, err := f.authz.Resolve(ctx, token)
	assertAuthFailure(t, err)

	if f.revoked.Len() != 1 {
		t.Errorf("expected one revocation entry, got %d", f.revoked.Len())
	}
	// The entry lives exactly as long as the token would have.
	*f.clock = f.clock.Add(31 * time.Minute)
	if f.revoked.Len() != 0 {
		t.Errorf("expected revocation entry to expire with the token, got %d", f.revoked.Len())
	}
}

func TestRevoke_ExpiredTokenIsNoop(t *testing.T) {
	f := newFixture(t)
	token, _ := f.authz.Issue(&models.Identity{AccountID: f.owner.ID}, time.Minute)
	*f.clock = f.clock.Add(time.Hour)

	if err := f.authz.Revoke(context.Background(), token); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.revoked.Len() != 0 {
		t.Error("expected nothing stored for an expired token")
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		ok       bool
	}{
		{"primary", "owner@hotel.test", "owner-pass", true},
		{"primary case-insensitive", "Owner@Hotel.test", "owner-pass", true},
		{"primary wrong password", "owner@hotel.test", "nope", false},
		{"collaborator", "frontdesk@hotel.test", "desk-pass", true},
		{"collaborator wrong password", "frontdesk@hotel.test", "nope", false},
		{"invited collaborator", "invited@hotel.test", "invite-pass", false},
		{"unknown", "ghost@hotel.test", "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := f.authz.Login(ctx, tt.email, tt.password)
			if !tt.ok {
				assertAuthFailure(t, err)
				return
			}
			if err != nil {
				t.Fatalf("login: %v", err)
			}
			if strings.Count(token, ".") != 2 {
				t.Errorf("expected a JWT, got %q", token)
			}
		})
	}
}
