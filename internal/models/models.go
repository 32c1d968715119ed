package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of roles an account or collaborator can hold.
// Adding a role means adding a constant here and an entry in the policy table.
type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleViewer  Role = "viewer"
	RoleEditor  Role = "editor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleManager, RoleViewer, RoleEditor:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountActive     AccountStatus = "active"
	AccountRestricted AccountStatus = "restricted"
	AccountPending    AccountStatus = "pending"
	AccountDeleted    AccountStatus = "deleted"
)

type CollaboratorStatus string

const (
	CollaboratorInvited    CollaboratorStatus = "invited"
	CollaboratorActive     CollaboratorStatus = "active"
	CollaboratorRestricted CollaboratorStatus = "restricted"
	CollaboratorDeleted    CollaboratorStatus = "deleted"
)

// Account is a primary login. Collaborators live inside it and have no row
// of their own.
type Account struct {
	ID             uuid.UUID      `json:"id"`
	Email          string         `json:"email"`
	DisplayName    string         `json:"display_name"`
	Role           Role           `json:"role"`
	Premium        bool           `json:"premium"`
	Status         AccountStatus  `json:"status"`
	PasswordHash   string         `json:"-"`
	FollowedAlerts []uuid.UUID    `json:"followed_alerts"`
	Collaborators  []Collaborator `json:"collaborators"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Collaborator finds an embedded collaborator by email. Returns nil when absent.
func (a *Account) Collaborator(email string) *Collaborator {
	for i := range a.Collaborators {
		if strings.EqualFold(a.Collaborators[i].Email, email) {
			return &a.Collaborators[i]
		}
	}
	return nil
}

// Collaborator is a secondary login under a primary account. Its own role is
// used for authorization; premium is inherited from the parent.
type Collaborator struct {
	Email          string             `json:"email"`
	Name           string             `json:"name"`
	Role           Role               `json:"role"`
	Status         CollaboratorStatus `json:"status"`
	CredentialHash string             `json:"-"`
}

// Identity is what a credential resolves to after the live lookup.
type Identity struct {
	AccountID    uuid.UUID     `json:"account_id"`
	Email        string        `json:"email"`
	Role         Role          `json:"role"`
	Premium      bool          `json:"premium"`
	Status       AccountStatus `json:"status"`
	Collaborator *Collaborator `json:"collaborator,omitempty"`
	TokenID      string        `json:"-"`
}

// EffectiveRole is the collaborator's role when acting as one, else the
// primary account role.
func (i *Identity) EffectiveRole() Role {
	if i.Collaborator != nil {
		return i.Collaborator.Role
	}
	return i.Role
}

// ActorEmail is the email recorded on log entries for attribution.
func (i *Identity) ActorEmail() string {
	if i.Collaborator != nil {
		return i.Collaborator.Email
	}
	return i.Email
}

// Alert is owned by the alert directory. The engagement fields are derived
// from Action Items and never authoritative on their own.
type Alert struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	City            string      `json:"city"`
	Country         string      `json:"country"`
	NumberOfFollows int         `json:"number_of_follows"`
	FollowedBy      []uuid.UUID `json:"followed_by"`
	FlaggedBy       []uuid.UUID `json:"flagged_by"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Notification is an in-app inbox record.
type Notification struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	Recipients   []string  `json:"recipients"`
	AlertID      uuid.UUID `json:"alert_id"`
	ActionItemID uuid.UUID `json:"action_item_id"`
	CreatedAt    time.Time `json:"created_at"`
}
