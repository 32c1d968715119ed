package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/models"
)

// Lookups return nil, nil when a row is absent. Mutations that need an
// existing row return ErrNotFound instead.
var ErrNotFound = errors.New("record not found")

// AccountRepository is the authoritative directory for accounts and their
// embedded collaborators.
type AccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)

	// FindByEmail matches the primary login email only.
	FindByEmail(ctx context.Context, email string) (*models.Account, error)

	// FindByCollaboratorEmail returns the parent account that embeds a
	// collaborator with this email.
	FindByCollaboratorEmail(ctx context.Context, email string) (*models.Account, error)

	// Save inserts or replaces the account including its collaborators.
	Save(ctx context.Context, account *models.Account) error

	// AddFollowedAlert and RemoveFollowedAlert are idempotent.
	AddFollowedAlert(ctx context.Context, accountID, alertID uuid.UUID) error
	RemoveFollowedAlert(ctx context.Context, accountID, alertID uuid.UUID) error
}

// AlertAggregates are the engagement fields derived from Action Items.
type AlertAggregates struct {
	NumberOfFollows int
	FollowedBy      []uuid.UUID
	FlaggedBy       []uuid.UUID
}

// AlertRepository owns alert records. Only the derived engagement fields are
// written from here.
type AlertRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	UpdateFollowFlagAggregates(ctx context.Context, alertID uuid.UUID, agg AlertAggregates) error
}

// MutateFunc edits an item in place under its write lock. Returning false
// means nothing changed and nothing is written.
type MutateFunc func(item *models.ActionItem) (changed bool, err error)

type UpsertOutcome int

const (
	UpsertNone UpsertOutcome = iota
	UpsertKeep
	UpsertDelete
)

// UpsertFunc decides the fate of the (user, alert) item. exists is false when
// item is a fresh, not yet persisted record.
type UpsertFunc func(item *models.ActionItem, exists bool) (UpsertOutcome, error)

// ActionItemRepository stores Action Items. Writes to one item are
// serialized; the callback sees the latest committed state and its changes
// (fields, lists and log entry) are persisted atomically or not at all.
type ActionItemRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ActionItem, error)
	GetByUserAlert(ctx context.Context, userID, alertID uuid.UUID) (*models.ActionItem, error)

	// ListByUser returns the user's items, newest first. A nil status lists all.
	ListByUser(ctx context.Context, userID uuid.UUID, status *models.ActionStatus) ([]models.ActionItem, error)

	// Mutate returns ErrNotFound when the item does not exist.
	Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.ActionItem, error)

	// Upsert serializes on the (user, alert) pair so find-or-create and the
	// conditional delete happen in one step. Returns nil when the item was
	// deleted or never created.
	Upsert(ctx context.Context, userID, alertID uuid.UUID, fn UpsertFunc) (*models.ActionItem, error)

	// EngagedUsers recounts the distinct owners following and flagging alertID.
	EngagedUsers(ctx context.Context, alertID uuid.UUID) (followers, flaggers []uuid.UUID, err error)
}

// NotificationRepository persists in-app inbox records.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Notification, error)
}
