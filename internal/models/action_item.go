package models

import (
	"time"

	"github.com/google/uuid"
)

type ActionStatus string

const (
	StatusNew        ActionStatus = "new"
	StatusInProgress ActionStatus = "in_progress"
	StatusHandled    ActionStatus = "handled"
)

func (s ActionStatus) Valid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusHandled:
		return true
	}
	return false
}

type ActiveTab string

const (
	TabNotifyGuests ActiveTab = "notify_guests"
	TabAddNotes     ActiveTab = "add_notes"
)

func (t ActiveTab) Valid() bool {
	return t == TabNotifyGuests || t == TabAddNotes
}

type ActionType string

const (
	ActionFlag         ActionType = "flag"
	ActionFollow       ActionType = "follow"
	ActionResolve      ActionType = "resolve"
	ActionNoteAdded    ActionType = "note_added"
	ActionNotifyGuests ActionType = "notify_guests"
	ActionNotifyTeam   ActionType = "notify_team"
	ActionEdit         ActionType = "edit"
	ActionMarkHandled  ActionType = "mark_handled"
)

// ActionItem is the per-(user, alert) collaboration record. Guests, notes
// and logs are owned by the item and only change under its write lock.
type ActionItem struct {
	ID               uuid.UUID    `json:"id"`
	UserID           uuid.UUID    `json:"user_id"`
	AlertID          uuid.UUID    `json:"alert_id"`
	Status           ActionStatus `json:"status"`
	IsFollowing      bool         `json:"is_following"`
	Flagged          bool         `json:"flagged"`
	CurrentActiveTab ActiveTab    `json:"current_active_tab"`
	Guests           []Guest      `json:"guests"`
	Notes            []Note       `json:"notes"`
	ActionLogs       []ActionLog  `json:"action_logs"`
	HandledBy        *uuid.UUID   `json:"handled_by,omitempty"`
	HandledAt        *time.Time   `json:"handled_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

type Guest struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	NotificationSent bool       `json:"notification_sent"`
	SentTimestamp    *time.Time `json:"sent_timestamp,omitempty"`
}

type Note struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	Author    uuid.UUID `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActionLog is one audit line on an item. UserEmail is set when the actor
// was a collaborator or the system.
type ActionLog struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	UserEmail  string     `json:"user_email,omitempty"`
	ActionType ActionType `json:"action_type"`
	Details    string     `json:"details"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewActionItem returns an empty item in its initial state.
func NewActionItem(userID, alertID uuid.UUID, now time.Time) *ActionItem {
	return &ActionItem{
		ID:               uuid.New(),
		UserID:           userID,
		AlertID:          alertID,
		Status:           StatusNew,
		CurrentActiveTab: TabNotifyGuests,
		Guests:           make([]Guest, 0),
		Notes:            make([]Note, 0),
		ActionLogs:       make([]ActionLog, 0),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// AppendLog adds one log entry and bumps UpdatedAt.
func (a *ActionItem) AppendLog(actor uuid.UUID, actorEmail string, kind ActionType, details string, at time.Time) {
	a.ActionLogs = append(a.ActionLogs, ActionLog{
		ID:         uuid.New(),
		UserID:     actor,
		UserEmail:  actorEmail,
		ActionType: kind,
		Details:    details,
		Timestamp:  at,
	})
	a.UpdatedAt = at
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (a *ActionItem) Clone() *ActionItem {
	if a == nil {
		return nil
	}
	c := *a
	c.Guests = append(make([]Guest, 0, len(a.Guests)), a.Guests...)
	c.Notes = append(make([]Note, 0, len(a.Notes)), a.Notes...)
	c.ActionLogs = append(make([]ActionLog, 0, len(a.ActionLogs)), a.ActionLogs...)
	if a.HandledBy != nil {
		v := *a.HandledBy
		c.HandledBy = &v
	}
	if a.HandledAt != nil {
		v := *a.HandledAt
		c.HandledAt = &v
	}
	return &c
}
