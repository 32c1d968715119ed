// Package actionhub implements the per-(user, alert) collaboration workflow:
// flag and follow toggles, status lifecycle, notes, guest lists and the
// action log. Authorization is checked here, on every call, against the
// identity the token authority resolved.
package actionhub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/apperr"
	"github.com/lalith-99/disruptionhub/internal/audit"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/observ"
	"github.com/lalith-99/disruptionhub/internal/policy"
	"github.com/lalith-99/disruptionhub/internal/realtime"
	"github.com/lalith-99/disruptionhub/internal/repository"
	"go.uber.org/zap"
)

type Service struct {
	items    repository.ActionItemRepository
	alerts   repository.AlertRepository
	accounts repository.AccountRepository
	audit    audit.Sink
	events   realtime.Publisher
	metrics  *observ.Metrics
	logger   *zap.Logger

	now           func() time.Time
	escalateAfter time.Duration
}

type Option func(*Service)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMetrics(m *observ.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEscalationAge changes how old a new item must be before a read moves
// it to in_progress.
func WithEscalationAge(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.escalateAfter = d
		}
	}
}

func NewService(
	items repository.ActionItemRepository,
	alerts repository.AlertRepository,
	accounts repository.AccountRepository,
	sink audit.Sink,
	events realtime.Publisher,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		items:         items,
		alerts:        alerts,
		accounts:      accounts,
		audit:         sink,
		events:        events,
		logger:        logger,
		now:           time.Now,
		escalateAfter: DefaultEscalationAge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now exposes the service clock so collaborators stamp times consistently.
func (s *Service) Now() time.Time {
	return s.now()
}

// GuestInput is one requested guest. Entries without an email are dropped.
type GuestInput struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Get loads one item the identity may see, applying passive escalation.
func (s *Service) Get(ctx context.Context, id *models.Identity, itemID uuid.UUID) (*models.ActionItem, error) {
	if err := policy.Authorize(id, policy.OpViewActionHub); err != nil {
		return nil, err
	}
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get action item: %w", err)
	}
	if item == nil {
		return nil, apperr.NotFound("action item")
	}
	if err := policy.RequireOwnership(id, item.UserID); err != nil {
		return nil, err
	}
	return s.escalate(ctx, item)
}

// GetWithAlert is Get plus the alert's current engagement counts.
func (s *Service) GetWithAlert(ctx context.Context, id *models.Identity, itemID uuid.UUID) (*models.ActionItem, *Engagement, error) {
	item, err := s.Get(ctx, id, itemID)
	if err != nil {
		return nil, nil, err
	}
	alert, err := s.alerts.FindByID(ctx, item.AlertID)
	if err != nil {
		return nil, nil, apperr.Dependency("alert directory unavailable", err)
	}
	eng := &Engagement{}
	if alert != nil {
		eng = engagementFromAlert(alert)
	}
	return item, eng, nil
}

// List returns the caller's items, newest first, optionally by status. The
// status filter is applied after escalation so a stale "new" item is
// reported under the state a reader would now see.
func (s *Service) List(ctx context.Context, id *models.Identity, status *models.ActionStatus) ([]models.ActionItem, error) {
	if err := policy.Authorize(id, policy.OpViewActionHub); err != nil {
		return nil, err
	}
	if status != nil && !status.Valid() {
		return nil, apperr.InvalidInput("invalid status %q", *status)
	}
	items, err := s.items.ListByUser(ctx, id.AccountID, nil)
	if err != nil {
		return nil, fmt.Errorf("list action items: %w", err)
	}

	out := make([]models.ActionItem, 0, len(items))
	for i := range items {
		item, err := s.escalate(ctx, &items[i])
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if status != nil && item.Status != *status {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

// Logs returns the item's action log, oldest first.
func (s *Service) Logs(ctx context.Context, id *models.Identity, itemID uuid.UUID) ([]models.ActionLog, error) {
	if err := policy.Authorize(id, policy.OpViewLogs); err != nil {
		return nil, err
	}
	item, err := s.Get(ctx, id, itemID)
	if err != nil {
		return nil, err
	}
	return item.ActionLogs, nil
}

// AddNote appends a note and a note_added entry.
func (s *Service) AddNote(ctx context.Context, id *models.Identity, itemID uuid.UUID, content string) (*models.ActionItem, error) {
	if err := policy.Authorize(id, policy.OpAddNote); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.InvalidInput("note content is required")
	}

	return s.Update(ctx, id, itemID, "note_added", func(it *models.ActionItem) (bool, error) {
		now := s.now()
		it.Notes = append(it.Notes, models.Note{
			ID:        uuid.New(),
			Content:   content,
			Author:    id.AccountID,
			CreatedAt: now,
			UpdatedAt: now,
		})
		it.AppendLog(id.AccountID, id.ActorEmail(), models.ActionNoteAdded, "Added a note", now)
		return true, nil
	})
}

// AddGuests accepts every entry that carries an email and drops the rest.
// Only an entirely unusable batch is rejected.
func (s *Service) AddGuests(ctx context.Context, id *models.Identity, itemID uuid.UUID, guests []GuestInput) (*models.ActionItem, int, error) {
	if err := policy.Authorize(id, policy.OpAddGuests); err != nil {
		return nil, 0, err
	}
	accepted := make([]GuestInput, 0, len(guests))
	for _, g := range guests {
		email := strings.TrimSpace(g.Email)
		if email == "" {
			continue
		}
		accepted = append(accepted, GuestInput{Email: email, Name: strings.TrimSpace(g.Name)})
	}
	if len(accepted) == 0 {
		return nil, 0, apperr.InvalidInput("no valid guests provided")
	}

	item, err := s.Update(ctx, id, itemID, "add_guests", func(it *models.ActionItem) (bool, error) {
		for _, g := range accepted {
			it.Guests = append(it.Guests, models.Guest{
				ID:    uuid.New(),
				Email: g.Email,
				Name:  g.Name,
			})
		}
		it.AppendLog(id.AccountID, id.ActorEmail(), models.ActionEdit,
			fmt.Sprintf("Added %d guests to the notification list", len(accepted)), s.now())
		return true, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return item, len(accepted), nil
}

// SetActiveTab records which panel the UI last showed. No log entry.
func (s *Service) SetActiveTab(ctx context.Context, id *models.Identity, itemID uuid.UUID, tab models.ActiveTab) (*models.ActionItem, error) {
	if err := policy.Authorize(id, policy.OpSetTab); err != nil {
		return nil, err
	}
	if !tab.Valid() {
		return nil, apperr.InvalidInput("invalid tab %q", tab)
	}
	return s.Update(ctx, id, itemID, "set_tab", func(it *models.ActionItem) (bool, error) {
		if it.CurrentActiveTab == tab {
			return false, nil
		}
		it.CurrentActiveTab = tab
		it.UpdatedAt = s.now()
		return true, nil
	})
}

// Update runs fn under the item's write lock after the ownership check, then
// writes one audit entry and publishes a change event. The audit entry
// mirrors the log line fn appended; fallbackAction names it when fn appends
// none. Exposed for the notification dispatcher.
func (s *Service) Update(ctx context.Context, id *models.Identity, itemID uuid.UUID, fallbackAction string, fn repository.MutateFunc) (*models.ActionItem, error) {
	var (
		changed bool
		logsAt  int
	)
	item, err := s.items.Mutate(ctx, itemID, func(it *models.ActionItem) (bool, error) {
		if err := policy.RequireOwnership(id, it.UserID); err != nil {
			return false, err
		}
		logsAt = len(it.ActionLogs)
		c, err := fn(it)
		changed = c
		return c, err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("action item")
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("update action item: %w", err)
	}
	if !changed {
		return item, nil
	}

	entry := audit.Entry{
		Actor:      id.AccountID,
		ActorEmail: id.ActorEmail(),
		Action:     fallbackAction,
		Target:     item.ID,
		At:         item.UpdatedAt,
	}
	if len(item.ActionLogs) > logsAt {
		last := item.ActionLogs[len(item.ActionLogs)-1]
		entry.Action = string(last.ActionType)
		entry.Detail = last.Details
	}
	s.audit.Record(ctx, entry)
	s.publish(realtime.EventItemUpdated, item.UserID, item.ID, item.AlertID)
	return item, nil
}

func (s *Service) publish(t realtime.EventType, userID, itemID, alertID uuid.UUID) {
	if s.events == nil {
		return
	}
	s.events.Publish(realtime.Event{
		Type:         t,
		UserID:       userID,
		ActionItemID: itemID,
		AlertID:      alertID,
		At:           s.now(),
	})
}

// requireAlert resolves an alert that must exist before an item can be
// created for it.
func (s *Service) requireAlert(ctx context.Context, alertID uuid.UUID) (*models.Alert, error) {
	alert, err := s.alerts.FindByID(ctx, alertID)
	if err != nil {
		return nil, apperr.Dependency("alert directory unavailable", err)
	}
	if alert == nil {
		return nil, apperr.NotFound("alert")
	}
	return alert, nil
}
