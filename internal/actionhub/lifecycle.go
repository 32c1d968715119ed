package actionhub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/apperr"
	"github.com/lalith-99/disruptionhub/internal/audit"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/policy"
	"github.com/lalith-99/disruptionhub/internal/realtime"
	"github.com/lalith-99/disruptionhub/internal/repository"
	"go.uber.org/zap"
)

// DefaultEscalationAge is how long an item may sit in "new" before a read
// moves it to in_progress.
const DefaultEscalationAge = 24 * time.Hour

// SystemActorEmail attributes log entries written by the engine itself.
const SystemActorEmail = "system"

const escalationDetail = "Automatically moved to in progress after 24 hours"

var statusLabels = map[models.ActionStatus]string{
	models.StatusNew:        "new",
	models.StatusInProgress: "in progress",
	models.StatusHandled:    "handled",
}

// SetStatus moves an item to any status. Moving to handled stamps the actor
// and time; other targets leave handledBy and handledAt as they were.
func (s *Service) SetStatus(ctx context.Context, id *models.Identity, itemID uuid.UUID, status models.ActionStatus) (*models.ActionItem, error) {
	if !status.Valid() {
		return nil, apperr.InvalidInput("invalid status %q", status)
	}
	if err := policy.Authorize(id, policy.OpUpdateStatus); err != nil {
		return nil, err
	}

	var previous models.ActionStatus
	item, err := s.Update(ctx, id, itemID, "set_status", func(it *models.ActionItem) (bool, error) {
		now := s.now()
		previous = it.Status
		it.Status = status

		kind := models.ActionEdit
		if status == models.StatusHandled {
			actor := id.AccountID
			it.HandledBy = &actor
			it.HandledAt = &now
			kind = models.ActionMarkHandled
		}
		it.AppendLog(id.AccountID, id.ActorEmail(), kind, statusDetail(status), now)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("action item status changed",
		zap.Stringer("item_id", item.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
	)
	return item, nil
}

func statusDetail(status models.ActionStatus) string {
	return fmt.Sprintf("Marked as %s", statusLabels[status])
}

// escalate applies the passive new -> in_progress transition on read. The
// condition is re-checked under the write lock so concurrent readers append
// a single log entry between them.
func (s *Service) escalate(ctx context.Context, item *models.ActionItem) (*models.ActionItem, error) {
	if !s.dueForEscalation(item) {
		return item, nil
	}

	escalated := false
	updated, err := s.items.Mutate(ctx, item.ID, func(it *models.ActionItem) (bool, error) {
		if !s.dueForEscalation(it) {
			return false, nil
		}
		it.Status = models.StatusInProgress
		it.AppendLog(uuid.Nil, SystemActorEmail, models.ActionEdit, escalationDetail, s.now())
		escalated = true
		return true, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("action item")
		}
		return nil, fmt.Errorf("escalate action item: %w", err)
	}
	if !escalated {
		return updated, nil
	}

	s.metrics.Escalation()
	s.audit.Record(ctx, audit.Entry{
		ActorEmail: SystemActorEmail,
		Action:     string(models.ActionEdit),
		Target:     updated.ID,
		Detail:     escalationDetail,
		At:         updated.UpdatedAt,
	})
	s.publish(realtime.EventItemUpdated, updated.UserID, updated.ID, updated.AlertID)
	return updated, nil
}

func (s *Service) dueForEscalation(item *models.ActionItem) bool {
	return item.Status == models.StatusNew && s.now().Sub(item.CreatedAt) >= s.escalateAfter
}
