package actionhub

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/apperr"
	"github.com/lalith-99/disruptionhub/internal/audit"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/policy"
	"github.com/lalith-99/disruptionhub/internal/realtime"
	"github.com/lalith-99/disruptionhub/internal/repository"
	"go.uber.org/zap"
)

// Engagement is an alert's derived follow and flag state.
type Engagement struct {
	FollowCount int         `json:"number_of_follows"`
	FlagCount   int         `json:"number_of_flags"`
	FollowedBy  []uuid.UUID `json:"followed_by"`
	FlaggedBy   []uuid.UUID `json:"flagged_by"`
}

func engagementFromAlert(a *models.Alert) *Engagement {
	return &Engagement{
		FollowCount: a.NumberOfFollows,
		FlagCount:   len(a.FlaggedBy),
		FollowedBy:  slices.Clone(a.FollowedBy),
		FlaggedBy:   slices.Clone(a.FlaggedBy),
	}
}

// ToggleResult is what a flag or follow toggle leaves behind. Item is nil
// when the toggle deleted it.
type ToggleResult struct {
	Item       *models.ActionItem
	Deleted    bool
	Engagement *Engagement
}

// ToggleFlag flips the caller's flag on alertID, creating the item on first
// flag. Unflagging never deletes the item.
func (s *Service) ToggleFlag(ctx context.Context, id *models.Identity, alertID uuid.UUID) (*ToggleResult, error) {
	if err := policy.Authorize(id, policy.OpFlag); err != nil {
		return nil, err
	}
	if _, err := s.requireAlert(ctx, alertID); err != nil {
		return nil, err
	}

	var created bool
	item, err := s.items.Upsert(ctx, id.AccountID, alertID, func(it *models.ActionItem, exists bool) (repository.UpsertOutcome, error) {
		now := s.now()
		if !exists {
			created = true
			it.CreatedAt = now
			it.UpdatedAt = now
			it.Flagged = true
		} else {
			it.Flagged = !it.Flagged
		}
		detail := "Unflagged alert"
		if it.Flagged {
			detail = "Flagged alert"
		}
		it.AppendLog(id.AccountID, id.ActorEmail(), models.ActionFlag, detail, now)
		return repository.UpsertKeep, nil
	})
	if err != nil {
		return nil, fmt.Errorf("toggle flag: %w", err)
	}

	s.metrics.Toggle("flag", item.Flagged)
	s.recordToggle(ctx, id, item)
	if created {
		s.publish(realtime.EventItemCreated, item.UserID, item.ID, alertID)
	} else {
		s.publish(realtime.EventItemUpdated, item.UserID, item.ID, alertID)
	}

	eng, err := s.recount(ctx, alertID)
	if err != nil {
		return nil, err
	}
	s.publish(realtime.EventEngagement, id.AccountID, uuid.Nil, alertID)
	return &ToggleResult{Item: item, Engagement: eng}, nil
}

// ToggleFollow flips the caller's follow on alertID. Unfollowing an
// unflagged item deletes it in the same locked step; unfollowing a flagged
// one keeps it with isFollowing=false.
func (s *Service) ToggleFollow(ctx context.Context, id *models.Identity, alertID uuid.UUID) (*ToggleResult, error) {
	if err := policy.Authorize(id, policy.OpFollow); err != nil {
		return nil, err
	}
	if _, err := s.requireAlert(ctx, alertID); err != nil {
		return nil, err
	}

	var (
		created   bool
		deleted   bool
		following bool
		deletedID uuid.UUID
	)
	item, err := s.items.Upsert(ctx, id.AccountID, alertID, func(it *models.ActionItem, exists bool) (repository.UpsertOutcome, error) {
		now := s.now()
		if !exists {
			created = true
			it.CreatedAt = now
			it.UpdatedAt = now
			it.IsFollowing = true
		} else {
			it.IsFollowing = !it.IsFollowing
		}
		following = it.IsFollowing

		if !it.IsFollowing && !it.Flagged {
			deleted = true
			deletedID = it.ID
			return repository.UpsertDelete, nil
		}
		detail := "Unfollowed alert"
		if it.IsFollowing {
			detail = "Followed alert"
		}
		it.AppendLog(id.AccountID, id.ActorEmail(), models.ActionFollow, detail, now)
		return repository.UpsertKeep, nil
	})
	if err != nil {
		return nil, fmt.Errorf("toggle follow: %w", err)
	}

	s.metrics.Toggle("follow", following)
	switch {
	case deleted:
		s.audit.Record(ctx, audit.Entry{
			Actor:      id.AccountID,
			ActorEmail: id.ActorEmail(),
			Action:     string(models.ActionFollow),
			Target:     deletedID,
			Detail:     "Unfollowed alert; item removed",
			At:         s.now(),
		})
		s.publish(realtime.EventItemDeleted, id.AccountID, deletedID, alertID)
	case created:
		s.recordToggle(ctx, id, item)
		s.publish(realtime.EventItemCreated, item.UserID, item.ID, alertID)
	default:
		s.recordToggle(ctx, id, item)
		s.publish(realtime.EventItemUpdated, item.UserID, item.ID, alertID)
	}

	eng, err := s.recount(ctx, alertID)
	if err != nil {
		return nil, err
	}
	s.publish(realtime.EventEngagement, id.AccountID, uuid.Nil, alertID)

	// The item row is authoritative. A failed mirror is logged, never returned.
	if err := s.mirrorFollow(ctx, id.AccountID, alertID, following); err != nil {
		s.logger.Error("failed to mirror followed alert",
			zap.Stringer("account_id", id.AccountID),
			zap.Stringer("alert_id", alertID),
			zap.Bool("following", following),
			zap.Error(err),
		)
	}
	return &ToggleResult{Item: item, Deleted: deleted, Engagement: eng}, nil
}

// AlertState is the caller's standing on one alert. Item is nil when the
// caller has neither flagged nor followed it.
type AlertState struct {
	Item       *models.ActionItem
	Engagement *Engagement
}

// AlertState reports the caller's item for alertID, if any, together with
// the alert's current counts.
func (s *Service) AlertState(ctx context.Context, id *models.Identity, alertID uuid.UUID) (*AlertState, error) {
	if err := policy.Authorize(id, policy.OpViewActionHub); err != nil {
		return nil, err
	}
	alert, err := s.requireAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	item, err := s.items.GetByUserAlert(ctx, id.AccountID, alertID)
	if err != nil {
		return nil, fmt.Errorf("get action item by alert: %w", err)
	}
	if item != nil {
		item, err = s.escalate(ctx, item)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	return &AlertState{Item: item, Engagement: engagementFromAlert(alert)}, nil
}

// Engagements loads the current counts of every alert the items reference,
// one lookup per distinct alert. Alerts that no longer exist map to nil.
func (s *Service) Engagements(ctx context.Context, items []models.ActionItem) (map[uuid.UUID]*Engagement, error) {
	out := make(map[uuid.UUID]*Engagement)
	for i := range items {
		alertID := items[i].AlertID
		if _, seen := out[alertID]; seen {
			continue
		}
		alert, err := s.alerts.FindByID(ctx, alertID)
		if err != nil {
			return nil, apperr.Dependency("alert directory unavailable", err)
		}
		if alert == nil {
			out[alertID] = nil
			continue
		}
		out[alertID] = engagementFromAlert(alert)
	}
	return out, nil
}

func (s *Service) recordToggle(ctx context.Context, id *models.Identity, item *models.ActionItem) {
	last := item.ActionLogs[len(item.ActionLogs)-1]
	s.audit.Record(ctx, audit.Entry{
		Actor:      id.AccountID,
		ActorEmail: id.ActorEmail(),
		Action:     string(last.ActionType),
		Target:     item.ID,
		Detail:     last.Details,
		At:         last.Timestamp,
	})
}

// mirrorFollow keeps the follower's profile list in step with the toggle.
func (s *Service) mirrorFollow(ctx context.Context, accountID, alertID uuid.UUID, following bool) error {
	var err error
	if following {
		err = s.accounts.AddFollowedAlert(ctx, accountID, alertID)
	} else {
		err = s.accounts.RemoveFollowedAlert(ctx, accountID, alertID)
	}
	if err != nil {
		return apperr.Dependency("account directory unavailable", err)
	}
	return nil
}

// recount rebuilds the alert's follow and flag aggregates from the items
// that reference it. Counts are never incremented in place, so a lost
// update heals on the next toggle.
func (s *Service) recount(ctx context.Context, alertID uuid.UUID) (*Engagement, error) {
	followers, flaggers, err := s.items.EngagedUsers(ctx, alertID)
	if err != nil {
		return nil, apperr.Dependency("action item store unavailable", err)
	}
	agg := repository.AlertAggregates{
		NumberOfFollows: len(followers),
		FollowedBy:      followers,
		FlaggedBy:       flaggers,
	}
	if err := s.alerts.UpdateFollowFlagAggregates(ctx, alertID, agg); err != nil {
		s.logger.Error("failed to write alert aggregates",
			zap.Stringer("alert_id", alertID),
			zap.Error(err),
		)
		return nil, apperr.Dependency("alert directory unavailable", err)
	}

	return &Engagement{
		FollowCount: len(followers),
		FlagCount:   len(flaggers),
		FollowedBy:  followers,
		FlaggedBy:   flaggers,
	}, nil
}
