// Package notify fans Action Hub notifications out to guests and to the
// owner's team. Individual delivery failures are reported, never raised.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/apperr"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/observ"
	"github.com/lalith-99/disruptionhub/internal/policy"
	"github.com/lalith-99/disruptionhub/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 8
	defaultMessage     = "There is an update on a disruption you are involved with."
)

// Items is the slice of the Action Hub service the dispatcher needs: an
// authorized read and a locked, audited write.
type Items interface {
	Get(ctx context.Context, id *models.Identity, itemID uuid.UUID) (*models.ActionItem, error)
	Update(ctx context.Context, id *models.Identity, itemID uuid.UUID, fallbackAction string, fn repository.MutateFunc) (*models.ActionItem, error)
	Now() time.Time
}

type Dispatcher struct {
	items         Items
	accounts      repository.AccountRepository
	alerts        repository.AlertRepository
	notifications repository.NotificationRepository
	mailer        Mailer
	metrics       *observ.Metrics
	logger        *zap.Logger

	baseURL     string
	concurrency int
}

type Option func(*Dispatcher)

// WithConcurrency bounds how many sends run at once.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

func WithMetrics(m *observ.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(
	items Items,
	accounts repository.AccountRepository,
	alerts repository.AlertRepository,
	notifications repository.NotificationRepository,
	mailer Mailer,
	baseURL string,
	logger *zap.Logger,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		items:         items,
		accounts:      accounts,
		alerts:        alerts,
		notifications: notifications,
		mailer:        mailer,
		logger:        logger,
		baseURL:       strings.TrimRight(baseURL, "/"),
		concurrency:   defaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Delivery is the outcome for one recipient.
type Delivery struct {
	GuestID uuid.UUID `json:"guest_id,omitempty"`
	Email   string    `json:"email"`
	Name    string    `json:"name,omitempty"`
	Sent    bool      `json:"sent"`
}

// Report summarises a batch. Sent of Total were delivered.
type Report struct {
	Total      int                `json:"total"`
	Sent       int                `json:"sent"`
	Failed     int                `json:"failed"`
	Deliveries []Delivery         `json:"deliveries"`
	Link       string             `json:"link,omitempty"`
	Item       *models.ActionItem `json:"-"`
}

// NotifyGuests mails the selected guests, or every guest not yet notified
// when guestIDs is empty. Only guests whose delivery succeeded are marked
// notified.
//
// Mail that has gone out cannot be recalled, so when recording the outcome
// fails the report is returned alongside the error with a nil Item.
func (d *Dispatcher) NotifyGuests(ctx context.Context, id *models.Identity, itemID uuid.UUID, message string, guestIDs []uuid.UUID) (*Report, error) {
	if err := policy.Authorize(id, policy.OpNotifyGuests); err != nil {
		return nil, err
	}
	item, err := d.items.Get(ctx, id, itemID)
	if err != nil {
		return nil, err
	}

	targets := selectGuests(item.Guests, guestIDs)
	if len(targets) == 0 {
		return nil, apperr.InvalidInput("no guests to notify")
	}
	alert, err := d.alertSnapshot(ctx, item.AlertID)
	if err != nil {
		return nil, err
	}

	mails := make([]Mail, len(targets))
	deliveries := make([]Delivery, len(targets))
	for i, g := range targets {
		mails[i] = Mail{
			To:      g.Email,
			ToName:  g.Name,
			Subject: subjectFor(alert),
			Body:    bodyFor(message),
			Alert:   alert,
		}
		deliveries[i] = Delivery{GuestID: g.ID, Email: g.Email, Name: g.Name}
	}
	d.send(ctx, "guests", mails, deliveries)

	report := newReport(deliveries)
	delivered := make(map[uuid.UUID]struct{}, report.Sent)
	for _, dl := range deliveries {
		if dl.Sent {
			delivered[dl.GuestID] = struct{}{}
		}
	}

	updated, err := d.items.Update(ctx, id, itemID, string(models.ActionNotifyGuests), func(it *models.ActionItem) (bool, error) {
		now := d.items.Now()
		for i := range it.Guests {
			if _, ok := delivered[it.Guests[i].ID]; ok {
				sentAt := now
				it.Guests[i].NotificationSent = true
				it.Guests[i].SentTimestamp = &sentAt
			}
		}
		it.AppendLog(id.AccountID, id.ActorEmail(), models.ActionNotifyGuests,
			fmt.Sprintf("Notified %d guests (%d delivered)", report.Total, report.Sent), now)
		return true, nil
	})
	if err != nil {
		return report, err
	}
	report.Item = updated

	d.logger.Info("guest notifications dispatched",
		zap.Stringer("item_id", itemID),
		zap.Int("total", report.Total),
		zap.Int("sent", report.Sent),
	)
	return report, nil
}

// NotifyTeam mails the item owner's collaborators with a link back to the
// item and drops a copy in the owner's in-app inbox.
func (d *Dispatcher) NotifyTeam(ctx context.Context, id *models.Identity, itemID uuid.UUID, message string, managersOnly bool) (*Report, error) {
	if err := policy.Authorize(id, policy.OpNotifyTeam); err != nil {
		return nil, err
	}
	item, err := d.items.Get(ctx, id, itemID)
	if err != nil {
		return nil, err
	}

	owner, err := d.accounts.FindByID(ctx, item.UserID)
	if err != nil {
		return nil, apperr.Dependency("account directory unavailable", err)
	}
	if owner == nil {
		return nil, apperr.NotFound("account")
	}

	team := reachableCollaborators(owner.Collaborators)
	if len(team) == 0 {
		return nil, apperr.InvalidInput("account has no team members to notify")
	}
	if managersOnly {
		team = managers(team)
		if len(team) == 0 {
			return nil, apperr.InvalidInput("account has no managers to notify")
		}
	}

	alert, err := d.alertSnapshot(ctx, item.AlertID)
	if err != nil {
		return nil, err
	}
	link := d.deepLink(item.ID)

	mails := make([]Mail, len(team))
	deliveries := make([]Delivery, len(team))
	recipients := make([]string, len(team))
	for i, c := range team {
		mails[i] = Mail{
			To:      c.Email,
			ToName:  c.Name,
			Subject: subjectFor(alert),
			Body:    bodyFor(message),
			Link:    link,
			Alert:   alert,
		}
		deliveries[i] = Delivery{Email: c.Email, Name: c.Name}
		recipients[i] = c.Email
	}
	d.send(ctx, "team", mails, deliveries)
	report := newReport(deliveries)
	report.Link = link

	d.recordInbox(ctx, owner.ID, item, alert, bodyFor(message), recipients)

	updated, err := d.items.Update(ctx, id, itemID, string(models.ActionNotifyTeam), func(it *models.ActionItem) (bool, error) {
		it.AppendLog(id.AccountID, id.ActorEmail(), models.ActionNotifyTeam,
			fmt.Sprintf("Notified %d team members (%d delivered)", report.Total, report.Sent), d.items.Now())
		return true, nil
	})
	if err != nil {
		return report, err
	}
	report.Item = updated
	return report, nil
}

// send runs every delivery and waits for all of them. A failure never stops
// the rest of the batch.
func (d *Dispatcher) send(ctx context.Context, audience string, mails []Mail, out []Delivery) {
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i := range mails {
		i := i // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() error {
			ok := d.mailer.Send(ctx, mails[i])
			out[i].Sent = ok
			d.metrics.Delivery(audience, ok)
			if !ok {
				d.logger.Warn("mail delivery failed",
					zap.String("audience", audience),
					zap.String("to", mails[i].To),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) recordInbox(ctx context.Context, ownerID uuid.UUID, item *models.ActionItem, alert *models.Alert, message string, recipients []string) {
	title := "Team notified about an alert"
	if alert != nil && alert.Title != "" {
		title = "Team notified: " + alert.Title
	}
	n := &models.Notification{
		ID:           uuid.New(),
		AccountID:    ownerID,
		Type:         "team_notification",
		Title:        title,
		Message:      message,
		Recipients:   recipients,
		AlertID:      item.AlertID,
		ActionItemID: item.ID,
		CreatedAt:    d.items.Now(),
	}
	if err := d.notifications.Create(ctx, n); err != nil {
		d.logger.Error("failed to store team notification",
			zap.Stringer("item_id", item.ID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) alertSnapshot(ctx context.Context, alertID uuid.UUID) (*models.Alert, error) {
	alert, err := d.alerts.FindByID(ctx, alertID)
	if err != nil {
		return nil, apperr.Dependency("alert directory unavailable", err)
	}
	return alert, nil
}

func (d *Dispatcher) deepLink(itemID uuid.UUID) string {
	return d.baseURL + "/action-hub/" + itemID.String()
}

func selectGuests(guests []models.Guest, ids []uuid.UUID) []models.Guest {
	out := make([]models.Guest, 0, len(guests))
	if len(ids) == 0 {
		for _, g := range guests {
			if !g.NotificationSent {
				out = append(out, g)
			}
		}
		return out
	}
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for _, g := range guests {
		if _, ok := want[g.ID]; ok {
			out = append(out, g)
		}
	}
	return out
}

func reachableCollaborators(all []models.Collaborator) []models.Collaborator {
	out := make([]models.Collaborator, 0, len(all))
	for _, c := range all {
		if c.Status == models.CollaboratorActive || c.Status == models.CollaboratorInvited {
			out = append(out, c)
		}
	}
	return out
}

func managers(team []models.Collaborator) []models.Collaborator {
	out := make([]models.Collaborator, 0, len(team))
	for _, c := range team {
		if c.Role == models.RoleManager {
			out = append(out, c)
		}
	}
	return out
}

func newReport(deliveries []Delivery) *Report {
	r := &Report{Total: len(deliveries), Deliveries: deliveries}
	for _, dl := range deliveries {
		if dl.Sent {
			r.Sent++
		}
	}
	r.Failed = r.Total - r.Sent
	return r
}

func subjectFor(alert *models.Alert) string {
	if alert == nil || alert.Title == "" {
		return "Disruption update"
	}
	return "Disruption update: " + alert.Title
}

func bodyFor(message string) string {
	if m := strings.TrimSpace(message); m != "" {
		return m
	}
	return defaultMessage
}
