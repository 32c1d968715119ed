package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/actionhub"
	"github.com/lalith-99/disruptionhub/internal/apperr"
	"github.com/lalith-99/disruptionhub/internal/audit"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/repository"
	"github.com/lalith-99/disruptionhub/internal/repository/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeMailer fails every address listed in fail and records what it saw.
type fakeMailer struct {
	mu   sync.Mutex
	fail map[string]bool
	down bool
	sent []Mail
}

func (m *fakeMailer) Send(_ context.Context, mail Mail) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return !m.down && !m.fail[mail.To]
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	dispatcher    *Dispatcher
	hub           *actionhub.Service
	mailer        *fakeMailer
	notifications *memory.NotificationStore
	accounts      *memory.AccountStore
	alerts        *memory.AlertStore
	owner         *models.Identity
	item          *models.ActionItem
}

func newFixture(t *testing.T, collaborators ...models.Collaborator) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	items := memory.NewActionItemStore()
	alerts := memory.NewAlertStore()
	accounts := memory.NewAccountStore()
	notifications := memory.NewNotificationStore()

	alert := &models.Alert{ID: uuid.New(), Title: "Rail strike", City: "Lyon"}
	alerts.Put(alert)

	account := &models.Account{
		ID:            uuid.New(),
		Email:         "owner@hotel.test",
		Role:          models.RoleUser,
		Premium:       true,
		Status:        models.AccountActive,
		Collaborators: collaborators,
	}
	if err := accounts.Save(ctx, account); err != nil {
		t.Fatalf("save: %v", err)
	}
	owner := &models.Identity{AccountID: account.ID, Email: account.Email, Role: account.Role, Premium: true, Status: account.Status}

	hub := actionhub.NewService(items, alerts, accounts, audit.NewZapSink(zap.NewNop()), nil, zap.NewNop(), actionhub.WithClock(clock))
	res, err := hub.ToggleFlag(ctx, owner, alert.ID)
	if err != nil {
		t.Fatalf("flag: %v", err)
	}

	mailer := &fakeMailer{fail: map[string]bool{}}
	d := NewDispatcher(hub, accounts, alerts, notifications, mailer, "https://app.test/", zap.NewNop(), WithConcurrency(2))
	return &fixture{
		dispatcher:    d,
		hub:           hub,
		mailer:        mailer,
		notifications: notifications,
		accounts:      accounts,
		alerts:        alerts,
		owner:         owner,
		item:          res.Item,
	}
}

func (f *fixture) addGuests(t *testing.T, emails ...string) *models.ActionItem {
	t.Helper()
	in := make([]actionhub.GuestInput, len(emails))
	for i, e := range emails {
		in[i] = actionhub.GuestInput{Email: e}
	}
	item, _, err := f.hub.AddGuests(context.Background(), f.owner, f.item.ID, in)
	if err != nil {
		t.Fatalf("add guests: %v", err)
	}
	return item
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if got := apperr.KindOf(err); err == nil || got != kind {
		t.Fatalf("expected %s, got %v", kind, err)
	}
}

// unsavedItems lets reads through but fails every write.
type unsavedItems struct {
	*actionhub.Service
}

func (unsavedItems) Update(context.Context, *models.Identity, uuid.UUID, string, repository.MutateFunc) (*models.ActionItem, error) {
	return nil, apperr.Dependency("action item store unavailable", errors.New("pool closed"))
}

func TestNotifyGuests_ReportSurvivesFailedSave(t *testing.T) {
	f := newFixture(t)
	f.addGuests(t, "g1@x.test", "g2@x.test")
	f.mailer.fail["g2@x.test"] = true
	d := NewDispatcher(unsavedItems{f.hub}, f.accounts, f.alerts, f.notifications, f.mailer, "https://app.test", zap.NewNop())

	report, err := d.NotifyGuests(context.Background(), f.owner, f.item.ID, "hello", nil)
	assertKind(t, err, apperr.KindDependency)
	if report == nil {
		t.Fatal("expected the delivery report alongside the error")
	}
	if report.Total != 2 || report.Sent != 1 || report.Item != nil {
		t.Errorf("unexpected report total=%d sent=%d item=%v", report.Total, report.Sent, report.Item)
	}
	if f.mailer.count() != 2 {
		t.Errorf("expected 2 mails attempted, got %d", f.mailer.count())
	}
}

func TestNotifyGuests_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.addGuests(t, "g1@x.test", "g2@x.test", "g3@x.test")
	f.mailer.fail["g2@x.test"] = true

	report, err := f.dispatcher.NotifyGuests(context.Background(), f.owner, f.item.ID, "Shuttle rerouted", nil)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if report.Total != 3 || report.Sent != 2 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if f.mailer.count() != 3 {
		t.Errorf("every guest must be attempted, got %d sends", f.mailer.count())
	}

	for _, g := range report.Item.Guests {
		wantSent := g.Email != "g2@x.test"
		if g.NotificationSent != wantSent {
			t.Errorf("%s: notificationSent=%v want %v", g.Email, g.NotificationSent, wantSent)
		}
		if wantSent && g.SentTimestamp == nil {
			t.Errorf("%s: missing sent timestamp", g.Email)
		}
		if !wantSent && g.SentTimestamp != nil {
			t.Errorf("%s: failed guest must not get a timestamp", g.Email)
		}
	}

	notifyLogs := 0
	for _, l := range report.Item.ActionLogs {
		if l.ActionType == models.ActionNotifyGuests {
			notifyLogs++
			if !strings.Contains(l.Details, "Notified 3 guests") {
				t.Errorf("unexpected detail %q", l.Details)
			}
		}
	}
	if notifyLogs != 1 {
		t.Errorf("expected one aggregate log entry, got %d", notifyLogs)
	}

	// The retry only targets the guest that was not reached.
	delete(f.mailer.fail, "g2@x.test")
	report, err = f.dispatcher.NotifyGuests(context.Background(), f.owner, f.item.ID, "Shuttle rerouted", nil)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if report.Total != 1 || report.Deliveries[0].Email != "g2@x.test" {
		t.Errorf("expected only g2 to be retried, got %+v", report.Deliveries)
	}
}

func TestNotifyGuests_TotalOutageIsAReport(t *testing.T) {
	f := newFixture(t)
	f.addGuests(t, "g1@x.test", "g2@x.test")
	f.mailer.down = true

	report, err := f.dispatcher.NotifyGuests(context.Background(), f.owner, f.item.ID, "", nil)
	if err != nil {
		t.Fatalf("outage must not be an error: %v", err)
	}
	if report.Sent != 0 || report.Failed != 2 {
		t.Errorf("expected 0 of 2 delivered, got %+v", report)
	}
	for _, g := range report.Item.Guests {
		if g.NotificationSent {
			t.Errorf("%s marked sent during outage", g.Email)
		}
	}
}

func TestNotifyGuests_ExplicitFilter(t *testing.T) {
	f := newFixture(t)
	item := f.addGuests(t, "g1@x.test", "g2@x.test")

	report, err := f.dispatcher.NotifyGuests(context.Background(), f.owner, f.item.ID, "hi", []uuid.UUID{item.Guests[1].ID})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if report.Total != 1 || report.Deliveries[0].Email != "g2@x.test" {
		t.Errorf("filter ignored: %+v", report.Deliveries)
	}
}

func TestNotifyGuests_NothingToSend(t *testing.T) {
	f := newFixture(t)
	_, err := f.dispatcher.NotifyGuests(context.Background(), f.owner, f.item.ID, "hi", nil)
	assertKind(t, err, apperr.KindInvalidInput)

	_, err = f.dispatcher.NotifyGuests(context.Background(), f.owner, f.item.ID, "hi", []uuid.UUID{uuid.New()})
	assertKind(t, err, apperr.KindInvalidInput)
	if f.mailer.count() != 0 {
		t.Errorf("nothing should have been sent")
	}
}

func TestNotifyGuests_NotOwner(t *testing.T) {
	f := newFixture(t)
	f.addGuests(t, "g1@x.test")
	stranger := &models.Identity{AccountID: uuid.New(), Role: models.RoleUser, Status: models.AccountActive}

	_, err := f.dispatcher.NotifyGuests(context.Background(), stranger, f.item.ID, "hi", nil)
	assertKind(t, err, apperr.KindAuthorization)
}

func TestNotifyTeam(t *testing.T) {
	f := newFixture(t,
		models.Collaborator{Email: "mgr@hotel.test", Role: models.RoleManager, Status: models.CollaboratorActive},
		models.Collaborator{Email: "view@hotel.test", Role: models.RoleViewer, Status: models.CollaboratorInvited},
		models.Collaborator{Email: "gone@hotel.test", Role: models.RoleManager, Status: models.CollaboratorDeleted},
	)

	report, err := f.dispatcher.NotifyTeam(context.Background(), f.owner, f.item.ID, "Please review", false)
	if err != nil {
		t.Fatalf("notify team: %v", err)
	}
	if report.Total != 2 || report.Sent != 2 {
		t.Fatalf("expected 2 of 2, got %+v", report)
	}
	wantLink := "https://app.test/action-hub/" + f.item.ID.String()
	if report.Link != wantLink {
		t.Errorf("expected link %s, got %s", wantLink, report.Link)
	}
	for _, m := range f.mailer.sent {
		if m.Link != wantLink {
			t.Errorf("mail to %s missing deep link", m.To)
		}
	}

	inbox, _ := f.notifications.ListByAccount(context.Background(), f.owner.AccountID, 10)
	if len(inbox) != 1 || len(inbox[0].Recipients) != 2 || inbox[0].ActionItemID != f.item.ID {
		t.Errorf("unexpected inbox %+v", inbox)
	}
	last := report.Item.ActionLogs[len(report.Item.ActionLogs)-1]
	if last.ActionType != models.ActionNotifyTeam {
		t.Errorf("expected notify_team log, got %s", last.ActionType)
	}

	report, err = f.dispatcher.NotifyTeam(context.Background(), f.owner, f.item.ID, "Managers only", true)
	if err != nil {
		t.Fatalf("notify managers: %v", err)
	}
	if report.Total != 1 || report.Deliveries[0].Email != "mgr@hotel.test" {
		t.Errorf("expected only the active manager, got %+v", report.Deliveries)
	}
}

func TestNotifyTeam_EmptyTeam(t *testing.T) {
	f := newFixture(t)
	_, err := f.dispatcher.NotifyTeam(context.Background(), f.owner, f.item.ID, "hi", false)
	assertKind(t, err, apperr.KindInvalidInput)

	g := newFixture(t, models.Collaborator{Email: "v@hotel.test", Role: models.RoleViewer, Status: models.CollaboratorActive})
	_, err = g.dispatcher.NotifyTeam(context.Background(), g.owner, g.item.ID, "hi", true)
	assertKind(t, err, apperr.KindInvalidInput)
}

func TestNotifyTeam_RequiresPremium(t *testing.T) {
	f := newFixture(t, models.Collaborator{Email: "mgr@hotel.test", Role: models.RoleManager, Status: models.CollaboratorActive})
	basic := *f.owner
	basic.Premium = false

	_, err := f.dispatcher.NotifyTeam(context.Background(), &basic, f.item.ID, "hi", false)
	assertKind(t, err, apperr.KindAuthorization)
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Reason != apperr.ReasonPremiumRequired {
		t.Errorf("expected premium_required, got %s", appErr.Reason)
	}
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewLogMailer(zap.New(core))

	ok := m.Send(context.Background(), Mail{To: "g@x.test", Subject: "s", Link: "https://app.test/x"})
	if !ok {
		t.Fatal("log mailer should report success")
	}
	entries := logs.FilterMessage("mail sent").All()
	if len(entries) != 1 || entries[0].ContextMap()["to"] != "g@x.test" {
		t.Errorf("unexpected log entries %+v", entries)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if m.Send(ctx, Mail{To: "g@x.test"}) {
		t.Error("cancelled context should fail the send")
	}
}
