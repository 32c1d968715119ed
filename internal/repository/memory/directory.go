package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/repository"
)

type AccountStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*models.Account
}

func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[uuid.UUID]*models.Account)}
}

var _ repository.AccountRepository = (*AccountStore)(nil)

func cloneAccount(a *models.Account) *models.Account {
	if a == nil {
		return nil
	}
	c := *a
	c.FollowedAlerts = slices.Clone(a.FollowedAlerts)
	c.Collaborators = slices.Clone(a.Collaborators)
	return &c
}

func (s *AccountStore) FindByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAccount(s.accounts[id]), nil
}

func (s *AccountStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return cloneAccount(a), nil
		}
	}
	return nil, nil
}

func (s *AccountStore) FindByCollaboratorEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Collaborator(email) != nil {
			return cloneAccount(a), nil
		}
	}
	return nil, nil
}

func (s *AccountStore) Save(_ context.Context, account *models.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (s *AccountStore) AddFollowedAlert(_ context.Context, accountID, alertID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	if !slices.Contains(a.FollowedAlerts, alertID) {
		a.FollowedAlerts = append(a.FollowedAlerts, alertID)
	}
	return nil
}

func (s *AccountStore) RemoveFollowedAlert(_ context.Context, accountID, alertID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	a.FollowedAlerts = slices.DeleteFunc(a.FollowedAlerts, func(id uuid.UUID) bool { return id == alertID })
	return nil
}

type AlertStore struct {
	mu     sync.RWMutex
	alerts map[uuid.UUID]*models.Alert
}

func NewAlertStore() *AlertStore {
	return &AlertStore{alerts: make(map[uuid.UUID]*models.Alert)}
}

var _ repository.AlertRepository = (*AlertStore)(nil)

// Put inserts or replaces an alert. Alert CRUD lives outside this service;
// this exists for seeding and tests.
func (s *AlertStore) Put(alert *models.Alert) {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	c := *alert
	s.mu.Lock()
	s.alerts[alert.ID] = &c
	s.mu.Unlock()
}

func (s *AlertStore) FindByID(_ context.Context, id uuid.UUID) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, nil
	}
	c := *a
	c.FollowedBy = slices.Clone(a.FollowedBy)
	c.FlaggedBy = slices.Clone(a.FlaggedBy)
	return &c, nil
}

func (s *AlertStore) UpdateFollowFlagAggregates(_ context.Context, alertID uuid.UUID, agg repository.AlertAggregates) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return repository.ErrNotFound
	}
	a.NumberOfFollows = agg.NumberOfFollows
	a.FollowedBy = slices.Clone(agg.FollowedBy)
	a.FlaggedBy = slices.Clone(agg.FlaggedBy)
	return nil
}

type NotificationStore struct {
	mu            sync.RWMutex
	notifications []models.Notification
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

var _ repository.NotificationRepository = (*NotificationStore)(nil)

func (s *NotificationStore) Create(_ context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	c := *n
	c.Recipients = slices.Clone(n.Recipients)
	s.mu.Lock()
	s.notifications = append(s.notifications, c)
	s.mu.Unlock()
	return nil
}

func (s *NotificationStore) ListByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Notification, 0)
	for _, n := range s.notifications {
		if n.AccountID == accountID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
