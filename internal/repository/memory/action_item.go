// Package memory holds in-process implementations of the repository
// interfaces. Used by tests and by STORE=memory for local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/repository"
)

type pairKey struct {
	userID  uuid.UUID
	alertID uuid.UUID
}

// keyedMutex hands out one mutex per (user, alert) pair. Entries are never
// evicted; the memory backend is not meant for long-lived production data.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[pairKey]*sync.Mutex
}

func (k *keyedMutex) lock(key pairKey) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[pairKey]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

type ActionItemStore struct {
	mu     sync.RWMutex
	items  map[uuid.UUID]*models.ActionItem
	byPair map[pairKey]uuid.UUID
	locks  keyedMutex
}

func NewActionItemStore() *ActionItemStore {
	return &ActionItemStore{
		items:  make(map[uuid.UUID]*models.ActionItem),
		byPair: make(map[pairKey]uuid.UUID),
	}
}

var _ repository.ActionItemRepository = (*ActionItemStore)(nil)

func (s *ActionItemStore) GetByID(_ context.Context, id uuid.UUID) (*models.ActionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[id].Clone(), nil
}

func (s *ActionItemStore) GetByUserAlert(_ context.Context, userID, alertID uuid.UUID) (*models.ActionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey{userID, alertID}]
	if !ok {
		return nil, nil
	}
	return s.items[id].Clone(), nil
}

func (s *ActionItemStore) ListByUser(_ context.Context, userID uuid.UUID, status *models.ActionStatus) ([]models.ActionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]models.ActionItem, 0)
	for _, it := range s.items {
		if it.UserID != userID {
			continue
		}
		if status != nil && it.Status != *status {
			continue
		}
		items = append(items, *it.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *ActionItemStore) Mutate(_ context.Context, id uuid.UUID, fn repository.MutateFunc) (*models.ActionItem, error) {
	s.mu.RLock()
	current, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}

	unlock := s.locks.lock(pairKey{current.UserID, current.AlertID})
	defer unlock()

	// Re-read under the pair lock: the item may have changed or been deleted.
	s.mu.RLock()
	current, ok = s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}

	work := current.Clone()
	changed, err := fn(work)
	if err != nil {
		return nil, err
	}
	if !changed {
		return work, nil
	}

	s.mu.Lock()
	s.items[id] = work.Clone()
	s.mu.Unlock()
	return work, nil
}

func (s *ActionItemStore) Upsert(_ context.Context, userID, alertID uuid.UUID, fn repository.UpsertFunc) (*models.ActionItem, error) {
	key := pairKey{userID, alertID}
	unlock := s.locks.lock(key)
	defer unlock()

	s.mu.RLock()
	id, exists := s.byPair[key]
	var work *models.ActionItem
	if exists {
		work = s.items[id].Clone()
	}
	s.mu.RUnlock()
	if !exists {
		work = models.NewActionItem(userID, alertID, time.Now())
	}

	outcome, err := fn(work, exists)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case repository.UpsertKeep:
		s.mu.Lock()
		s.items[work.ID] = work.Clone()
		s.byPair[key] = work.ID
		s.mu.Unlock()
		return work, nil
	case repository.UpsertDelete:
		if exists {
			s.mu.Lock()
			delete(s.items, id)
			delete(s.byPair, key)
			s.mu.Unlock()
		}
		return nil, nil
	default:
		if !exists {
			return nil, nil
		}
		return work, nil
	}
}

func (s *ActionItemStore) EngagedUsers(_ context.Context, alertID uuid.UUID) ([]uuid.UUID, []uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	followers := make([]uuid.UUID, 0)
	flaggers := make([]uuid.UUID, 0)
	seenFollow := make(map[uuid.UUID]struct{})
	seenFlag := make(map[uuid.UUID]struct{})
	for _, it := range s.items {
		if it.AlertID != alertID {
			continue
		}
		if _, dup := seenFollow[it.UserID]; it.IsFollowing && !dup {
			seenFollow[it.UserID] = struct{}{}
			followers = append(followers, it.UserID)
		}
		if _, dup := seenFlag[it.UserID]; it.Flagged && !dup {
			seenFlag[it.UserID] = struct{}{}
			flaggers = append(flaggers, it.UserID)
		}
	}
	sortIDs(followers)
	sortIDs(flaggers)
	return followers, flaggers, nil
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
