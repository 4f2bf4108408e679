package memory

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/timecards/internal/errs"
	"github.com/and161185/timecards/internal/model"
)

// AccountStore keeps resource accounts; resource numbers are handed out sequentially from 1.
type AccountStore struct {
	mu         sync.RWMutex
	byResource map[int]model.Account
	byName     map[string]int
}

func NewAccountStore() *AccountStore {
	return &AccountStore{byResource: make(map[int]model.Account), byName: make(map[string]int)}
}

func (s *AccountStore) Create(_ context.Context, a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[a.Username]; ok {
		return errs.ErrAlreadyExists
	}
	a.Resource = len(s.byResource) + 1
	a.CreatedAt = time.Now().UTC()
	s.byResource[a.Resource] = *a
	s.byName[a.Username] = a.Resource
	return nil
}

func (s *AccountStore) GetByResource(_ context.Context, resource int) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byResource[resource]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

func (s *AccountStore) GetByUsername(_ context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	a := s.byResource[id]
	return &a, nil
}
