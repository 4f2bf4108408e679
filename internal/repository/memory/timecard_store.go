// Package memory holds in-process repository implementations used when no DSN is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/and161185/timecards/internal/errs"
	"github.com/and161185/timecards/internal/model"
)

// TimecardStore keeps deep copies of timecards keyed by identity.
type TimecardStore struct {
	mu     sync.RWMutex
	nextID int
	cards  map[model.TimecardIdentity]*model.Timecard
}

func NewTimecardStore() *TimecardStore {
	return &TimecardStore{cards: make(map[model.TimecardIdentity]*model.Timecard)}
}

func (s *TimecardStore) Create(_ context.Context, tc *model.Timecard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[tc.Identity]; ok {
		return errs.ErrAlreadyExists
	}
	s.nextID++
	tc.RecordIdentity = s.nextID
	tc.RecordVersion = 0
	s.cards[tc.Identity] = tc.Clone()
	return nil
}

func (s *TimecardStore) Get(_ context.Context, id model.TimecardIdentity) (*model.Timecard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tc, ok := s.cards[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return tc.Clone(), nil
}

func (s *TimecardStore) List(_ context.Context) ([]*model.Timecard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Timecard, 0, len(s.cards))
	for _, tc := range s.cards {
		out = append(out, tc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordIdentity < out[j].RecordIdentity })
	return out, nil
}

func (s *TimecardStore) Save(_ context.Context, tc *model.Timecard, baseVer int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cards[tc.Identity]
	if !ok {
		return 0, errs.ErrNotFound
	}
	if cur.RecordVersion != baseVer || len(tc.Transitions()) < len(cur.Transitions()) {
		return 0, errs.ErrVersionConflict
	}
	stored := tc.Clone()
	stored.RecordIdentity = cur.RecordIdentity
	stored.RecordVersion = baseVer + 1
	s.cards[tc.Identity] = stored
	return stored.RecordVersion, nil
}

func (s *TimecardStore) Delete(_ context.Context, id model.TimecardIdentity, baseVer int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cards[id]
	if !ok {
		return errs.ErrNotFound
	}
	if cur.RecordVersion != baseVer {
		return errs.ErrVersionConflict
	}
	delete(s.cards, id)
	return nil
}
