package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/eduAuth/internal"
	"github.com/google/uuid"
)

// MemoryStore is a process-local [Store] for tests and single-instance tools.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	byHash  map[string]string
	byUser  map[string]map[string]struct{}
	now     func() time.Time
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		byHash:  make(map[string]string),
		byUser:  make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// WithClock overrides the store clock.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context, userID, token string, expiresAt time.Time) (*Record, error) {
	if userID == "" || token == "" {
		return nil, errors.New("refresh: user id and token are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: internal.HashToken(token),
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records[rec.ID] = rec
	s.byHash[rec.TokenHash] = rec.ID
	ids, ok := s.byUser[userID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[userID] = ids
	}
	ids[rec.ID] = struct{}{}

	out := *rec
	return &out, nil
}

func (s *MemoryStore) FindByToken(_ context.Context, token string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[internal.HashToken(token)]
	if !ok {
		return nil, nil
	}
	out := *s.records[id]
	return &out, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, patch Update) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.MarkUsed {
		rec.Used = true
	}
	if patch.Revoke {
		rec.Revoked = true
	}
	rec.UpdatedAt = s.now()
	out := *rec
	return &out, nil
}

func (s *MemoryStore) MarkUsed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, ErrNotFound
	}
	if rec.Used || rec.Revoked {
		return false, nil
	}
	rec.Used = true
	rec.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) InvalidateAllForUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	revoked := 0
	for id := range s.byUser[userID] {
		rec := s.records[id]
		if rec.Revoked {
			continue
		}
		rec.Revoked = true
		rec.UpdatedAt = now
		revoked++
	}
	return revoked, nil
}

func (s *MemoryStore) ListForUser(_ context.Context, userID string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Record, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		rec := *s.records[id]
		out = append(out, &rec)
	}
	return out, nil
}
