package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store implementation. Sessions live in process
// memory only; durability across restarts is a non-goal.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

func (s *MemoryStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return ErrSessionExists
	}

	now := time.Now()
	cp := *sess
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.State == "" {
		cp.State = StateStarted
	}
	s.sessions[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) SetRegion(ctx context.Context, id, region string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Region = region
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetState(ctx context.Context, id string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.State = state
	sess.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*Session
	for _, sess := range s.sessions {
		if sess.UpdatedAt.Before(before) {
			cp := *sess
			expired = append(expired, &cp)
			if limit > 0 && len(expired) >= limit {
				break
			}
		}
	}
	return expired, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
