package session

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used when Redis is not configured and
// for deterministic tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, sessionID, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[sessionID][key]
	return entry, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, sessionID, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sessionID] == nil {
		s.sessions[sessionID] = make(map[string]Entry)
	}
	s.sessions[sessionID][key] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions[sessionID], key)
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, sessionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.sessions[sessionID]))
	for key := range s.sessions[sessionID] {
		keys = append(keys, key)
	}
	return keys, nil
}
