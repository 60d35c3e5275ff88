package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/capitalize-ai/ragchat/internal/model"
)

// MemoryStore keeps records in process memory. Records are copied on the way
// in and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
	puts    int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Get returns a copy of the subject's record.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*model.ChatRecord, error) {
	s.mu.Lock()
	raw, ok := s.records[userID]
	s.mu.Unlock()
	if !ok {
		return emptyRecord(userID), nil
	}

	var rec model.ChatRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put stores a copy of rec if its version matches.
func (s *MemoryStore) Put(ctx context.Context, rec *model.ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if raw, ok := s.records[rec.UserID]; ok {
		var stored model.ChatRecord
		if err := json.Unmarshal(raw, &stored); err != nil {
			return err
		}
		current = stored.Version
	}
	if current != rec.Version {
		return ErrVersionConflict
	}

	next := *rec
	next.Version = rec.Version + 1
	raw, err := json.Marshal(&next)
	if err != nil {
		return err
	}
	s.records[rec.UserID] = raw
	s.puts++
	rec.Version = next.Version
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Puts returns the number of successful writes.
func (s *MemoryStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}
