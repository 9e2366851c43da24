// Package ledger provides the entity store the analytics engine reads and writes.
//
// Entities are JSON documents addressed by (kind, id). Backends only need to
// implement point reads and an atomic batch apply; the Session type layers
// read-your-writes staging and typed accessors on top.
package ledger

import (
	"context"
	"sync"

	"github.com/amm-analytics/internal/models"
)

// Mutation is one staged write. A nil Data deletes the entity.
type Mutation struct {
	Kind models.Kind
	ID   string
	Data []byte
}

// IsDelete reports whether the mutation removes the entity
func (m Mutation) IsDelete() bool {
	return m.Data == nil
}

// Store is the persistence contract of the ledger
type Store interface {
	// Get returns the encoded entity, or (nil, nil) when it does not exist
	Get(ctx context.Context, kind models.Kind, id string) ([]byte, error)
	// Apply persists all mutations atomically, in order
	Apply(ctx context.Context, mutations []Mutation) error
}

// Counter is implemented by stores that can count entities of a kind
type Counter interface {
	Count(ctx context.Context, kind models.Kind) (int64, error)
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[models.Kind]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities: make(map[models.Kind]map[string][]byte),
	}
}

// Get returns a copy of the stored document
func (s *MemoryStore) Get(ctx context.Context, kind models.Kind, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.entities[kind][id]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

// Apply writes all mutations under one lock
func (s *MemoryStore) Apply(ctx context.Context, mutations []Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range mutations {
		if m.IsDelete() {
			delete(s.entities[m.Kind], m.ID)
			continue
		}
		byID, ok := s.entities[m.Kind]
		if !ok {
			byID = make(map[string][]byte)
			s.entities[m.Kind] = byID
		}
		byID[m.ID] = append([]byte(nil), m.Data...)
	}
	return nil
}

// Count returns the number of stored entities of a kind
func (s *MemoryStore) Count(ctx context.Context, kind models.Kind) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entities[kind])), nil
}
