package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/amm-analytics/internal/errors"
	"github.com/amm-analytics/internal/models"
)

type entityKey struct {
	kind models.Kind
	id   string
}

// Session stages the writes of one event. Reads see staged writes first and
// fall through to the store; nothing reaches the store until Commit.
type Session struct {
	store  Store
	staged map[entityKey][]byte
	order  []entityKey
	closed bool
}

// NewSession opens a session over store
func NewSession(store Store) *Session {
	return &Session{
		store:  store,
		staged: make(map[entityKey][]byte),
	}
}

// load decodes the entity into dst. It returns false when the entity is absent.
func (s *Session) load(ctx context.Context, kind models.Kind, id string, dst interface{}) (bool, error) {
	key := entityKey{kind, id}

	data, ok := s.staged[key]
	if !ok {
		var err error
		data, err = s.store.Get(ctx, kind, id)
		if err != nil {
			return false, apperrors.NewStorageError(fmt.Sprintf("get %s %s", kind, id), err)
		}
	}
	if data == nil {
		return false, nil
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, apperrors.NewInternalError(fmt.Sprintf("decode %s %s", kind, id), err)
	}
	return true, nil
}

func (s *Session) stage(key entityKey, data []byte) {
	if _, ok := s.staged[key]; !ok {
		s.order = append(s.order, key)
	}
	s.staged[key] = data
}

// Save stages an entity write
func (s *Session) Save(e models.Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("encode %s %s", e.EntityKind(), e.EntityID()), err)
	}
	s.stage(entityKey{e.EntityKind(), e.EntityID()}, data)
	return nil
}

// Delete stages an entity removal
func (s *Session) Delete(kind models.Kind, id string) {
	s.stage(entityKey{kind, id}, nil)
}

// Exists reports whether the entity is visible to this session
func (s *Session) Exists(ctx context.Context, kind models.Kind, id string) (bool, error) {
	key := entityKey{kind, id}
	if data, ok := s.staged[key]; ok {
		return data != nil, nil
	}
	data, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return false, apperrors.NewStorageError(fmt.Sprintf("get %s %s", kind, id), err)
	}
	return data != nil, nil
}

// Mutations returns the staged writes in first-touch order
func (s *Session) Mutations() []Mutation {
	out := make([]Mutation, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, Mutation{Kind: key.kind, ID: key.id, Data: s.staged[key]})
	}
	return out
}

// Commit applies every staged write atomically and closes the session
func (s *Session) Commit(ctx context.Context) error {
	if s.closed {
		return apperrors.NewInternalError("session already closed", nil)
	}
	s.closed = true

	if len(s.order) == 0 {
		return nil
	}
	if err := s.store.Apply(ctx, s.Mutations()); err != nil {
		return apperrors.NewStorageError("commit", err)
	}
	return nil
}

// Discard drops every staged write
func (s *Session) Discard() {
	s.closed = true
	s.staged = make(map[entityKey][]byte)
	s.order = nil
}
