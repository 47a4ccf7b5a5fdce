package state

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps conversations in process memory. Handlers use it for their
// transient conversations and tests use it as the durable store.
type MemoryStore struct {
	mu    sync.RWMutex
	convs map[Key]*ConversationState
	now   func() time.Time
}

func NewMemoryStore(opts ...StoreOption) (*MemoryStore, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		convs: make(map[Key]*ConversationState),
		now:   o.Now,
	}, nil
}

func (s *MemoryStore) Get(_ context.Context, key Key) (*ConversationState, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.convs[key]
	if !ok {
		return nil, ErrStateNotFound
	}
	return st.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, key Key, shared map[string]any) (*ConversationState, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[key]; ok {
		return nil, ErrStateExists
	}
	st := NewConversationState(key, shared, s.now())
	s.convs[key] = st.Clone()
	return st, nil
}

func (s *MemoryStore) List(_ context.Context, app, user string) ([]string, error) {
	if _, err := indexKey("", app, user); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for k := range s.convs {
		if k.App == app && k.User == user {
			ids = append(ids, k.Conversation)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.convs, key)
	return nil
}

func (s *MemoryStore) Save(_ context.Context, st *ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st != nil {
		if cur, ok := s.convs[st.Key]; ok && cur.Version != st.Version {
			return ErrVersionConflict
		}
	}
	if _, err := prepareSave(st, s.now); err != nil {
		return err
	}
	s.convs[st.Key] = st.Clone()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
