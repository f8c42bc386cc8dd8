package chatconfig

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. Values are deep-copied on the way in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string][]byte)}
}

// Get loads the config for chatID, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, chatID string) (*ChatConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	raw, ok := s.configs[strings.TrimSpace(chatID)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var cfg ChatConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Put replaces the config for chatID.
func (s *MemoryStore) Put(ctx context.Context, chatID string, cfg *ChatConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cfg == nil {
		return errors.New("config is required")
	}
	id := strings.TrimSpace(chatID)
	if id == "" {
		return errors.New("chat id is required")
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.configs[id] = raw
	s.mu.Unlock()
	return nil
}

// Delete removes the config for chatID.
func (s *MemoryStore) Delete(ctx context.Context, chatID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.configs, strings.TrimSpace(chatID))
	s.mu.Unlock()
	return nil
}

// List returns the configured chat IDs in sorted order.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	ids := make([]string, 0, len(s.configs))
	for id := range s.configs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids, nil
}
