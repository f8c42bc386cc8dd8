package chatconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "config:"

// Store persists chat configurations keyed by Telegram chat ID.
type Store interface {
	Get(ctx context.Context, chatID string) (*ChatConfig, error)
	Put(ctx context.Context, chatID string, cfg *ChatConfig) error
	Delete(ctx context.Context, chatID string) error
	List(ctx context.Context) ([]string, error)
}

var _ Store = (*BadgerStore)(nil)

// BadgerStore keeps chat configurations as JSON values in a Badger database.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens or creates the database in dir.
func Open(dir string, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open chat config db %q: %w", dir, err)
	}
	if logger != nil {
		logger.Info("chat config db opened", "path", dir)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func configKey(chatID string) ([]byte, error) {
	id := strings.TrimSpace(chatID)
	if id == "" {
		return nil, errors.New("chat id is required")
	}
	return []byte(keyPrefix + id), nil
}

// Get loads the config for chatID, or ErrNotFound.
func (s *BadgerStore) Get(ctx context.Context, chatID string) (*ChatConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := configKey(chatID)
	if err != nil {
		return nil, err
	}

	var cfg ChatConfig
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cfg)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat config %q: %w", chatID, err)
	}
	return &cfg, nil
}

// Put replaces the config for chatID.
func (s *BadgerStore) Put(ctx context.Context, chatID string, cfg *ChatConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cfg == nil {
		return errors.New("config is required")
	}
	key, err := configKey(chatID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal chat config %q: %w", chatID, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return fmt.Errorf("put chat config %q: %w", chatID, err)
	}
	return nil
}

// Delete removes the config for chatID. Deleting a missing config is not an error.
func (s *BadgerStore) Delete(ctx context.Context, chatID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := configKey(chatID)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}); err != nil {
		return fmt.Errorf("delete chat config %q: %w", chatID, err)
	}
	return nil
}

// List returns the IDs of all configured chats in key order.
func (s *BadgerStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list chat configs: %w", err)
	}
	return ids, nil
}

// RunGC reclaims value log space until Badger reports nothing left to rewrite.
func (s *BadgerStore) RunGC(ctx context.Context) error {
	rewrites := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			if s.logger != nil {
				s.logger.Debug("chat config db gc finished", "rewrites", rewrites)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("run value log gc: %w", err)
		}
		rewrites++
	}
}
