// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/bureau-foundation/proxysync/message"
)

var _ Store = (*Badger)(nil)

// BadgerConfig configures a [Badger] store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// GCInterval is how often value log garbage collection runs.
	// Zero disables it.
	GCInterval time.Duration

	Logger *slog.Logger
}

// Key layout: one prefix byte, then the big-endian id.
const (
	statePrefix    byte = 's'
	highWaterKey        = "meta/high-water"
	gcDiscardRatio      = 0.5
)

// Badger is a [Store] backed by BadgerDB.
type Badger struct {
	db     *badger.DB
	logger *slog.Logger
	stop   chan struct{}
	done   chan struct{}
}

// OpenBadger opens or creates the database.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store: path is required for a persistent badger store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}
	b := &Badger{db: db, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		b.stop = make(chan struct{})
		b.done = make(chan struct{})
		go b.collectGarbage(cfg.GCInterval)
	}
	return b, nil
}

func stateKey(id message.ID) []byte {
	key := make([]byte, 5)
	key[0] = statePrefix
	binary.BigEndian.PutUint32(key[1:], uint32(id))
	return key
}

func (b *Badger) Get(_ context.Context, id message.ID) ([]byte, error) {
	var state []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(id))
		if err != nil {
			return err
		}
		state, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading state %d: %w", id, err)
	}
	return state, nil
}

func (b *Badger) Put(_ context.Context, id message.ID, state []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(id), state)
	})
	if err != nil {
		return fmt.Errorf("writing state %d: %w", id, err)
	}
	return nil
}

func (b *Badger) Delete(_ context.Context, id message.ID) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(stateKey(id))
	})
	if err != nil {
		return fmt.Errorf("deleting state %d: %w", id, err)
	}
	return nil
}

func (b *Badger) IDs(context.Context) ([]message.ID, error) {
	var ids []message.ID
	err := b.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = []byte{statePrefix}
		iterator := txn.NewIterator(options)
		defer iterator.Close()
		for iterator.Rewind(); iterator.Valid(); iterator.Next() {
			key := iterator.Item().Key()
			if len(key) != 5 {
				continue
			}
			ids = append(ids, message.ID(binary.BigEndian.Uint32(key[1:])))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing states: %w", err)
	}
	return ids, nil
}

func (b *Badger) HighWater(context.Context) (message.ID, error) {
	var id message.ID
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(highWaterKey))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			if len(value) != 4 {
				return fmt.Errorf("high-water mark has %d bytes", len(value))
			}
			id = message.ID(binary.BigEndian.Uint32(value))
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return message.NullID, nil
	}
	if err != nil {
		return message.NullID, fmt.Errorf("reading high-water mark: %w", err)
	}
	return id, nil
}

func (b *Badger) SetHighWater(_ context.Context, id message.ID) error {
	value := binary.BigEndian.AppendUint32(nil, uint32(id))
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(highWaterKey), value)
	})
	if err != nil {
		return fmt.Errorf("writing high-water mark: %w", err)
	}
	return nil
}

// Close stops garbage collection and closes the database.
func (b *Badger) Close() error {
	if b.stop != nil {
		close(b.stop)
		<-b.done
		b.stop = nil
	}
	return b.db.Close()
}

func (b *Badger) collectGarbage(interval time.Duration) {
	defer close(b.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.db.RunValueLogGC(gcDiscardRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				b.logger.Warn("badger value log GC failed", "error", err)
			}
		}
	}
}

// badgerLogger adapts slog to badger's logger interface. Badger's
// info chatter is logged at debug level.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
