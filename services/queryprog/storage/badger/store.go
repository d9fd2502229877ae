// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger persists program definitions as immutable versioned
// records in an embedded BadgerDB.
//
// Records are append-only: saving under an existing id always writes a
// new version and never rewrites an old one, so a replay of version N is
// reproducible regardless of later saves.
package badger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record exists for an id (or an
	// id/version pair).
	ErrNotFound = errors.New("program record not found")

	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("program store is closed")
)

const keyPrefix = "program/"

// Record is one immutable version of a saved program definition.
type Record struct {
	// ID identifies the program across versions.
	ID string `json:"id"`

	// Version starts at 1 and increments on every save of the same ID.
	Version int `json:"version"`

	// Name is a human-readable label.
	Name string `json:"name,omitempty"`

	// DefinitionType discriminates the Definition encoding
	// ("cypher_script" or "program_json").
	DefinitionType string `json:"definition_type"`

	// Definition is the persisted program in its source form.
	Definition string `json:"definition"`

	// CreatedAtMilli is the save timestamp (Unix milliseconds).
	CreatedAtMilli int64 `json:"created_at_milli"`
}

// Config holds configuration for the program store.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory
	// is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for
	// testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger for database operations. If nil, the database's internal
	// logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults (durable writes).
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store is a versioned program-record store backed by BadgerDB.
//
// Thread Safety: safe for concurrent use; versioning of concurrent saves
// to the same id is serialized through Badger transactions.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open creates and opens a store with the given configuration.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open program store: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Put saves a definition as a new immutable version.
//
// Description:
//
//	When rec.ID is empty a fresh id is generated. The stored version is
//	always lastVersion+1 regardless of rec.Version; existing versions
//	are never touched.
//
// Outputs:
//
//	Record - The stored record with ID, Version and CreatedAtMilli set.
func (s *Store) Put(rec Record) (Record, error) {
	if s.db == nil {
		return Record{}, ErrClosed
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAtMilli = time.Now().UnixMilli()

	err := s.db.Update(func(txn *badger.Txn) error {
		latest, err := latestVersion(txn, rec.ID)
		if err != nil {
			return err
		}
		rec.Version = latest + 1

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		return txn.Set([]byte(versionKey(rec.ID, rec.Version)), data)
	})
	if err != nil {
		return Record{}, err
	}

	s.logger.Debug("program record saved", "id", rec.ID, "version", rec.Version)
	return rec, nil
}

// Get returns the latest version of a program.
func (s *Store) Get(id string) (Record, error) {
	if s.db == nil {
		return Record{}, ErrClosed
	}
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		latest, err := latestVersion(txn, id)
		if err != nil {
			return err
		}
		if latest == 0 {
			return ErrNotFound
		}
		return loadVersion(txn, id, latest, &rec)
	})
	return rec, err
}

// GetVersion returns one specific version of a program.
func (s *Store) GetVersion(id string, version int) (Record, error) {
	if s.db == nil {
		return Record{}, ErrClosed
	}
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		return loadVersion(txn, id, version, &rec)
	})
	return rec, err
}

// List returns the latest version of every stored program, sorted by id.
func (s *Store) List() ([]Record, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	latest := make(map[string]Record)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if cur, ok := latest[rec.ID]; !ok || rec.Version > cur.Version {
				latest[rec.ID] = rec
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(latest))
	for _, rec := range latest {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes every version of a program. This is the one mutation of
// existing data the store allows; it exists for operator cleanup, not for
// program editing.
func (s *Store) Delete(id string) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		prefix := []byte(keyPrefix + id + "/")
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		if len(keys) == 0 {
			return ErrNotFound
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func versionKey(id string, version int) string {
	return fmt.Sprintf("%s%s/v%06d", keyPrefix, id, version)
}

// latestVersion scans the id's version keys and returns the highest, or 0
// when none exist.
func latestVersion(txn *badger.Txn, id string) (int, error) {
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
	defer it.Close()
	prefix := []byte(keyPrefix + id + "/v")
	highest := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := string(it.Item().Key())
		var v int
		if _, err := fmt.Sscanf(strings.TrimPrefix(key, string(prefix)), "%d", &v); err == nil && v > highest {
			highest = v
		}
	}
	return highest, nil
}

func loadVersion(txn *badger.Txn, id string, version int, rec *Record) error {
	item, err := txn.Get([]byte(versionKey(id, version)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, rec)
	})
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
