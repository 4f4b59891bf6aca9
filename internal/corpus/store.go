// Package corpus persists chunk forests across ingestions. A document's
// forest is immutable once built and replaced wholesale on re-ingestion.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/mlindstrom/docforge/internal/doc"
)

const forestPrefix = "forest:"

func forestKey(docID string) []byte {
	return []byte(forestPrefix + docID)
}

// forestRecord is the persisted form of a forest; the child lookup table is
// rebuilt on load.
type forestRecord struct {
	DocID    string      `json:"doc_id"`
	Parents  []doc.Chunk `json:"parents"`
	Leaves   []doc.Chunk `json:"leaves"`
	Warnings []string    `json:"warnings,omitempty"`
}

// Store wraps a BadgerDB instance holding chunk forests keyed by doc id.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to the badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens (or creates) the corpus store at path. With inMemory set, no
// files are written; used by tests.
func Open(path string, inMemory bool) (*Store, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &badgerLoggerAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, logger: slog.Default()}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutForest stores a document's forest, replacing any previous forest for
// the same doc id wholesale.
func (s *Store) PutForest(f *doc.Forest) error {
	rec := forestRecord{
		DocID:    f.DocID,
		Parents:  f.Parents,
		Leaves:   f.Leaves,
		Warnings: f.Warnings,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode forest %s: %w", f.DocID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(forestKey(f.DocID), data)
	})
}

// GetForest loads a document's forest, rebuilding the child lookup table.
func (s *Store) GetForest(docID string) (*doc.Forest, error) {
	var rec forestRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(forestKey(docID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
		}
		return nil, err
	}
	return doc.NewForest(rec.DocID, rec.Parents, rec.Leaves, rec.Warnings), nil
}

// DeleteForest removes a document's forest. Deleting an unknown doc id is
// not an error.
func (s *Store) DeleteForest(docID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(forestKey(docID))
	})
}

// ListDocuments returns all stored doc ids in lexical order.
func (s *Store) ListDocuments() ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(forestPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, key[len(forestPrefix):])
		}
		return nil
	})
	return ids, err
}

// AllLeaves returns every stored leaf chunk in lexical doc-id order, then
// chunk creation order within a document. This is the insertion order fed to
// index rebuilds, deterministic regardless of ingestion concurrency.
func (s *Store) AllLeaves() ([]doc.Chunk, error) {
	var leaves []doc.Chunk
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.IteratorOptions{Prefix: []byte(forestPrefix), PrefetchValues: true, PrefetchSize: 16}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec forestRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			leaves = append(leaves, rec.Leaves...)
		}
		return nil
	})
	return leaves, err
}
