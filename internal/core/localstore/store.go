// Package localstore is an embedded Badger-backed chunk sink for single-node and CLI use.
package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const chunkPrefix = "chunk\x00"

// ErrBatchTooLarge is returned when a batch does not fit in one Badger transaction.
var ErrBatchTooLarge = errors.New("chunk batch exceeds transaction size")

// Store keeps ChunkRecords under chunk\x00{owner}\x00{document}\x00{createdAt}\x00{position}\x00{id}.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLogger adapts slog.Logger to the badger.Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (bl *badgerLogger) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens a Badger database at dir, creating the directory if needed.
// An empty dir with inMemory set opens a throwaway store.
func Open(dir string, inMemory bool) (*Store, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
		opts = badger.DefaultOptions(dir)
	}

	logger := slog.Default().With("component", "localstore")
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func documentPrefix(ownerID, documentID string) []byte {
	return []byte(chunkPrefix + ownerID + "\x00" + documentID + "\x00")
}

// chunkKey orders a document's chunks by ingestion time, then position. The record id keeps
// rows from separate ingestions of the same document apart.
func chunkKey(rec models.ChunkRecord) []byte {
	return fmt.Appendf(documentPrefix(rec.OwnerID, rec.DocumentID), "%020d\x00%010d\x00%s",
		rec.CreatedAt.UnixNano(), rec.Position, rec.ID)
}

// BulkInsert writes all records in a single transaction; nothing is visible unless all succeed.
// Like the Postgres sink it appends: re-ingesting a document adds a new set of rows, and
// DeleteDocumentChunks gives replace semantics.
func (s *Store) BulkInsert(ctx context.Context, records []models.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	now := time.Now().UTC()
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		value, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode chunk %d: %w", rec.Position, err)
		}
		if err := txn.Set(chunkKey(rec), value); err != nil {
			if errors.Is(err, badger.ErrTxnTooBig) {
				return fmt.Errorf("%w: %d records", ErrBatchTooLarge, len(records))
			}
			return fmt.Errorf("set chunk %d: %w", rec.Position, err)
		}
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("stored chunks", "records", len(records))
	return nil
}

// ListDocumentChunks returns a document's chunks ordered by ingestion time, then position.
func (s *Store) ListDocumentChunks(ctx context.Context, ownerID, documentID string) ([]models.ChunkRecord, error) {
	var out []models.ChunkRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = documentPrefix(ownerID, documentID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec models.ChunkRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %q: %w", bytes.TrimPrefix(it.Item().Key(), []byte(chunkPrefix)), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDocumentChunks removes a document's chunks and reports how many were removed.
func (s *Store) DeleteDocumentChunks(ctx context.Context, ownerID, documentID string) (int, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = documentPrefix(ownerID, documentID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

var _ core.ChunkStore = (*Store)(nil)
