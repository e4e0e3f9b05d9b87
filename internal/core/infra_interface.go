package core

import (
	"context"
	"io"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// ChunkSink is the persistence boundary of the ingestion pipeline.
// BulkInsert writes every record or reports an error; a failed call leaves no rows behind.
type ChunkSink interface {
	BulkInsert(ctx context.Context, records []models.ChunkRecord) error
}

// ChunkStore is a sink that can also read back and clean up a document's chunks.
// It abstracts Postgres/pgvector and Badger so higher layers never depend on a specific store.
type ChunkStore interface {
	ChunkSink

	ListDocumentChunks(ctx context.Context, ownerID, documentID string) ([]models.ChunkRecord, error)
	DeleteDocumentChunks(ctx context.Context, ownerID, documentID string) (int, error)

	Close() error
}

// ObjectClient defines read access to S3 or any object storage.
type ObjectClient interface {
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
