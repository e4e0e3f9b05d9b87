package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Ingestor turns one document's pages into persisted chunk records.
type Ingestor interface {
	Ingest(ctx context.Context, doc models.Document) (models.IngestionResult, error)
}

var _ Ingestor = (*DocumentIngestor)(nil)
