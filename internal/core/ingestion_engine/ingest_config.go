package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core/splitter"
)

// IngestConfig tunes the pipeline.
//
// ChunkSize:     max runes per chunk (1000).
// ChunkOverlap:  runes repeated between consecutive chunks of one page (200).
// Timeout:       bound on one whole ingestion; 0 leaves it to the caller's context.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Timeout      time.Duration
}

// DefaultIngestConfig returns the 1000/200 splitter settings with no timeout.
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		ChunkSize:    splitter.DefaultChunkSize,
		ChunkOverlap: splitter.DefaultChunkOverlap,
	}
}
