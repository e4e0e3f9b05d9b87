package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/splitter"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var (
	ErrSinkRequired     = errors.New("chunk sink required")
	ErrEmbedderRequired = errors.New("embedding provider required")
)

// ChunkSplitter cuts per-page texts into chunks, page by page.
type ChunkSplitter interface {
	Split(texts []string, metadatas []map[string]any) ([]models.Chunk, error)
}

// DocumentIngestor runs the split -> embed -> persist pipeline for one document at a time.
// It holds no per-call state and is safe for concurrent use.
//
// sink:      bulk persistence for chunk records (Postgres or Badger).
// embedder:  batched, retrying embedding provider.
// splitter:  per-page recursive splitter.
// timeout:   bound on one whole ingestion (0 = caller's context only).
type DocumentIngestor struct {
	sink     core.ChunkSink
	embedder core.EmbeddingProvider
	splitter ChunkSplitter
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDocumentIngestor constructs the ingestor. A nil cfg uses DefaultIngestConfig.
func NewDocumentIngestor(sink core.ChunkSink, emb core.EmbeddingProvider, cfg *IngestConfig) (*DocumentIngestor, error) {
	if sink == nil {
		return nil, ErrSinkRequired
	}
	if emb == nil {
		return nil, ErrEmbedderRequired
	}
	if cfg == nil {
		cfg = DefaultIngestConfig()
	}

	sp, err := splitter.NewRecursiveSplitter(
		splitter.WithChunkSize(cfg.ChunkSize),
		splitter.WithChunkOverlap(cfg.ChunkOverlap),
	)
	if err != nil {
		return nil, err
	}

	return &DocumentIngestor{
		sink:     sink,
		embedder: emb,
		splitter: sp,
		timeout:  cfg.Timeout,
		logger:   slog.Default().With("component", "ingestor"),
	}, nil
}

// WithSplitter replaces the splitter. It returns the receiver for chaining.
func (i *DocumentIngestor) WithSplitter(s ChunkSplitter) *DocumentIngestor {
	i.splitter = s
	return i
}

// Ingest splits, embeds and persists doc. Either every chunk is handed to the sink in one
// bulk call and InsertedCount is returned, or an *IngestError is returned and no count is.
func (i *DocumentIngestor) Ingest(ctx context.Context, doc models.Document) (models.IngestionResult, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	log := i.logger.With("documentId", doc.DocumentID, "ownerId", doc.OwnerID)
	log.Debug("ingestion received", "stage", StageReceived, "pages", len(doc.Pages))

	fail := func(kind ErrorKind, stage Stage, chunks int, err error) (models.IngestionResult, error) {
		if ctx.Err() != nil && kind != KindInputShape && kind != KindEmptyDocument && kind != KindTimeout {
			kind = KindTimeout
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		ie := &IngestError{Kind: kind, Stage: stage, DocumentID: doc.DocumentID, ChunkCount: chunks, Err: err}
		log.Error("ingestion failed", "state", StageFailed, "stage", stage, "kind", kind, "chunks", chunks, "err", err)
		return models.IngestionResult{}, ie
	}

	// RECEIVED
	if doc.OwnerID == "" || doc.DocumentID == "" {
		return fail(KindInputShape, StageReceived, 0, errors.New("ownerId and documentId are required"))
	}
	if len(doc.Pages) == 0 {
		return fail(KindEmptyDocument, StageReceived, 0, errors.New("document has no pages"))
	}
	if err := ctx.Err(); err != nil {
		return fail(KindTimeout, StageReceived, 0, err)
	}

	// SPLIT
	texts := make([]string, len(doc.Pages))
	metas := make([]map[string]any, len(doc.Pages))
	for idx, p := range doc.Pages {
		texts[idx] = p.Text
		metas[idx] = p.Metadata()
	}
	chunks, err := i.splitter.Split(texts, metas)
	if err != nil {
		if errors.Is(err, splitter.ErrInputShape) {
			return fail(KindInputShape, StageSplit, 0, err)
		}
		return fail(KindSplitFailure, StageSplit, 0, err)
	}
	if len(chunks) == 0 {
		return fail(KindSplitFailure, StageSplit, 0, fmt.Errorf("%d pages produced no chunks", len(doc.Pages)))
	}
	log.Debug("document split", "stage", StageSplit, "chunks", len(chunks))

	// EMBEDDED
	chunkTexts := make([]string, len(chunks))
	for idx := range chunks {
		chunkTexts[idx] = chunks[idx].Text
	}
	vecs, err := i.embedder.EmbedTexts(ctx, chunkTexts)
	if err != nil {
		return fail(KindEmbeddingFailure, StageEmbedded, len(chunks), err)
	}
	if len(vecs) != len(chunks) {
		return fail(KindEmbeddingFailure, StageEmbedded, len(chunks),
			fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(chunks)))
	}
	log.Debug("chunks embedded", "stage", StageEmbedded, "chunks", len(chunks))

	// PERSISTED
	now := time.Now().UTC()
	records := make([]models.ChunkRecord, len(chunks))
	for k := range chunks {
		records[k] = models.ChunkRecord{
			ID:         uuid.NewString(),
			OwnerID:    doc.OwnerID,
			DocumentID: doc.DocumentID,
			Position:   k,
			ChunkText:  chunks[k].Text,
			Embedding:  vecs[k],
			Metadata:   chunks[k].Metadata,
			CreatedAt:  now,
		}
	}
	if err := i.sink.BulkInsert(ctx, records); err != nil {
		return fail(KindPersistence, StagePersisted, len(records), err)
	}

	log.Info("ingestion complete", "stage", StagePersisted, "inserted", len(records), "elapsed", time.Since(start))
	return models.IngestionResult{InsertedCount: len(records)}, nil
}
