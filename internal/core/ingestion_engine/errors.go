package ingestion_engine

import (
	"errors"
	"fmt"
)

// ErrorKind names the failure classes reported to ingestion callers.
type ErrorKind string

const (
	KindInputShape       ErrorKind = "InputShapeError"
	KindEmptyDocument    ErrorKind = "EmptyDocumentError"
	KindSplitFailure     ErrorKind = "SplitFailureError"
	KindEmbeddingFailure ErrorKind = "EmbeddingFailureError"
	KindPersistence      ErrorKind = "PersistenceError"
	KindTimeout          ErrorKind = "TimeoutError"
)

// Stage is a step of the RECEIVED -> SPLIT -> EMBEDDED -> PERSISTED pipeline.
type Stage string

const (
	StageReceived  Stage = "received"
	StageSplit     Stage = "split"
	StageEmbedded  Stage = "embedded"
	StagePersisted Stage = "persisted"
	StageFailed    Stage = "failed"
)

// IngestError carries what is needed to diagnose a failed ingestion without re-running it.
// Stage is the stage that was being attempted when the failure happened.
type IngestError struct {
	Kind       ErrorKind
	Stage      Stage
	DocumentID string
	ChunkCount int
	Err        error
}

func (e *IngestError) Error() string {
	msg := fmt.Sprintf("ingest %q: %s during %s (chunks=%d)", e.DocumentID, e.Kind, e.Stage, e.ChunkCount)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IngestError) Unwrap() error { return e.Err }

// Is matches the kind sentinels so errors.Is(err, ErrPersistence) works on any IngestError
// of that kind.
func (e *IngestError) Is(target error) bool {
	t, ok := target.(*IngestError)
	if !ok || t.Err != nil || t.DocumentID != "" {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInputShape       = &IngestError{Kind: KindInputShape}
	ErrEmptyDocument    = &IngestError{Kind: KindEmptyDocument}
	ErrSplitFailure     = &IngestError{Kind: KindSplitFailure}
	ErrEmbeddingFailure = &IngestError{Kind: KindEmbeddingFailure}
	ErrPersistence      = &IngestError{Kind: KindPersistence}
	ErrTimeout          = &IngestError{Kind: KindTimeout}
)

// AsIngestError extracts the IngestError from err.
func AsIngestError(err error) (*IngestError, bool) {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
