package ingestion_engine

import "github.com/markdave123-py/contexta-ingest/internal/models"

// NewIngestResponse renders the outcome of Ingest in the external response shape.
func NewIngestResponse(doc models.Document, res models.IngestionResult, err error) models.IngestResponse {
	if err != nil {
		resp := models.IngestResponse{DocumentID: doc.DocumentID, FilePath: doc.FilePath, Error: err.Error()}
		if ie, ok := AsIngestError(err); ok {
			resp.Stage, resp.Kind = string(ie.Stage), string(ie.Kind)
		}
		return resp
	}
	inserted, pageCount := res.InsertedCount, len(doc.Pages)
	return models.IngestResponse{
		Success:       true,
		InsertedCount: &inserted,
		DocumentID:    doc.DocumentID,
		FilePath:      doc.FilePath,
		PageCount:     &pageCount,
	}
}
