package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	middleware "github.com/markdave123-py/contexta-ingest/internal/api/middlewares"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// MaxRequestBytes bounds an /api/embed request body.
const MaxRequestBytes = 64 << 20

// KindObjectStorage reports a page set that could not be read from object storage.
const KindObjectStorage = "ObjectStorageError"

// PageSource loads a page set stored out of band under key.
type PageSource interface {
	LoadPages(ctx context.Context, key string) ([]models.RequestPage, error)
}

type DocumentHandler struct {
	ingestor ingestion_engine.Ingestor
	pages    PageSource
}

// NewDocumentHandler wires the ingestion endpoint. pages may be nil when object storage is not configured.
func NewDocumentHandler(ing ingestion_engine.Ingestor, pages PageSource) *DocumentHandler {
	return &DocumentHandler{ingestor: ing, pages: pages}
}

// EmbedDocument ingests one document's extracted pages and reports how many chunks were stored.
func (h *DocumentHandler) EmbedDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, models.IngestResponse{Error: "Method not allowed. Use POST."})
		return
	}

	var req models.IngestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.IngestResponse{
			Error: fmt.Sprintf("invalid request body: %v", err),
			Stage: string(ingestion_engine.StageReceived),
			Kind:  string(ingestion_engine.KindInputShape),
		})
		return
	}
	req.Normalize()

	if userID, ok := middleware.UserIDFromContext(r.Context()); ok {
		if req.OwnerID == "" {
			req.OwnerID = userID
		}
		if req.OwnerID != userID {
			writeJSON(w, http.StatusForbidden, models.IngestResponse{
				DocumentID: req.DocumentID,
				Error:      "ownerId does not match the authenticated user",
			})
			return
		}
	}

	if len(req.Pages) == 0 && req.PagesKey != "" {
		if h.pages == nil {
			writeJSON(w, http.StatusBadRequest, models.IngestResponse{
				DocumentID: req.DocumentID,
				Error:      "pagesKey given but object storage is not configured",
				Stage:      string(ingestion_engine.StageReceived),
				Kind:       string(ingestion_engine.KindInputShape),
			})
			return
		}
		pages, err := h.pages.LoadPages(r.Context(), req.PagesKey)
		if err != nil {
			log.Printf("load pages %q for document %s failed: %v", req.PagesKey, req.DocumentID, err)
			writeJSON(w, http.StatusBadGateway, models.IngestResponse{
				DocumentID: req.DocumentID,
				Error:      fmt.Sprintf("could not load pages: %v", err),
				Stage:      string(ingestion_engine.StageReceived),
				Kind:       KindObjectStorage,
			})
			return
		}
		req.Pages = pages
	}

	doc := req.ToDocument()
	res, err := h.ingestor.Ingest(r.Context(), doc)
	writeJSON(w, statusFor(err), ingestion_engine.NewIngestResponse(doc, res, err))
}

// statusFor maps an ingestion outcome to its HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ingestion_engine.ErrInputShape), errors.Is(err, ingestion_engine.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, ingestion_engine.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ingestion_engine.ErrEmbeddingFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
