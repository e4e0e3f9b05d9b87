package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/markdave123-py/contexta-ingest/internal/api/middlewares"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type fakeIngestor struct {
	got    models.Document
	called bool
	result models.IngestionResult
	err    error
}

func (f *fakeIngestor) Ingest(ctx context.Context, doc models.Document) (models.IngestionResult, error) {
	f.called = true
	f.got = doc
	return f.result, f.err
}

type fakePages struct {
	pages []models.RequestPage
	err   error
	key   string
}

func (f *fakePages) LoadPages(ctx context.Context, key string) ([]models.RequestPage, error) {
	f.key = key
	return f.pages, f.err
}

const validBody = `{
	"ownerId": "user-1",
	"documentId": "doc-1",
	"filePath": "uploads/report.pdf",
	"pages": [
		{"pageContent": "Hello world.", "metadata": {"pageNumber": 1, "fileName": "report.pdf"}},
		{"pageContent": "Second page.", "metadata": {"pageNumber": 2, "fileName": "report.pdf", "source": "ocr"}}
	]
}`

func post(t *testing.T, h *DocumentHandler, body string, ctx context.Context) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/embed", strings.NewReader(body))
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	h.EmbedDocument(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestEmbedDocument_Success(t *testing.T) {
	ing := &fakeIngestor{result: models.IngestionResult{InsertedCount: 7}}
	rec, out := post(t, NewDocumentHandler(ing, nil), validBody, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]any{
		"success":       true,
		"insertedCount": float64(7),
		"documentId":    "doc-1",
		"filePath":      "uploads/report.pdf",
		"pageCount":     float64(2),
	}, out)

	require.Len(t, ing.got.Pages, 2)
	assert.Equal(t, "user-1", ing.got.OwnerID)
	assert.Equal(t, 2, ing.got.Pages[1].PageNumber)
	assert.Equal(t, "report.pdf", ing.got.Pages[1].SourceFileName)
	assert.Equal(t, "ocr", ing.got.Pages[1].Meta["source"])
}

func TestEmbedDocument_LegacyFieldNames(t *testing.T) {
	ing := &fakeIngestor{result: models.IngestionResult{InsertedCount: 1}}
	body := `{"userId":"u","pdfId":"p","filePath":"f.pdf","docs":[{"pageContent":"x","metadata":{"pageNumber":1}}]}`
	rec, _ := post(t, NewDocumentHandler(ing, nil), body, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u", ing.got.OwnerID)
	assert.Equal(t, "p", ing.got.DocumentID)
	assert.Len(t, ing.got.Pages, 1)
}

func TestEmbedDocument_MethodNotAllowed(t *testing.T) {
	h := NewDocumentHandler(&fakeIngestor{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/embed", nil)
	rec := httptest.NewRecorder()
	h.EmbedDocument(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Method not allowed. Use POST."}`, rec.Body.String())
}

func TestEmbedDocument_MalformedBody(t *testing.T) {
	ing := &fakeIngestor{}
	rec, out := post(t, NewDocumentHandler(ing, nil), `{"pages": "nope"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "InputShapeError", out["kind"])
	assert.False(t, ing.called)
}

func TestEmbedDocument_FailureStatuses(t *testing.T) {
	cases := []struct {
		kind   ingestion_engine.ErrorKind
		stage  ingestion_engine.Stage
		status int
	}{
		{ingestion_engine.KindEmptyDocument, ingestion_engine.StageReceived, http.StatusBadRequest},
		{ingestion_engine.KindInputShape, ingestion_engine.StageSplit, http.StatusBadRequest},
		{ingestion_engine.KindSplitFailure, ingestion_engine.StageSplit, http.StatusInternalServerError},
		{ingestion_engine.KindEmbeddingFailure, ingestion_engine.StageEmbedded, http.StatusBadGateway},
		{ingestion_engine.KindPersistence, ingestion_engine.StagePersisted, http.StatusInternalServerError},
		{ingestion_engine.KindTimeout, ingestion_engine.StageEmbedded, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			ing := &fakeIngestor{err: &ingestion_engine.IngestError{
				Kind: tc.kind, Stage: tc.stage, DocumentID: "doc-1", ChunkCount: 3, Err: errors.New("boom"),
			}}
			rec, out := post(t, NewDocumentHandler(ing, nil), validBody, nil)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, string(tc.kind), out["kind"])
			assert.Equal(t, string(tc.stage), out["stage"])
			assert.Contains(t, out["error"], "boom")
			assert.NotContains(t, out, "insertedCount", "no count on failure")
		})
	}
}

func TestEmbedDocument_OwnerBoundToToken(t *testing.T) {
	ing := &fakeIngestor{result: models.IngestionResult{InsertedCount: 1}}
	h := NewDocumentHandler(ing, nil)

	rec, _ := post(t, h, validBody, middleware.WithUserID(context.Background(), "someone-else"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, ing.called)

	body := `{"documentId":"doc-1","filePath":"f.pdf","pages":[{"pageContent":"x"}]}`
	rec, _ = post(t, h, body, middleware.WithUserID(context.Background(), "user-9"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-9", ing.got.OwnerID, "ownerId defaults to the token's user")
}

func TestEmbedDocument_PagesFromObjectStorage(t *testing.T) {
	ing := &fakeIngestor{result: models.IngestionResult{InsertedCount: 2}}
	pages := &fakePages{pages: []models.RequestPage{
		{PageContent: "one", Metadata: map[string]any{"pageNumber": float64(1)}},
		{PageContent: "two", Metadata: map[string]any{"pageNumber": float64(2)}},
	}}
	body := `{"ownerId":"user-1","documentId":"doc-1","filePath":"f.pdf","pagesKey":"user-1/doc-1/pages.json"}`

	rec, out := post(t, NewDocumentHandler(ing, pages), body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1/doc-1/pages.json", pages.key)
	assert.Equal(t, float64(2), out["pageCount"])
	assert.Len(t, ing.got.Pages, 2)
}

func TestEmbedDocument_PagesKeyErrors(t *testing.T) {
	body := `{"ownerId":"user-1","documentId":"doc-1","pagesKey":"k"}`

	rec, _ := post(t, NewDocumentHandler(&fakeIngestor{}, nil), body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out := post(t, NewDocumentHandler(&fakeIngestor{}, &fakePages{err: errors.New("NoSuchKey")}), body, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "ObjectStorageError", out["kind"])
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
