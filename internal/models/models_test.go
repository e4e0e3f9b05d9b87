package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRequest(t *testing.T, body string) IngestRequest {
	t.Helper()
	var req IngestRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	req.Normalize()
	return req
}

func TestToDocument_MetadataIsVerbatim(t *testing.T) {
	req := decodeRequest(t, `{"ownerId":"u","documentId":"d","pages":[
		{"pageContent":"a","metadata":{"pageNumber":"3"}},
		{"pageContent":"b","metadata":{"pageNumber":2.5,"fileName":"r.pdf"}},
		{"pageContent":"c","metadata":{"loc":{"pageNumber":2}}},
		{"pageContent":"d"}
	]}`)
	doc := req.ToDocument()
	require.Len(t, doc.Pages, 4)

	assert.Equal(t, map[string]any{"pageNumber": "3"}, doc.Pages[0].Metadata())
	assert.Equal(t, 3, doc.Pages[0].PageNumber)

	assert.Equal(t, map[string]any{"pageNumber": 2.5, "fileName": "r.pdf"}, doc.Pages[1].Metadata())
	assert.Equal(t, 0, doc.Pages[1].PageNumber)
	assert.Equal(t, "r.pdf", doc.Pages[1].SourceFileName)

	assert.Equal(t, map[string]any{"loc": map[string]any{"pageNumber": float64(2)}}, doc.Pages[2].Metadata())

	assert.Empty(t, doc.Pages[3].Metadata())
}

func TestPage_MetadataFromTypedFields(t *testing.T) {
	p := Page{Text: "x", PageNumber: 4, SourceFileName: "f.pdf"}
	assert.Equal(t, map[string]any{MetaPageNumber: 4, MetaFileName: "f.pdf"}, p.Metadata())

	p.Meta = map[string]any{MetaPageNumber: float64(9)}
	assert.Equal(t, float64(9), p.Metadata()[MetaPageNumber], "Meta wins over typed fields")

	m := p.Metadata()
	m["extra"] = true
	_, leaked := p.Meta["extra"]
	assert.False(t, leaked)
}

func TestNormalize_LegacyAliases(t *testing.T) {
	req := decodeRequest(t, `{"userId":"u","pdfId":"p","docs":[{"pageContent":"x"}]}`)
	assert.Equal(t, "u", req.OwnerID)
	assert.Equal(t, "p", req.DocumentID)
	assert.Len(t, req.Pages, 1)
	assert.Empty(t, req.UserID)
}
