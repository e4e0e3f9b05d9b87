package models

import (
	"strconv"
	"time"
)

// Metadata keys set on every chunk from its source page.
const (
	MetaPageNumber = "pageNumber"
	MetaFileName   = "fileName"
	MetaLoc        = "loc"
)

// Page is the text of one physical page as produced by the extraction collaborator.
type Page struct {
	Text string
	// PageNumber and SourceFileName are read from Meta when the page comes from a request.
	PageNumber     int // 1-based
	SourceFileName string
	// Meta is the extractor's metadata, carried verbatim.
	Meta map[string]any
}

// Metadata returns a fresh copy of the page metadata. PageNumber and SourceFileName are
// added only when they are set and Meta lacks the key.
func (p Page) Metadata() map[string]any {
	m := make(map[string]any, len(p.Meta)+2)
	for k, v := range p.Meta {
		m[k] = v
	}
	if _, ok := m[MetaPageNumber]; !ok && p.PageNumber != 0 {
		m[MetaPageNumber] = p.PageNumber
	}
	if _, ok := m[MetaFileName]; !ok && p.SourceFileName != "" {
		m[MetaFileName] = p.SourceFileName
	}
	return m
}

// Document is the logical grouping for one ingestion call. It is never persisted as such.
type Document struct {
	OwnerID    string
	DocumentID string
	FilePath   string
	Pages      []Page
}

// Chunk is a bounded segment of a single page's text.
type Chunk struct {
	Text     string
	Metadata map[string]any
}

// ChunkRecord is the persisted unit: one chunk paired with its embedding.
type ChunkRecord struct {
	ID         string         `db:"id" json:"id"`
	OwnerID    string         `db:"user_id" json:"owner_id"`
	DocumentID string         `db:"pdf_id" json:"document_id"`
	Position   int            `db:"position" json:"position"`
	ChunkText  string         `db:"chunk_text" json:"chunk_text"`
	Embedding  []float32      `db:"embedding" json:"embedding"` // pgvector column
	Metadata   map[string]any `db:"metadata" json:"metadata"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// IngestionResult is returned by a successful ingestion.
type IngestionResult struct {
	InsertedCount int
}

// RequestPage is one page entry of an ingestion request.
type RequestPage struct {
	PageContent string         `json:"pageContent"`
	Metadata    map[string]any `json:"metadata"`
}

// IngestRequest is the wire shape accepted by the API and the CLI.
//
// userId, pdfId and docs are accepted as aliases of ownerId, documentId and pages.
type IngestRequest struct {
	OwnerID    string        `json:"ownerId"`
	DocumentID string        `json:"documentId"`
	FilePath   string        `json:"filePath"`
	Pages      []RequestPage `json:"pages"`
	// PagesKey points at a JSON array of pages in object storage.
	PagesKey string `json:"pagesKey,omitempty"`

	UserID string        `json:"userId,omitempty"`
	PdfID  string        `json:"pdfId,omitempty"`
	Docs   []RequestPage `json:"docs,omitempty"`
}

// Normalize folds the legacy aliases into the canonical fields.
func (r *IngestRequest) Normalize() {
	if r.OwnerID == "" {
		r.OwnerID = r.UserID
	}
	if r.DocumentID == "" {
		r.DocumentID = r.PdfID
	}
	if len(r.Pages) == 0 {
		r.Pages = r.Docs
	}
	r.UserID, r.PdfID, r.Docs = "", "", nil
}

// ToDocument converts the request into a Document. Page metadata is trusted as-is.
func (r *IngestRequest) ToDocument() Document {
	doc := Document{
		OwnerID:    r.OwnerID,
		DocumentID: r.DocumentID,
		FilePath:   r.FilePath,
		Pages:      make([]Page, 0, len(r.Pages)),
	}
	for _, rp := range r.Pages {
		p := Page{Text: rp.PageContent, Meta: rp.Metadata}
		p.PageNumber = toInt(rp.Metadata[MetaPageNumber])
		p.SourceFileName, _ = rp.Metadata[MetaFileName].(string)
		doc.Pages = append(doc.Pages, p)
	}
	return doc
}

// IngestResponse is the wire shape returned for one ingestion request.
type IngestResponse struct {
	Success       bool   `json:"success"`
	InsertedCount *int   `json:"insertedCount,omitempty"`
	DocumentID    string `json:"documentId,omitempty"`
	FilePath      string `json:"filePath,omitempty"`
	PageCount     *int   `json:"pageCount,omitempty"`
	Error         string `json:"error,omitempty"`
	Stage         string `json:"stage,omitempty"`
	Kind          string `json:"kind,omitempty"`
}

// toInt reads a page number from the shapes produced by encoding/json and Go callers.
// Fractional and unparseable values give 0.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n != float64(int(n)) {
			return 0
		}
		return int(n)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
