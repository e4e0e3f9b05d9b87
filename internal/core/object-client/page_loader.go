package objectclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// MaxPageSetBytes bounds how much of a page-set object is read.
const MaxPageSetBytes = 64 << 20

var ErrPageSetTooLarge = errors.New("page set exceeds size limit")

// PageLoader fetches a JSON page set, either a bare array of pages or {"pages": [...]}.
type PageLoader struct {
	client core.ObjectClient
	bucket string
}

func NewPageLoader(client core.ObjectClient, bucket string) *PageLoader {
	return &PageLoader{client: client, bucket: bucket}
}

// LoadPages reads and decodes the page set stored under key.
func (l *PageLoader) LoadPages(ctx context.Context, key string) ([]models.RequestPage, error) {
	rc, err := l.client.GetObjectReader(ctx, l.bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxPageSetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read page set %q: %w", key, err)
	}
	if len(data) > MaxPageSetBytes {
		return nil, fmt.Errorf("%w: %q", ErrPageSetTooLarge, key)
	}
	return DecodePages(data)
}

// DecodePages accepts `[...]` and `{"pages": [...]}`.
func DecodePages(data []byte) ([]models.RequestPage, error) {
	var pages []models.RequestPage
	if err := json.Unmarshal(data, &pages); err == nil {
		return pages, nil
	}
	var wrapped struct {
		Pages []models.RequestPage `json:"pages"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode page set: %w", err)
	}
	return wrapped.Pages, nil
}
