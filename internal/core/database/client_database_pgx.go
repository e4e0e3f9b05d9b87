package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := BuildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	// Ensure bootstrap once
	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// BuildDSN appends verify-ca SSL params to databaseURL when a root certificate is configured.
func BuildDSN(databaseURL, sslCertPath string) (string, error) {
	if databaseURL == "" {
		return "", errors.New("DATABASE_URL is empty")
	}
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// BulkInsert writes all records in one transaction. Any failing row rolls back the batch.
func (c *DatabaseClient) BulkInsert(ctx context.Context, records []models.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	const q = `
		INSERT INTO pdf_embeddings
			(id, user_id, pdf_id, position, chunk_text, embedding, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode metadata of chunk %d: %w", rec.Position, err)
		}
		if rec.Metadata == nil {
			meta = []byte("{}")
		}

		if _, err := stmt.ExecContext(ctx,
			id, rec.OwnerID, rec.DocumentID, rec.Position, rec.ChunkText,
			pgvector.NewVector(rec.Embedding), string(meta), createdAt,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d: %w", rec.Position, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListDocumentChunks returns a document's chunks ordered by ingestion time, then position.
func (c *DatabaseClient) ListDocumentChunks(ctx context.Context, ownerID, documentID string) ([]models.ChunkRecord, error) {
	const q = `
		SELECT id, user_id, pdf_id, position, chunk_text, embedding, metadata, created_at
		FROM pdf_embeddings
		WHERE user_id = $1 AND pdf_id = $2
		ORDER BY created_at ASC, position ASC
	`
	rows, err := c.db.QueryContext(ctx, q, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChunkRecord
	for rows.Next() {
		var (
			rec  models.ChunkRecord
			emb  pgvector.Vector
			meta []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.OwnerID, &rec.DocumentID, &rec.Position, &rec.ChunkText, &emb, &meta, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Embedding = emb.Slice()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of chunk %d: %w", rec.Position, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountDocumentChunks reports how many chunks are stored for a document.
func (c *DatabaseClient) CountDocumentChunks(ctx context.Context, ownerID, documentID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM pdf_embeddings WHERE user_id = $1 AND pdf_id = $2`,
		ownerID, documentID).Scan(&n)
	return n, err
}

// DeleteDocumentChunks removes a document's chunks so a caller can re-ingest it.
func (c *DatabaseClient) DeleteDocumentChunks(ctx context.Context, ownerID, documentID string) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM pdf_embeddings WHERE user_id = $1 AND pdf_id = $2`, ownerID, documentID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ core.ChunkStore = (*DatabaseClient)(nil)
