package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/panjf2000/ants/v2"
	"github.com/urfave/cli/v2"

	"github.com/markdave123-py/contexta-ingest/internal/api/handlers"
	"github.com/markdave123-py/contexta-ingest/internal/app"
	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
	"github.com/markdave123-py/contexta-ingest/internal/core/splitter"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func main() {
	cliApp := &cli.App{
		Name:  "contexta-ingest",
		Usage: "Split, embed and store extracted PDF pages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest request files (local paths or s3://bucket/key)",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: append(storeFlags(),
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Usage:   "Documents ingested concurrently",
						Value:   4,
					},
				),
			},
			{
				Name:      "split",
				Usage:     "Print the chunks a request file would produce",
				ArgsUsage: "FILE",
				Action:    splitCommand,
			},
			{
				Name:   "delete",
				Usage:  "Delete the stored chunks of one document",
				Action: deleteCommand,
				Flags: append(storeFlags(),
					&cli.StringFlag{Name: "owner", Usage: "Owner id", Required: true},
					&cli.StringFlag{Name: "document", Usage: "Document id", Required: true},
				),
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "sink",
			Usage: "Chunk sink: postgres or badger (default $SINK)",
		},
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to BadgerDB database directory (default $BADGER_DIR)",
		},
	}
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(c *cli.Context) *config.Config {
	cfg := config.LoadConfig()
	if s := c.String("sink"); s != "" {
		cfg.Sink = strings.ToLower(s)
	}
	if d := c.String("db"); d != "" {
		cfg.BadgerDir = d
	}
	return cfg
}

func ingestCommand(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return cli.Exit("at least one request file is required", 2)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig(c)
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder, closers, err := app.NewEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, cl := range closers {
			cl.Close()
		}
	}()

	ing, err := ingestion_engine.NewDocumentIngestor(store, embedder, app.IngestConfig(cfg))
	if err != nil {
		return err
	}

	var pages handlers.PageSource
	if cfg.AwsAccessKey != "" && cfg.BucketName != "" {
		objClient, err := objectclient.NewS3Client(ctx, cfg)
		if err != nil {
			return err
		}
		pages = objectclient.NewPageLoader(objClient, objClient.Bucket())
	}

	pool, err := ants.NewPool(c.Int("workers"))
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	responses := make([]models.IngestResponse, len(files))
	var wg sync.WaitGroup
	for idx, file := range files {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			responses[idx] = ingestFile(ctx, cfg, ing, pages, file)
		})
		if err != nil {
			wg.Done()
			responses[idx] = models.IngestResponse{FilePath: file, Error: fmt.Sprintf("submit: %v", err)}
		}
	}
	wg.Wait()

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, resp := range responses {
		if !resp.Success {
			failed++
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	slog.Info("ingestion finished", "files", len(files), "failed", failed)
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d documents failed", failed, len(files)), 1)
	}
	return nil
}

// ingestFile ingests one request file. A request that names a pagesKey instead of inline pages
// reads its page set through pages, as the HTTP API does.
func ingestFile(ctx context.Context, cfg *config.Config, ing ingestion_engine.Ingestor, pages handlers.PageSource, file string) models.IngestResponse {
	req, err := readRequest(ctx, cfg, file)
	if err != nil {
		return models.IngestResponse{
			FilePath: file,
			Error:    err.Error(),
			Stage:    string(ingestion_engine.StageReceived),
			Kind:     string(ingestion_engine.KindInputShape),
		}
	}

	if len(req.Pages) == 0 && req.PagesKey != "" {
		if pages == nil {
			return models.IngestResponse{
				DocumentID: req.DocumentID,
				FilePath:   file,
				Error:      "pagesKey given but object storage is not configured",
				Stage:      string(ingestion_engine.StageReceived),
				Kind:       string(ingestion_engine.KindInputShape),
			}
		}
		loaded, err := pages.LoadPages(ctx, req.PagesKey)
		if err != nil {
			return models.IngestResponse{
				DocumentID: req.DocumentID,
				FilePath:   file,
				Error:      fmt.Sprintf("could not load pages: %v", err),
				Stage:      string(ingestion_engine.StageReceived),
				Kind:       handlers.KindObjectStorage,
			}
		}
		req.Pages = loaded
	}

	doc := req.ToDocument()
	res, err := ing.Ingest(ctx, doc)
	return ingestion_engine.NewIngestResponse(doc, res, err)
}

// readRequest loads an ingestion request from a local file or an s3://bucket/key URL.
func readRequest(ctx context.Context, cfg *config.Config, file string) (*models.IngestRequest, error) {
	var (
		data []byte
		err  error
	)
	if rest, ok := strings.CutPrefix(file, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid s3 url %q", file)
		}
		s3cfg := *cfg
		s3cfg.BucketName = bucket
		client, cerr := objectclient.NewS3Client(ctx, &s3cfg)
		if cerr != nil {
			return nil, cerr
		}
		data, err = client.GetFile(ctx, bucket, key)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, err
	}

	var req models.IngestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}
	req.Normalize()
	return &req, nil
}

func splitCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one request file is required", 2)
	}
	cfg := config.LoadConfig()
	req, err := readRequest(c.Context, cfg, c.Args().First())
	if err != nil {
		return err
	}

	sp, err := splitter.NewRecursiveSplitter(
		splitter.WithChunkSize(cfg.ChunkSize),
		splitter.WithChunkOverlap(cfg.ChunkOverlap),
	)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	doc := req.ToDocument()
	texts := make([]string, len(doc.Pages))
	metas := make([]map[string]any, len(doc.Pages))
	for i, p := range doc.Pages {
		texts[i], metas[i] = p.Text, p.Metadata()
	}
	chunks, err := sp.Split(texts, metas)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(chunks)
}

func deleteCommand(c *cli.Context) error {
	cfg := loadConfig(c)
	store, err := app.OpenStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.DeleteDocumentChunks(c.Context, c.String("owner"), c.String("document"))
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d chunks\n", n)
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
