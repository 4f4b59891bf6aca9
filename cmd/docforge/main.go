package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mlindstrom/docforge/internal/chunker"
	"github.com/mlindstrom/docforge/internal/config"
	"github.com/mlindstrom/docforge/internal/corpus"
	"github.com/mlindstrom/docforge/internal/keyword"
	"github.com/mlindstrom/docforge/internal/pdfsource"
	"github.com/mlindstrom/docforge/internal/pipeline"
)

func main() {
	app := &cli.App{
		Name:  "docforge",
		Usage: "Extract, chunk and index PDF and Markdown documents",
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
				Usage:     "Ingest PDF or Markdown files into the corpus and rebuild the index",
				ArgsUsage: "FILE...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-index",
						Usage: "Skip the index rebuild after ingestion",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Query the keyword index",
				ArgsUsage: "QUERY",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top",
						Aliases: []string{"k"},
						Usage:   "Maximum number of results",
						Value:   10,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print results as JSON",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show corpus and index statistics",
				Action: statsCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func ingestCommand(c *cli.Context) error {
	ctx := context.Background()

	if c.NArg() == 0 {
		return fmt.Errorf("at least one input file is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := corpus.Open(cfg.DataDir, false)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer store.Close()

	handle := keyword.NewHandle()
	opts := []pipeline.Option{
		pipeline.WithIndexParams(cfg.IndexParams()),
		pipeline.WithTokenizer(keyword.NewTokenizer(nil, cfg.MinTokenLength)),
	}
	if cfg.PoolSize > 0 {
		opts = append(opts, pipeline.WithPoolSize(cfg.PoolSize))
	}
	pipe, err := pipeline.New(store, handle, cfg.ExtractorConfig(), cfg.ChunkerConfig(), opts...)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	defer pipe.Release()

	var pdfDocs []pipeline.Document
	for _, path := range c.Args().Slice() {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf":
			pages, err := pdfsource.Load(path)
			if err != nil {
				return err
			}
			pdfDocs = append(pdfDocs, pipeline.Document{Name: filepath.Base(path), Pages: pages})
		case ".md", ".markdown":
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if _, err := pipe.IngestMarkdown(ctx, filepath.Base(path), src); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported file type: %s", path)
		}
	}
	if len(pdfDocs) > 0 {
		if err := pipe.IngestBatch(ctx, pdfDocs); err != nil {
			return err
		}
	}

	if c.Bool("no-index") {
		return nil
	}

	idx, err := pipe.Rebuild(ctx)
	if err != nil {
		return err
	}
	if err := idx.Save(cfg.IndexDir); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Indexed %d chunks to %s\n", idx.Size(), cfg.IndexDir)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a query is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	idx, err := keyword.Load(cfg.IndexDir)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	results := idx.Search(query, c.Int("top"))
	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, r := range results {
		path := strings.Join(r.Meta.HeadingPath, " > ")
		if path == "" {
			path = "(no heading)"
		}
		fmt.Printf("%2d. %-40s %8.4f  %s\n", i+1, r.ChunkID, r.Score, path)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := corpus.Open(cfg.DataDir, false)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer store.Close()

	docIDs, err := store.ListDocuments()
	if err != nil {
		return err
	}

	fmt.Printf("documents: %d\n", len(docIDs))
	for _, id := range docIDs {
		forest, err := store.GetForest(id)
		if err != nil {
			return err
		}
		stats := chunker.Stats(forest, cfg.ChunkerConfig())
		fmt.Printf("  %s: %d parents, %d leaves, avg leaf %.1f, %d oversized\n",
			id, stats.Parents, stats.Leaves, stats.AvgLeafSize, stats.Oversized)
	}

	if idx, err := keyword.Load(cfg.IndexDir); err == nil {
		fmt.Printf("index: %d chunks\n", idx.Size())
	} else {
		fmt.Printf("index: not available (%v)\n", err)
	}
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

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
