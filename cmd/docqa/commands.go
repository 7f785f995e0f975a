package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/docqa"
	"github.com/poiesic/docqa/ai/openai"
	"github.com/poiesic/docqa/config"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/imagestore"
	"github.com/poiesic/docqa/ingestion"
	"github.com/poiesic/docqa/reembed"
	"github.com/poiesic/docqa/server"
	"github.com/poiesic/docqa/storage"
	"github.com/poiesic/docqa/storage/memory"
	"github.com/urfave/cli/v2"

	_ "github.com/poiesic/docqa/storage/badger"
	_ "github.com/poiesic/docqa/storage/sqlite"
)

var errQuestionRequired = errors.New("a question is required")

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("config"))
}

func openEngine(c *cli.Context) (*docqa.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return docqa.NewEngine(cfg, docqa.WithAPIKey(cfg.APIKey()))
}

func question(c *cli.Context) (string, error) {
	q := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if q == "" {
		return "", errQuestionRequired
	}
	return q, nil
}

func ingestCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool("rebuild") && cfg.Index.Path != "" {
		fmt.Fprintf(os.Stderr, "Removing existing index at %s\n", cfg.Index.Path)
		if err := os.RemoveAll(cfg.Index.Path); err != nil {
			return fmt.Errorf("failed to remove index: %w", err)
		}
	}

	engine, err := docqa.NewEngine(cfg, docqa.WithAPIKey(cfg.APIKey()))
	if err != nil {
		return err
	}
	defer engine.Close()

	report, err := engine.IngestDirectory(ctx, c.Args().First())
	if err != nil {
		return err
	}
	printReport(report)

	if err := engine.Persist(ctx); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}
	if report.Succeeded()+report.Skipped() == 0 && len(report.Documents) > 0 {
		return report.Err()
	}
	return nil
}

func printReport(report *ingestion.Report) {
	writeReport(os.Stderr, report)
}

func writeReport(w io.Writer, report *ingestion.Report) {
	for _, doc := range report.Documents {
		switch {
		case doc.Err != nil:
			fmt.Fprintf(w, "  FAILED %s: %v\n", doc.Path, doc.Err)
		case doc.Skipped:
			fmt.Fprintf(w, "  SKIPPED %s: already indexed; run ingest --rebuild to pick up changes\n", doc.Path)
		default:
			fmt.Fprintf(w, "  %s: %d pages, %d chunks, %d images\n", doc.Path, doc.Pages, doc.Chunks, doc.Images)
			if len(doc.UnreadablePages) > 0 {
				fmt.Fprintf(w, "    unreadable pages: %s\n", core.PageList(doc.UnreadablePages))
			}
		}
	}
	fmt.Fprintf(w, "Ingested %d/%d documents, %d skipped (%d chunks, %d images) in %s\n",
		report.Succeeded(), len(report.Documents), report.Skipped(),
		report.Chunks(), report.Images(), report.Duration().Round(time.Millisecond))
}

func askCommand(c *cli.Context) error {
	q, err := question(c)
	if err != nil {
		return err
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ans, err := engine.Ask(c.Context, q, c.Int("k"))
	if err != nil {
		return err
	}

	fmt.Println(ans.Text)
	if len(ans.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for i, ct := range ans.Citations {
			fmt.Printf("  [%d] %s %s (%.3f)\n", i+1, ct.DocumentID, formatPages(ct.Pages), ct.Score)
		}
	}
	if len(ans.Images) > 0 {
		fmt.Println()
		fmt.Println("Related images:")
		for _, img := range ans.Images {
			fmt.Printf("  %s page %d: %s\n", img.DocumentID, img.Page, imageLabel(img))
		}
	}
	return nil
}

func retrieveCommand(c *cli.Context) error {
	q, err := question(c)
	if err != nil {
		return err
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := engine.Retrieve(c.Context, q, c.Int("k"))
	if err != nil {
		return err
	}

	fmt.Printf("Found %d chunks\n", len(result.Chunks))
	for i, sc := range result.Chunks {
		fmt.Printf("%d: %s %s [%0.3f]\n", i, sc.Chunk.DocumentID, formatPages(sc.Chunk.Pages), sc.Score)
		fmt.Printf("   %s\n", strings.ReplaceAll(sc.Chunk.Text, "\n", " "))
	}
	for _, img := range result.Images {
		fmt.Printf("image: %s page %d %s\n", img.DocumentID, img.Page, imageLabel(img))
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	addr := c.String("addr")
	if addr == "" {
		addr = engine.Config().Server.Addr
	}
	opts := []server.Option{server.WithAddr(addr)}
	if store := engine.Images(); store != nil {
		opts = append(opts, server.WithImageStore(store))
	}
	srv, err := server.New(engine, opts...)
	if err != nil {
		return err
	}

	if c.Bool("watch") {
		watcher := engine.Watcher("", ingestion.WithReportHandler(func(report *ingestion.Report) {
			printReport(report)
			if err := engine.Persist(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "failed to persist index: %v\n", err)
			}
		}))
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(os.Stderr, "watcher stopped: %v\n", err)
			}
		}()
	}

	return srv.Run(ctx)
}

func reembedCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	aiConfig := cfg.AIConfig(cfg.APIKey())
	aiConfig.EmbeddingModel = c.String("embedding-model")
	if host := c.String("embedding-host"); host != "" {
		aiConfig.EmbeddingHost = host
	}
	if err := aiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid AI configuration: %w", err)
	}
	provider, err := openai.NewProvider(aiConfig)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	defer provider.Close()

	source, err := storage.Open(cfg.Index)
	if err != nil {
		return fmt.Errorf("failed to open source index: %w", err)
	}
	defer source.Close()

	targetConfig := storage.Config{Backend: c.String("target-backend"), Path: c.String("target-path")}
	if targetConfig == cfg.Index {
		return reembed.ErrSameIndex
	}
	target, err := storage.Open(targetConfig)
	if err != nil {
		return fmt.Errorf("failed to open target index: %w", err)
	}
	defer target.Close()

	reembedder, err := reembed.NewReembedder(source, target, provider.Embedder(), reembedConfig, os.Stderr)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Source index: %s (%s)\n", cfg.Index.Path, cfg.Index.Backend)
	fmt.Fprintf(os.Stderr, "Target index: %s (%s)\n", targetConfig.Path, targetConfig.Backend)
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", aiConfig.EmbeddingHost)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", aiConfig.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	if _, err := reembedder.Run(ctx); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}

	if targetConfig.Backend == memory.BackendName {
		if err := target.Persist(ctx, targetConfig.Path); err != nil {
			return fmt.Errorf("failed to persist target index: %w", err)
		}
	}
	return nil
}

func openImageStore(cfg *config.Config) (*imagestore.Store, error) {
	if !cfg.Images.Enabled {
		return nil, errors.New("image storage is disabled in the configuration")
	}
	return imagestore.New(cfg.Images.Dir, imagestore.WithMaxDimension(cfg.Images.MaxDimension))
}

func imagesListCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openImageStore(cfg)
	if err != nil {
		return err
	}

	reports := c.Args().Slice()
	if len(reports) == 0 {
		if reports, err = store.Reports(); err != nil {
			return err
		}
	}
	for _, report := range reports {
		paths, err := store.ListForReport(report)
		if err != nil {
			return err
		}
		fmt.Printf("report %s: %d images\n", report, len(paths))
		for _, p := range paths {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}

func imagesCleanupCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openImageStore(cfg)
	if err != nil {
		return err
	}
	index, err := storage.Open(cfg.Index)
	if err != nil {
		return err
	}
	defer index.Close()

	stats, err := index.Stats(c.Context)
	if err != nil {
		return err
	}
	if stats.Entries == 0 {
		return fmt.Errorf("%w: refusing to remove images against an empty index", core.ErrNothingIndexed)
	}

	valid, err := referencedImages(c.Context, index)
	if err != nil {
		return err
	}

	if c.Bool("dry-run") {
		orphans, err := countOrphans(store, valid)
		if err != nil {
			return err
		}
		fmt.Printf("%d orphaned images would be removed\n", orphans)
		return nil
	}

	removed, err := store.CleanupOrphans(valid)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d orphaned images\n", removed)
	return nil
}

// referencedImages returns the stored paths of images on pages that carry
// indexed chunks. Images on other pages are never retrieved.
func referencedImages(ctx context.Context, index storage.Index) ([]string, error) {
	seen := make(map[core.PageKey]struct{})
	var keys []core.PageKey
	err := index.Scan(ctx, func(entry core.IndexEntry) error {
		for _, key := range entry.Chunk.Keys() {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	refs, err := index.ImagesFor(ctx, keys)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Path != "" {
			paths = append(paths, ref.Path)
		}
	}
	return paths, nil
}

func countOrphans(store *imagestore.Store, valid []string) (int, error) {
	keep := make(map[string]struct{}, len(valid))
	for _, p := range valid {
		keep[p] = struct{}{}
	}
	reports, err := store.Reports()
	if err != nil {
		return 0, err
	}
	orphans := 0
	for _, report := range reports {
		paths, err := store.ListForReport(report)
		if err != nil {
			return 0, err
		}
		for _, p := range paths {
			if _, ok := keep[p]; !ok {
				orphans++
			}
		}
	}
	return orphans, nil
}

func statsCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	index, err := storage.Open(cfg.Index)
	if err != nil {
		return err
	}
	defer index.Close()

	stats, err := index.Stats(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("Backend:   %s\n", stats.Backend)
	fmt.Printf("Path:      %s\n", cfg.Index.Path)
	fmt.Printf("Documents: %d\n", stats.Documents)
	fmt.Printf("Chunks:    %d\n", stats.Entries)
	fmt.Printf("Images:    %d\n", stats.Images)
	fmt.Printf("Dimension: %d\n", stats.Dimension)
	return nil
}

func formatPages(pages []int) string {
	switch len(pages) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("p.%d", pages[0])
	default:
		return fmt.Sprintf("pp.%d-%d", pages[0], pages[len(pages)-1])
	}
}

func imageLabel(img core.ImageRef) string {
	size := "unknown size"
	if img.Width > 0 && img.Height > 0 {
		size = fmt.Sprintf("%dx%d", img.Width, img.Height)
	}
	if img.Path == "" {
		return size
	}
	return img.Path + " (" + size + ")"
}
