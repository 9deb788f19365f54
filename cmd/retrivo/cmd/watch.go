package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/retrivo/core/internal/async"
	"github.com/retrivo/core/internal/chunk"
	"github.com/retrivo/core/internal/config"
	"github.com/retrivo/core/internal/embed"
	"github.com/retrivo/core/internal/index"
	"github.com/retrivo/core/internal/output"
	"github.com/retrivo/core/internal/scanner"
	"github.com/retrivo/core/internal/search"
	"github.com/retrivo/core/internal/snippet"
	"github.com/retrivo/core/internal/store"
	"github.com/retrivo/core/internal/tags"
	"github.com/retrivo/core/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var offline bool
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a project and keep its index up to date",
		Long: `Watch monitors the project directory for file changes and
incrementally updates the index whenever files are created, modified, or
deleted. It runs in the foreground until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(cmd.Context(), cmd, path, offline, debounce)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip model download)")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Override the debounce window before reindexing")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path string, offline bool, debounce time.Duration) error {
	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".retrivo")
	if !fileExists(filepath.Join(dataDir, "metadata.db")) {
		out.Status("", "No index found, creating one first...")
		// The initial full pass runs on the background indexer so its
		// interrupted-run lock file is left behind if this process dies
		// mid-build; `retrivo doctor` surfaces that.
		initial := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: dataDir})
		initial.IndexFunc = func(ctx context.Context, _ *async.IndexProgress) error {
			return runIndexInternal(ctx, cmd, root, offline)
		}
		initial.Start(ctx)
		if err := initial.Wait(); err != nil {
			return fmt.Errorf("initial indexing failed: %w", err)
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	coord, persist, closeStores, err := buildWatchCoordinator(ctx, root, dataDir, cfg, offline)
	if err != nil {
		return err
	}
	defer closeStores()

	// Catch up on anything that changed while the watcher wasn't running.
	if err := coord.ReconcileFilesOnStartup(ctx); err != nil {
		slog.Warn("startup reconciliation failed", slog.String("error", err.Error()))
	} else if err := persist(); err != nil {
		slog.Warn("index save failed", slog.String("error", err.Error()))
	}

	opts := watcher.DefaultOptions()
	if debounce > 0 {
		opts.DebounceWindow = debounce
	} else if cfg.Indexing.WatchDebounceMS > 0 {
		opts.DebounceWindow = time.Duration(cfg.Indexing.WatchDebounceMS) * time.Millisecond
	}

	w, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	if err := w.Start(ctx, root); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	out.Status("", fmt.Sprintf("Watching %s (%s)", root, w.WatcherType()))
	out.Status("", "Press Ctrl+C to stop")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", slog.String("error", err.Error()))
		case events, ok := <-w.Events():
			if !ok {
				return nil
			}
			out.Status("", fmt.Sprintf("Detected %d change(s), updating index...", len(events)))
			if err := coord.HandleEvents(ctx, events); err != nil {
				slog.Error("Incremental update failed", slog.String("error", err.Error()))
				out.Error(fmt.Sprintf("Incremental update failed: %v", err))
				continue
			}
			if err := persist(); err != nil {
				slog.Error("Index save failed", slog.String("error", err.Error()))
				out.Error(fmt.Sprintf("Index save failed: %v", err))
				continue
			}
			out.Success("Index updated")
		}
	}
}

// buildWatchCoordinator opens the project's index handles and assembles the
// incremental-update Coordinator over them. It returns the coordinator, a
// persist func that flushes the BM25 and vector stores to disk, and a
// closer for every opened handle.
func buildWatchCoordinator(ctx context.Context, root, dataDir string, cfg *config.Config, offline bool) (*index.Coordinator, func() error, func(), error) {
	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open metadata: %w", err)
	}

	bm25, err := store.NewBM25IndexWithBackend(filepath.Join(dataDir, "bm25"), store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		_ = metadata.Close()
		return nil, nil, nil, fmt.Errorf("failed to open BM25 index: %w", err)
	}

	var embedder embed.Embedder
	if offline {
		embedder = embed.NewStaticEmbedder768()
	} else {
		provider := embed.ParseProvider(cfg.Embedding.Provider)
		embedder, err = embed.NewEmbedder(ctx, provider, cfg.Embedding.Model)
		if err != nil {
			_ = bm25.Close()
			_ = metadata.Close()
			return nil, nil, nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	if err != nil {
		_ = embedder.Close()
		_ = bm25.Close()
		_ = metadata.Close()
		return nil, nil, nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if loadErr := vector.Load(vectorPath); loadErr != nil {
			slog.Debug("vector_load_failed", slog.String("error", loadErr.Error()))
		}
	}

	engine, err := search.NewEngine(bm25, vector, embedder, metadata, search.DefaultConfig())
	if err != nil {
		_ = vector.Close()
		_ = embedder.Close()
		_ = bm25.Close()
		_ = metadata.Close()
		return nil, nil, nil, fmt.Errorf("failed to create search engine: %w", err)
	}

	s, err := scanner.New()
	if err != nil {
		s = nil // reconciliation degrades to file events only
	}

	excludePatterns := append(cfg.Paths.Exclude, "**/.retrivo/**")
	coord := index.NewCoordinator(index.CoordinatorConfig{
		ProjectID:       index.ProjectIDForRoot(root),
		RootPath:        root,
		DataDir:         dataDir,
		Engine:          engine,
		Metadata:        metadata,
		CodeChunker:     chunk.NewCodeChunker(),
		MDChunker:       chunk.NewMarkdownChunker(),
		Scanner:         s,
		ExcludePatterns: excludePatterns,
		MaxFileSize:     int64(cfg.Indexing.MaxFileSizeMB) * 1024 * 1024,
		Tags:            tags.NewExtractor(),
		Snippets:        snippet.New(),
	})

	persist := func() error {
		if err := bm25.Save(filepath.Join(dataDir, "bm25")); err != nil {
			return fmt.Errorf("save BM25 index: %w", err)
		}
		if err := vector.Save(vectorPath); err != nil {
			return fmt.Errorf("save vector store: %w", err)
		}
		return nil
	}

	closeStores := func() {
		_ = engine.Close()
		_ = vector.Close()
		_ = embedder.Close()
		_ = bm25.Close()
		_ = metadata.Close()
	}

	return coord, persist, closeStores, nil
}
