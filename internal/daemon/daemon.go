package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/retrivo/core/internal/config"
	"github.com/retrivo/core/internal/embed"
	"github.com/retrivo/core/internal/index"
	"github.com/retrivo/core/internal/search"
	"github.com/retrivo/core/internal/snippet"
	"github.com/retrivo/core/internal/store"
	"github.com/retrivo/core/internal/tags"
)

// projectState holds the loaded index handles for a single project root,
// kept warm in memory so repeated searches skip reopening the stores.
type projectState struct {
	rootPath string
	loadedAt time.Time
	lastUsed time.Time

	metadata store.MetadataStore
	bm25     store.BM25Index
	vector   store.VectorStore
	engine   *search.Engine
	recent   *search.RecentFiles
}

// Close releases the stores held by this project state. Safe to call on a
// zero-value projectState (e.g. constructed directly in tests).
func (p *projectState) Close() error {
	var firstErr error
	if p.vector != nil {
		if err := p.vector.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.bm25 != nil {
		if err := p.bm25.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.metadata != nil {
		if err := p.metadata.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Daemon keeps an embedder and per-project index handles loaded in memory,
// serving search requests from CLI clients over a Unix socket without the
// per-invocation cost of reinitializing the embedder.
type Daemon struct {
	cfg      Config
	embedder embed.Embedder
	server   *Server
	pidFile  *PIDFile
	started  time.Time
	events   *search.EventBus

	mu       sync.Mutex
	projects map[string]*projectState
}

// Option configures a Daemon at construction time.
type Option func(*Daemon)

// WithEmbedder sets the embedder the daemon uses for semantic search,
// bypassing the config-driven embedder selection. Primarily used by tests
// to avoid an Ollama dependency.
func WithEmbedder(e embed.Embedder) Option {
	return func(d *Daemon) {
		d.embedder = e
	}
}

// NewDaemon creates a daemon with the given configuration and options.
func NewDaemon(cfg Config, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		pidFile:  NewPIDFile(cfg.PIDPath),
		projects: make(map[string]*projectState),
		events:   search.NewEventBus(),
	}

	for _, opt := range opts {
		opt(d)
	}

	// Drain search lifecycle events into the debug log so every query's
	// pipeline is reconstructable from the daemon log by query id.
	go func() {
		for ev := range d.events.Subscribe() {
			slog.Debug("search_event",
				slog.String("query_id", ev.QueryID),
				slog.String("kind", string(ev.Kind)),
				slog.Int("count", ev.Count))
		}
	}()

	return d, nil
}

// Start runs the daemon until ctx is cancelled. It writes the PID file,
// starts the Unix socket server, and cleans up on exit. Stale socket and
// PID files from a previous unclean shutdown are silently overwritten.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := d.pidFile.Write(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	defer func() { _ = d.pidFile.Remove() }()
	defer d.cleanup()

	d.started = time.Now()

	server, err := NewServer(d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	server.SetHandler(d)
	d.server = server

	return server.ListenAndServe(ctx)
}

// HandleSearch executes a search against the project at params.RootPath,
// loading (or reusing) that project's index handles as needed.
func (d *Daemon) HandleSearch(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	dataDir := filepath.Join(params.RootPath, ".retrivo")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if _, err := os.Stat(metadataPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no index found for %s: run 'retrivo index' first", params.RootPath)
	}

	state, err := d.loadProject(ctx, params.RootPath, dataDir, metadataPath)
	if err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := state.engine.Search(ctx, params.Query, search.SearchOptions{
		Limit:    limit,
		Filter:   params.Filter,
		Language: params.Language,
		Scopes:   params.Scopes,
		BM25Only: params.BM25Only,
		Explain:  params.Explain,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if params.Hydrate {
		results = search.Hydrate(results, params.RootPath)
	}

	// Files surfacing at the top of results are temporally relevant; feed
	// them back into the recent-files signal for subsequent queries.
	if state.recent != nil {
		for i, r := range results {
			if i >= 3 {
				break
			}
			if r.Chunk != nil {
				state.recent.NotifyFileAccessed(r.Chunk.FilePath)
			}
		}
	}

	return toDaemonResults(results), nil
}

// loadProject returns the cached projectState for rootPath, opening its
// index handles if this is the first request for that project.
func (d *Daemon) loadProject(ctx context.Context, rootPath, dataDir, metadataPath string) (*projectState, error) {
	d.mu.Lock()
	if state, ok := d.projects[rootPath]; ok {
		state.lastUsed = time.Now()
		d.mu.Unlock()
		return state, nil
	}
	d.mu.Unlock()

	state, err := d.openProject(ctx, rootPath, dataDir, metadataPath)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.projects[rootPath] = state
	if len(d.projects) > d.cfg.MaxProjects {
		d.evictLRU()
	}
	d.mu.Unlock()

	return state, nil
}

// openProject opens the on-disk index handles for a project root and wires
// them into a search engine, mirroring the CLI's local search path.
func (d *Daemon) openProject(ctx context.Context, rootPath, dataDir, metadataPath string) (*projectState, error) {
	cfg, err := config.Load(rootPath)
	if err != nil {
		cfg = config.NewConfig()
	}

	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata: %w", err)
	}

	bm25BasePath := filepath.Join(dataDir, "bm25")
	bm25, err := store.NewBM25IndexWithBackend(bm25BasePath, store.DefaultBM25Config(), cfg.Search.BM25Backend)
	if err != nil {
		_ = metadata.Close()
		return nil, fmt.Errorf("failed to open BM25 index: %w", err)
	}

	embedder := d.embedder
	if embedder == nil {
		provider := embed.ParseProvider(cfg.Embedding.Provider)
		embedder, err = embed.NewEmbedder(ctx, provider, cfg.Embedding.Model)
		if err != nil {
			_ = bm25.Close()
			_ = metadata.Close()
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	vectorConfig := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vector, err := store.NewHNSWStore(vectorConfig)
	if err != nil {
		_ = bm25.Close()
		_ = metadata.Close()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		_ = vector.Load(vectorPath)
	}

	engineConfig := search.DefaultConfig()
	if cfg.Search.MaxResults > 0 {
		engineConfig.DefaultLimit = cfg.Search.MaxResults
	}
	if w := cfg.Search.Weights; w.BM25 > 0 || w.Semantic > 0 {
		engineConfig.DefaultWeights = search.Weights{
			BM25:     w.BM25,
			Semantic: w.Semantic,
			Snippet:  w.Snippet,
			Recent:   w.Recent,
		}
	} else if cfg.Search.BM25Weight > 0 || cfg.Search.SemanticWeight > 0 {
		engineConfig.DefaultWeights = search.Weights{
			BM25:     cfg.Search.BM25Weight,
			Semantic: cfg.Search.SemanticWeight,
		}
	}

	recent := search.NewRecentFiles(defaultRecentFilesCapacity)
	engineOpts := []search.EngineOption{
		search.WithMultiQuerySearch(search.NewPatternDecomposer()),
		search.WithEventBus(d.events),
		search.WithClassifier(search.NewHybridClassifier(nil)),
		search.WithQueryExpander(search.NewQueryExpander()),
		search.WithRecentFiles(recent),
		search.WithSnippetIndex(rebuildSnippetIndex(ctx, metadata, rootPath)),
	}
	if cfg.Features.QueryRewrite {
		engineOpts = append(engineOpts, search.WithQueryRewriter(search.NewQueryRewriter(nil)))
	}
	if cfg.Reranker.Enabled {
		engineOpts = append(engineOpts, search.WithRuleReranker(search.NewRuleBasedReranker(search.RuleRerankerConfig{
			ExactMatchBoost:      cfg.Reranker.ExactMatchBoost,
			PathRelevanceBoost:   cfg.Reranker.PathRelevanceBoost,
			RecencyBoost:         cfg.Reranker.RecencyBoost,
			RecencyDaysThreshold: cfg.Reranker.RecencyDaysThreshold,
		})))
	}
	engine, err := search.NewEngine(bm25, vector, embedder, metadata, engineConfig, engineOpts...)
	if err != nil {
		_ = vector.Close()
		_ = bm25.Close()
		_ = metadata.Close()
		return nil, fmt.Errorf("failed to create search engine: %w", err)
	}

	now := time.Now()
	return &projectState{
		rootPath: rootPath,
		loadedAt: now,
		lastUsed: now,
		metadata: metadata,
		bm25:     bm25,
		vector:   vector,
		engine:   engine,
		recent:   recent,
	}, nil
}

// defaultRecentFilesCapacity bounds the per-project recent-files LRU.
const defaultRecentFilesCapacity = 64

// rebuildSnippetIndex reconstructs the in-memory symbol index from the
// chunks persisted in the metadata store. Tags are cheap to recompute and
// never persisted, so a daemon warm-load rebuilds them from the symbols
// each chunk already carries. Failures degrade to an empty index; symbol
// queries then fall through to BM25/vector.
func rebuildSnippetIndex(ctx context.Context, metadata store.MetadataStore, rootPath string) *snippet.Index {
	idx := snippet.New()

	files, err := metadata.GetFilesForReconciliation(ctx, index.ProjectIDForRoot(rootPath))
	if err != nil {
		slog.Debug("snippet_rebuild_skipped", slog.String("error", err.Error()))
		return idx
	}

	for path, f := range files {
		chunks, err := metadata.GetChunksByFile(ctx, f.ID)
		if err != nil {
			continue
		}
		var symbols []*store.Symbol
		for _, c := range chunks {
			symbols = append(symbols, c.Symbols...)
		}
		if len(symbols) > 0 {
			idx.IndexTags(path, tags.FromStoreSymbols(path, symbols))
		}
	}

	slog.Debug("snippet_rebuild_complete", slog.Int("symbols", idx.Count()))
	return idx
}

// evictLRU removes the least-recently-used project from the in-memory
// cache. Callers must hold d.mu. A no-op on an empty project map.
func (d *Daemon) evictLRU() {
	if len(d.projects) == 0 {
		return
	}

	var oldestPath string
	var oldestTime time.Time
	for path, state := range d.projects {
		if oldestPath == "" || state.lastUsed.Before(oldestTime) {
			oldestPath = path
			oldestTime = state.lastUsed
		}
	}

	if state, ok := d.projects[oldestPath]; ok {
		_ = state.Close()
		delete(d.projects, oldestPath)
	}
}

// GetStatus reports the daemon's current state for the `retrivo daemon status` command.
func (d *Daemon) GetStatus() StatusResult {
	d.mu.Lock()
	projectsLoaded := len(d.projects)
	d.mu.Unlock()

	status := StatusResult{
		Running:        true,
		PID:            os.Getpid(),
		Uptime:         time.Since(d.started).Round(time.Second).String(),
		ProjectsLoaded: projectsLoaded,
	}

	if d.embedder == nil {
		status.EmbedderType = "unavailable"
		status.EmbedderStatus = "unavailable"
		return status
	}

	status.EmbedderType = d.embedder.ModelName()
	status.EmbedderStatus = "ready"
	return status
}

// cleanup releases all loaded project handles and the embedder when the
// daemon shuts down.
func (d *Daemon) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for path, state := range d.projects {
		_ = state.Close()
		delete(d.projects, path)
	}
	d.projects = make(map[string]*projectState)
	d.embedder = nil
}

// toDaemonResults converts search engine results into the wire format sent
// to CLI clients over the Unix socket.
func toDaemonResults(results []*search.SearchResult) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		sr := SearchResult{
			FilePath:  r.Chunk.FilePath,
			StartLine: r.Chunk.StartLine,
			EndLine:   r.Chunk.EndLine,
			Score:     r.Score,
			Content:   r.Chunk.Content,
			Language:  r.Chunk.Language,
			BM25Score: r.BM25Score,
			VecScore:  r.VecScore,
			BM25Rank:  r.BM25Rank,
			VecRank:   r.VecRank,
			IsStale:   r.IsStale,
		}
		out = append(out, sr)
	}
	if len(out) > 0 && results[0].Explain != nil {
		exp := results[0].Explain
		out[0].Explain = &ExplainData{
			Query:                exp.Query,
			BM25ResultCount:      exp.BM25ResultCount,
			VectorResultCount:    exp.VectorResultCount,
			BM25Weight:           exp.Weights.BM25,
			SemanticWeight:       exp.Weights.Semantic,
			RRFConstant:          exp.RRFConstant,
			BM25Only:             exp.BM25Only,
			DimensionMismatch:    exp.DimensionMismatch,
			MultiQueryDecomposed: exp.MultiQueryDecomposed,
			SubQueries:           exp.SubQueries,
		}
	}
	return out
}
