package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ProjectType represents the type of project detected.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config represents the complete retrieval.toml configuration, matching the
// schema in the external interfaces section: enabled, data_dir, indexing,
// chunking, search, embedding, reranker, repo_map, features.
type Config struct {
	Enabled    bool             `toml:"enabled" json:"enabled"`
	DataDir    string           `toml:"data_dir" json:"data_dir"`
	Paths      PathsConfig      `toml:"paths" json:"paths"`
	Indexing   IndexingConfig   `toml:"indexing" json:"indexing"`
	Chunking   ChunkingConfig   `toml:"chunking" json:"chunking"`
	Search     SearchConfig     `toml:"search" json:"search"`
	Embedding  EmbeddingConfig  `toml:"embedding" json:"embedding"`
	Reranker   RerankerConfig   `toml:"reranker" json:"reranker"`
	RepoMap    RepoMapConfig    `toml:"repo_map" json:"repo_map"`
	Features   FeaturesConfig   `toml:"features" json:"features"`
	Contextual ContextualConfig `toml:"contextual" json:"contextual"`
	Submodules SubmoduleConfig  `toml:"submodules" json:"submodules"`
}

// PathsConfig configures which paths the Walker includes and excludes, in
// addition to the always-on vendored-path presets.
type PathsConfig struct {
	Include []string `toml:"include" json:"include"`
	Exclude []string `toml:"exclude" json:"exclude"`
}

// SubmoduleConfig configures git submodule discovery during scanning.
type SubmoduleConfig struct {
	// Enabled enables submodule discovery (default: false, opt-in).
	Enabled bool `toml:"enabled" json:"enabled"`
	// Recursive enables discovery of nested submodules (default: true).
	Recursive bool `toml:"recursive" json:"recursive"`
	// Include specifies submodules to include (empty = all).
	Include []string `toml:"include" json:"include"`
	// Exclude specifies submodules to exclude.
	Exclude []string `toml:"exclude" json:"exclude"`
}

// ContextualConfig configures the parent-context annotation pass that
// prefixes each chunk with file/symbol context before embedding.
type ContextualConfig struct {
	// Enabled enables contextual enrichment (default: true).
	Enabled bool `toml:"enabled" json:"enabled"`
	// CodeChunks enables context prefixes for code chunks (default: false).
	// When false, only markdown/docs chunks get contextual prefixes; code
	// chunks already carry their import block and parent symbol.
	CodeChunks bool `toml:"code_chunks" json:"code_chunks"`
}

// IndexingConfig configures the Indexing Manager's batching and guardrails.
type IndexingConfig struct {
	MaxFileSizeMB   int `toml:"max_file_size_mb" json:"max_file_size_mb"`
	BatchSize       int `toml:"batch_size" json:"batch_size"`
	MaxChunks       int `toml:"max_chunks" json:"max_chunks"`
	LockTimeoutSecs int `toml:"lock_timeout_secs" json:"lock_timeout_secs"`
	WatchDebounceMS int `toml:"watch_debounce_ms" json:"watch_debounce_ms"`
}

// ChunkingConfig configures the token-bounded chunker.
type ChunkingConfig struct {
	MaxTokens     int `toml:"max_tokens" json:"max_tokens"`
	OverlapTokens int `toml:"overlap_tokens" json:"overlap_tokens"`
}

// Weights controls the contribution of each search source to RRF fusion.
type Weights struct {
	BM25     float64 `toml:"bm25" json:"bm25"`
	Semantic float64 `toml:"semantic" json:"semantic"`
	Snippet  float64 `toml:"snippet" json:"snippet"`
	Recent   float64 `toml:"recent" json:"recent"`
}

// SearchConfig configures the hybrid searcher and its BM25 tuning.
type SearchConfig struct {
	NFinal           int     `toml:"n_final" json:"n_final"`
	MaxChunksPerFile int     `toml:"max_chunks_per_file" json:"max_chunks_per_file"`
	K1               float64 `toml:"k1" json:"k1"`
	B                float64 `toml:"b" json:"b"`

	// FTSBackend selects the full-text search path: "custom" (default)
	// uses the tunable k1/b inverted index; "bleve" falls back to the
	// Vector Store's built-in FTS. An explicit switch, not call-order.
	FTSBackend string `toml:"fts_backend" json:"fts_backend"`

	// BM25Backend selects the on-disk BM25 index implementation: "sqlite"
	// (default, concurrent via WAL) or "bleve" (legacy, single-process).
	BM25Backend string `toml:"bm25_backend" json:"bm25_backend"`

	RRFConstant int     `toml:"rrf_constant" json:"rrf_constant"`
	Weights     Weights `toml:"weights" json:"weights"`

	// MaxResults caps the number of fused results the engine returns by
	// default when a caller doesn't specify its own limit.
	MaxResults int `toml:"max_results" json:"max_results"`

	// BM25Weight and SemanticWeight mirror Weights.BM25/Weights.Semantic as
	// flat fields for callers that override fusion weights without touching
	// the Snippet/Recent components.
	BM25Weight     float64 `toml:"bm25_weight" json:"bm25_weight"`
	SemanticWeight float64 `toml:"semantic_weight" json:"semantic_weight"`
}

// EmbeddingConfig configures the embedding provider. Absent/disabled means
// BM25-only operation (features.vector_search is forced false).
type EmbeddingConfig struct {
	Model      string `toml:"model" json:"model"`
	Dimension  int    `toml:"dimension" json:"dimension"`
	Provider   string `toml:"provider" json:"provider"`     // "ollama" (default) or "static" (deterministic, tests)
	OllamaHost string `toml:"ollama_host" json:"ollama_host"`
	BatchSize  int    `toml:"batch_size" json:"batch_size"`
	CacheSize  int    `toml:"cache_size" json:"cache_size"` // in-process LRU entries in front of the SQLite cache table
}

// RerankerConfig configures the optional reranking pass over fused results.
type RerankerConfig struct {
	Enabled              bool    `toml:"enabled" json:"enabled"`
	ExactMatchBoost       float64 `toml:"exact_match_boost" json:"exact_match_boost"`
	PathRelevanceBoost    float64 `toml:"path_relevance_boost" json:"path_relevance_boost"`
	RecencyBoost          float64 `toml:"recency_boost" json:"recency_boost"`
	RecencyDaysThreshold  int     `toml:"recency_days_threshold" json:"recency_days_threshold"`
}

// RepoMapConfig configures the optional repository-map summary the CLI can
// print alongside search results.
type RepoMapConfig struct {
	Enabled  bool `toml:"enabled" json:"enabled"`
	MaxFiles int  `toml:"max_files" json:"max_files"`
}

// FeaturesConfig toggles whole subsystems on or off.
type FeaturesConfig struct {
	CodeSearch   bool `toml:"code_search" json:"code_search"`
	VectorSearch bool `toml:"vector_search" json:"vector_search"`
	QueryRewrite bool `toml:"query_rewrite" json:"query_rewrite"`
}

// defaultExcludePatterns are always excluded by the Walker.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// DefaultExcludePatterns returns the always-on vendored-path presets the
// Walker applies regardless of project configuration.
func DefaultExcludePatterns() []string {
	out := make([]string, len(defaultExcludePatterns))
	copy(out, defaultExcludePatterns)
	return out
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Enabled: true,
		DataDir: defaultDataDir(),
		Paths: PathsConfig{
			Include: nil,
			Exclude: DefaultExcludePatterns(),
		},
		Indexing: IndexingConfig{
			MaxFileSizeMB:   5,
			BatchSize:       64,
			MaxChunks:       200000,
			LockTimeoutSecs: 30,
			WatchDebounceMS: 500,
		},
		Chunking: ChunkingConfig{
			MaxTokens:     400,
			OverlapTokens: 0,
		},
		Search: SearchConfig{
			NFinal:           20,
			MaxChunksPerFile: 2,
			K1:               0.8,
			B:                0.5,
			FTSBackend:       "custom",
			BM25Backend:      "sqlite",
			RRFConstant:      60,
			Weights: Weights{
				BM25:     0.45,
				Semantic: 0.35,
				Snippet:  0.1,
				Recent:   0.1,
			},
			MaxResults:     20,
			BM25Weight:     0.45,
			SemanticWeight: 0.35,
		},
		Embedding: EmbeddingConfig{
			Model:      "nomic-embed-text",
			Dimension:  768,
			Provider:   "ollama",
			OllamaHost: "http://localhost:11434",
			BatchSize:  32,
			CacheSize:  2000,
		},
		Reranker: RerankerConfig{
			Enabled:              true,
			ExactMatchBoost:      0.15,
			PathRelevanceBoost:   0.05,
			RecencyBoost:         0.05,
			RecencyDaysThreshold: 14,
		},
		RepoMap: RepoMapConfig{
			Enabled:  false,
			MaxFiles: 200,
		},
		Features: FeaturesConfig{
			CodeSearch:   true,
			VectorSearch: true,
			QueryRewrite: true,
		},
		Contextual: ContextualConfig{
			Enabled:    true,
			CodeChunks: false,
		},
		Submodules: SubmoduleConfig{
			Enabled:   false,
			Recursive: true,
			Include:   nil,
			Exclude:   nil,
		},
	}
}

// defaultDataDir returns the default Retrieval Core data directory,
// workspace-local and distinct from the `.codex` config directory so the
// (large, regenerable) index can be gitignored independently of the
// (small, committable) project config.
func defaultDataDir() string {
	return ".retrivo"
}

// GlobalConfigPath returns the path to the user/global configuration file:
// ~/.codex/retrieval.toml.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codex", "retrieval.toml")
	}
	return filepath.Join(home, ".codex", "retrieval.toml")
}

// GlobalConfigDir returns the directory containing the global configuration.
func GlobalConfigDir() string {
	return filepath.Dir(GlobalConfigPath())
}

// GlobalConfigExists returns true if the global configuration file exists.
func GlobalConfigExists() bool {
	return fileExists(GlobalConfigPath())
}

// ProjectConfigPath returns the per-project configuration path for dir:
// <dir>/.codex/retrieval.toml.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, ".codex", "retrieval.toml")
}

// loadGlobalConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadGlobalConfig() (*Config, error) {
	path := GlobalConfigPath()
	if !fileExists(path) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadTOML(path); err != nil {
		return nil, fmt.Errorf("failed to load global config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load loads configuration for the given workspace directory, applying
// overrides in order of increasing precedence:
//  1. Hardcoded defaults
//  2. Global config (~/.codex/retrieval.toml)
//  3. Project config (<dir>/.codex/retrieval.toml) — wins over global
//  4. Environment variables (RETRIVO_*) — highest precedence
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if globalCfg, err := loadGlobalConfig(); err != nil {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	} else if globalCfg != nil {
		cfg.mergeWith(globalCfg)
	}

	if err := cfg.loadFromProject(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromProject attempts to load configuration from <dir>/.codex/retrieval.toml.
func (c *Config) loadFromProject(dir string) error {
	path := ProjectConfigPath(dir)
	if _, err := os.Stat(path); err != nil {
		return nil // no project config is fine - use defaults/global
	}
	return c.loadTOML(path)
}

// loadTOML loads and merges configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c, field by field.
func (c *Config) mergeWith(other *Config) {
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	// A config layer can turn Enabled on but a zero value can't turn it
	// off (TOML gives no way to distinguish "false" from "absent" here).
	// Explicit disablement goes through RETRIVO_ENABLED=0 instead.
	if other.Enabled {
		c.Enabled = true
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = other.Paths.Exclude
	}

	if other.Indexing.MaxFileSizeMB != 0 {
		c.Indexing.MaxFileSizeMB = other.Indexing.MaxFileSizeMB
	}
	if other.Indexing.BatchSize != 0 {
		c.Indexing.BatchSize = other.Indexing.BatchSize
	}
	if other.Indexing.MaxChunks != 0 {
		c.Indexing.MaxChunks = other.Indexing.MaxChunks
	}
	if other.Indexing.LockTimeoutSecs != 0 {
		c.Indexing.LockTimeoutSecs = other.Indexing.LockTimeoutSecs
	}
	if other.Indexing.WatchDebounceMS != 0 {
		c.Indexing.WatchDebounceMS = other.Indexing.WatchDebounceMS
	}

	if other.Chunking.MaxTokens != 0 {
		c.Chunking.MaxTokens = other.Chunking.MaxTokens
	}
	if other.Chunking.OverlapTokens != 0 {
		c.Chunking.OverlapTokens = other.Chunking.OverlapTokens
	}

	if other.Search.NFinal != 0 {
		c.Search.NFinal = other.Search.NFinal
	}
	if other.Search.MaxChunksPerFile != 0 {
		c.Search.MaxChunksPerFile = other.Search.MaxChunksPerFile
	}
	if other.Search.K1 != 0 {
		c.Search.K1 = other.Search.K1
	}
	if other.Search.B != 0 {
		c.Search.B = other.Search.B
	}
	if other.Search.FTSBackend != "" {
		c.Search.FTSBackend = other.Search.FTSBackend
	}
	if other.Search.BM25Backend != "" {
		c.Search.BM25Backend = other.Search.BM25Backend
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.Weights.BM25 != 0 {
		c.Search.Weights.BM25 = other.Search.Weights.BM25
	}
	if other.Search.Weights.Semantic != 0 {
		c.Search.Weights.Semantic = other.Search.Weights.Semantic
	}
	if other.Search.Weights.Snippet != 0 {
		c.Search.Weights.Snippet = other.Search.Weights.Snippet
	}
	if other.Search.Weights.Recent != 0 {
		c.Search.Weights.Recent = other.Search.Weights.Recent
	}

	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.Dimension != 0 {
		c.Embedding.Dimension = other.Embedding.Dimension
	}
	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.OllamaHost != "" {
		c.Embedding.OllamaHost = other.Embedding.OllamaHost
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}

	if other.Reranker.ExactMatchBoost != 0 || other.Reranker.PathRelevanceBoost != 0 ||
		other.Reranker.RecencyBoost != 0 || other.Reranker.RecencyDaysThreshold != 0 || other.Reranker.Enabled {
		c.Reranker.Enabled = other.Reranker.Enabled
	}
	if other.Reranker.ExactMatchBoost != 0 {
		c.Reranker.ExactMatchBoost = other.Reranker.ExactMatchBoost
	}
	if other.Reranker.PathRelevanceBoost != 0 {
		c.Reranker.PathRelevanceBoost = other.Reranker.PathRelevanceBoost
	}
	if other.Reranker.RecencyBoost != 0 {
		c.Reranker.RecencyBoost = other.Reranker.RecencyBoost
	}
	if other.Reranker.RecencyDaysThreshold != 0 {
		c.Reranker.RecencyDaysThreshold = other.Reranker.RecencyDaysThreshold
	}

	if other.RepoMap.MaxFiles != 0 || other.RepoMap.Enabled {
		c.RepoMap.Enabled = other.RepoMap.Enabled
	}
	if other.RepoMap.MaxFiles != 0 {
		c.RepoMap.MaxFiles = other.RepoMap.MaxFiles
	}

	if other.Features.CodeSearch || other.Features.VectorSearch || other.Features.QueryRewrite {
		c.Features.CodeSearch = other.Features.CodeSearch
		c.Features.VectorSearch = other.Features.VectorSearch
		c.Features.QueryRewrite = other.Features.QueryRewrite
	}

	if other.Contextual.Enabled || other.Contextual.CodeChunks {
		c.Contextual.Enabled = other.Contextual.Enabled
		c.Contextual.CodeChunks = other.Contextual.CodeChunks
	}

	if other.Submodules.Enabled {
		c.Submodules.Enabled = true
	}
	if other.Submodules.Recursive {
		c.Submodules.Recursive = true
	}
	if len(other.Submodules.Include) > 0 {
		c.Submodules.Include = other.Submodules.Include
	}
	if len(other.Submodules.Exclude) > 0 {
		c.Submodules.Exclude = other.Submodules.Exclude
	}
}

// applyEnvOverrides applies RETRIVO_* environment variable overrides.
// These take precedence over both global and project config files.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RETRIVO_ENABLED"); v != "" {
		c.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("RETRIVO_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("RETRIVO_BM25_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 {
			c.Search.Weights.BM25 = w
		}
	}
	if v := os.Getenv("RETRIVO_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 {
			c.Search.Weights.Semantic = w
		}
	}
	if v := os.Getenv("RETRIVO_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("RETRIVO_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("RETRIVO_OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaHost = v
	}
	if v := os.Getenv("RETRIVO_FTS_BACKEND"); v != "" {
		c.Search.FTSBackend = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// DetectProjectType detects the project type based on marker files.
// Priority: go.mod > package.json > pyproject.toml/requirements.txt
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}
	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}
	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}
	return ProjectTypeUnknown
}

// FindProjectRoot finds the project root directory.
// It looks for a .git directory or .codex/retrieval.toml file by walking up
// the directory tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(ProjectConfigPath(currentDir)) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// DiscoverSourceDirs discovers common source directories in the project.
func DiscoverSourceDirs(dir string) []string {
	commonSourceDirs := []string{"src", "lib", "pkg", "internal", "cmd"}
	frameworkDirs := []string{"app", "pages"} // Next.js, etc.

	var found []string
	for _, d := range commonSourceDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}
	if isNextJS(dir) {
		for _, d := range frameworkDirs {
			if dirExists(filepath.Join(dir, d)) {
				found = append(found, d)
			}
		}
	}
	return found
}

// DiscoverDocsDirs discovers documentation directories in the project.
func DiscoverDocsDirs(dir string) []string {
	commonDocDirs := []string{"docs", "doc"}
	commonDocFiles := []string{"README.md", "readme.md", "README.markdown"}

	var found []string
	for _, d := range commonDocDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}
	for _, f := range commonDocFiles {
		if fileExists(filepath.Join(dir, f)) {
			found = append(found, f)
			break
		}
	}
	return found
}

// isNextJS checks if the project is a Next.js project.
func isNextJS(dir string) bool {
	pkgPath := filepath.Join(dir, "package.json")
	if !fileExists(pkgPath) {
		return false
	}

	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return false
	}

	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}

	_, hasNext := pkg.Dependencies["next"]
	_, hasNextDev := pkg.DevDependencies["next"]
	return hasNext || hasNextDev
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// String returns a string representation of ProjectType.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.K1 < 0 {
		return fmt.Errorf("search.k1 must be non-negative, got %f", c.Search.K1)
	}
	if c.Search.B < 0 || c.Search.B > 1 {
		return fmt.Errorf("search.b must be between 0 and 1, got %f", c.Search.B)
	}
	if c.Search.NFinal < 0 {
		return fmt.Errorf("search.n_final must be non-negative, got %d", c.Search.NFinal)
	}
	if c.Search.MaxChunksPerFile < 0 {
		return fmt.Errorf("search.max_chunks_per_file must be non-negative, got %d", c.Search.MaxChunksPerFile)
	}

	sum := c.Search.Weights.BM25 + c.Search.Weights.Semantic + c.Search.Weights.Snippet + c.Search.Weights.Recent
	if sum > 0 && math.Abs(sum-1.0) > 0.05 {
		return fmt.Errorf("search.weights must sum to ~1.0, got %.2f", sum)
	}

	validFTSBackends := map[string]bool{"custom": true, "bleve": true}
	if !validFTSBackends[strings.ToLower(c.Search.FTSBackend)] {
		return fmt.Errorf("search.fts_backend must be 'custom' or 'bleve', got %s", c.Search.FTSBackend)
	}

	if c.Embedding.Provider != "" {
		validProviders := map[string]bool{"ollama": true, "static": true}
		if !validProviders[strings.ToLower(c.Embedding.Provider)] {
			return fmt.Errorf("embedding.provider must be 'ollama' or 'static', got %s", c.Embedding.Provider)
		}
	}

	return nil
}

// WriteTOML writes the configuration to a TOML file.
func (c *Config) WriteTOML(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadGlobalConfig loads the global configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadGlobalConfig() (*Config, error) {
	return loadGlobalConfig()
}

// IndexWorkers returns the number of concurrent workers for the Indexing
// Manager's chunking/hashing pool, defaulting to the host's CPU count.
func IndexWorkers() int {
	return runtime.NumCPU()
}
