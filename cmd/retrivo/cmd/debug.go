package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/retrivo/core/internal/config"
	"github.com/retrivo/core/internal/embed"
	"github.com/retrivo/core/internal/store"
)

// DebugInfo aggregates everything `retrivo debug` reports about an index:
// counts, embedder configuration, language breakdown, and storage footprint.
type DebugInfo struct {
	IndexPath        string             `json:"index_path"`
	ProjectRoot      string             `json:"project_root"`
	FileCount        int                `json:"file_count"`
	ChunkCount       int                `json:"chunk_count"`
	LastIndexed      time.Time          `json:"last_indexed"`
	Languages        map[string]float64 `json:"languages"`
	EmbedderProvider string             `json:"embedder_provider"`
	EmbedderModel    string             `json:"embedder_model"`
	EmbeddedChunks   int                `json:"embedded_chunks"`
	MissingChunks    int                `json:"missing_chunks"`
	BM25SizeBytes    int64              `json:"bm25_size_bytes"`
	VectorSizeBytes  int64              `json:"vector_size_bytes"`
	MetadataSize     int64              `json:"metadata_size_bytes"`
}

func newDebugCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "debug [path]",
		Short: "Show detailed internal index diagnostics",
		Long: `Display low-level diagnostics about the index: file/chunk counts,
language breakdown, embedder configuration, embedding coverage, and
on-disk storage sizes. Intended for troubleshooting, not routine use.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runDebug(cmd.Context(), cmd, path, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDebug(ctx context.Context, cmd *cobra.Command, path string, jsonOutput bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".retrivo")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if !fileExists(metadataPath) {
		return fmt.Errorf("no index found at %s\nRun 'retrivo index %s' to create one", dataDir, path)
	}

	info, err := collectDebugInfo(ctx, root, dataDir)
	if err != nil {
		return fmt.Errorf("failed to collect debug info: %w", err)
	}

	if jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	}

	return renderDebugInfo(cmd, info)
}

func collectDebugInfo(ctx context.Context, root, dataDir string) (DebugInfo, error) {
	info := DebugInfo{
		IndexPath:   dataDir,
		ProjectRoot: root,
		Languages:   map[string]float64{},
	}

	metadataPath := filepath.Join(dataDir, "metadata.db")
	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		return info, fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadata.Close() }()

	projectID := hashString(root)
	project, err := metadata.GetProject(ctx, projectID)
	if err == nil && project != nil {
		info.FileCount = project.FileCount
		info.ChunkCount = project.ChunkCount
		info.LastIndexed = project.IndexedAt
	}

	langCounts := map[string]int{}
	total := 0
	cursor := ""
	for {
		files, next, err := metadata.ListFiles(ctx, projectID, cursor, 500)
		if err != nil {
			break
		}
		for _, f := range files {
			lang := normalizeExtension(f.Language)
			if lang == "" {
				lang = "unknown"
			}
			langCounts[lang]++
			total++
		}
		if next == "" || len(files) == 0 {
			break
		}
		cursor = next
	}
	if total > 0 {
		for lang, count := range langCounts {
			info.Languages[lang] = float64(count) / float64(total)
		}
	}

	withEmbedding, withoutEmbedding, err := metadata.GetEmbeddingStats(ctx)
	if err == nil {
		info.EmbeddedChunks = withEmbedding
		info.MissingChunks = withoutEmbedding
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	info.EmbedderProvider = cfg.Embedding.Provider
	if info.EmbedderProvider == "" {
		info.EmbedderProvider = string(embed.ProviderOllama)
	}
	info.EmbedderModel = cfg.Embedding.Model
	if info.EmbedderModel == "" {
		info.EmbedderModel = "nomic-embed-text"
	}

	info.MetadataSize = getFileSize(metadataPath)
	if size := getFileSize(filepath.Join(dataDir, "bm25.db")); size > 0 {
		info.BM25SizeBytes = size
	} else {
		info.BM25SizeBytes = getDirSize(filepath.Join(dataDir, "bm25.bleve"))
	}
	info.VectorSizeBytes = getFileSize(filepath.Join(dataDir, "vectors.hnsw"))

	return info, nil
}

func renderDebugInfo(cmd *cobra.Command, info DebugInfo) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Retrivo Debug Info")
	fmt.Fprintln(out, "==================")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Index:   %s\n", info.IndexPath)
	fmt.Fprintf(out, "Project: %s\n", info.ProjectRoot)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "FILES & CHUNKS")
	fmt.Fprintf(out, "  Files:        %s\n", formatNumber(info.FileCount))
	fmt.Fprintf(out, "  Chunks:       %s\n", formatNumber(info.ChunkCount))
	fmt.Fprintf(out, "  Last indexed: %s\n", formatAge(info.LastIndexed))
	fmt.Fprintf(out, "  Languages:    %s\n", formatLanguages(info.Languages))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "EMBEDDER")
	fmt.Fprintf(out, "  Provider: %s\n", info.EmbedderProvider)
	fmt.Fprintf(out, "  Model:    %s\n", info.EmbedderModel)
	fmt.Fprintf(out, "  Coverage: %s embedded, %s missing\n",
		formatNumber(info.EmbeddedChunks), formatNumber(info.MissingChunks))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "BM25 INDEX")
	fmt.Fprintf(out, "  Size: %s\n", store.FormatBytes(info.BM25SizeBytes))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "VECTOR STORE")
	fmt.Fprintf(out, "  Size: %s\n", store.FormatBytes(info.VectorSizeBytes))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "STORAGE")
	fmt.Fprintf(out, "  Metadata: %s\n", store.FormatBytes(info.MetadataSize))
	fmt.Fprintf(out, "  Total:    %s\n",
		store.FormatBytes(info.MetadataSize+info.BM25SizeBytes+info.VectorSizeBytes))

	return nil
}

// formatAge renders a timestamp as a short relative age, "unknown" for the zero value.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

// formatNumber adds thousands separators to an integer for readability.
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var groups []string
	for len(s) > 3 {
		groups = append([]string{s[len(s)-3:]}, groups...)
		s = s[:len(s)-3]
	}
	groups = append([]string{s}, groups...)

	result := strings.Join(groups, ",")
	if neg {
		result = "-" + result
	}
	return result
}

// formatLanguages renders a language→fraction map sorted by descending share.
func formatLanguages(langs map[string]float64) string {
	if len(langs) == 0 {
		return "none"
	}

	type entry struct {
		lang string
		frac float64
	}
	entries := make([]entry, 0, len(langs))
	for lang, frac := range langs {
		entries = append(entries, entry{lang, frac})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].frac != entries[j].frac {
			return entries[i].frac > entries[j].frac
		}
		return entries[i].lang < entries[j].lang
	})

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s (%.0f%%)", e.lang, e.frac*100)
	}
	return strings.Join(parts, ", ")
}

// normalizeExtension collapses language aliases to a canonical short name.
func normalizeExtension(lang string) string {
	switch strings.ToLower(lang) {
	case "tsx":
		return "ts"
	case "jsx", "mjs":
		return "js"
	case "yml":
		return "yaml"
	case "htm":
		return "html"
	default:
		return strings.ToLower(lang)
	}
}
