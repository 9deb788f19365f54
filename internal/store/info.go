package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EmbedderInfoInput carries the current embedder's identity into GetIndexInfo
// for compatibility comparison against what the index was built with.
type EmbedderInfoInput struct {
	Model      string
	Backend    string
	Dimensions int
}

// GetIndexInfo assembles a comprehensive snapshot of an index for the
// `retrivo index info` command: where it lives, what it was built with,
// its size on disk, and whether the currently configured embedder is
// compatible with it.
func GetIndexInfo(ctx context.Context, metadata MetadataStore, dataDir string, current *EmbedderInfoInput) (*IndexInfo, error) {
	root := filepath.Dir(dataDir)
	projectID := hashProjectRoot(root)

	info := &IndexInfo{
		Location:    dataDir,
		ProjectRoot: root,
	}

	project, err := metadata.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project != nil {
		info.DocumentCount = project.FileCount
		info.ChunkCount = project.ChunkCount
		info.CreatedAt = project.IndexedAt
		info.UpdatedAt = project.IndexedAt
	}

	if dim, err := metadata.GetState(ctx, StateKeyIndexDimension); err == nil && dim != "" {
		if n, convErr := strconv.Atoi(dim); convErr == nil {
			info.IndexDimensions = n
		}
	}
	if model, err := metadata.GetState(ctx, StateKeyIndexModel); err == nil && model != "" {
		info.IndexModel = model
		info.IndexBackend = inferBackendFromModel(model)
	}

	info.BM25SizeBytes = bm25SizeOnDisk(dataDir)
	info.VectorSizeBytes = getFileSize(filepath.Join(dataDir, "vectors.hnsw"))
	info.IndexSizeBytes = getFileSize(filepath.Join(dataDir, "metadata.db")) + info.BM25SizeBytes + info.VectorSizeBytes

	if current != nil {
		info.CurrentModel = current.Model
		info.CurrentBackend = current.Backend
		info.CurrentDimensions = current.Dimensions
		info.Compatible = info.IndexDimensions == 0 || info.IndexDimensions == current.Dimensions
	}

	return info, nil
}

// hashProjectRoot derives the stable project ID used throughout the
// metadata store from its root path. Mirrors the hashing scheme used when
// a project is first saved during indexing.
func hashProjectRoot(root string) string {
	h := sha256.Sum256([]byte(root))
	return hex.EncodeToString(h[:])[:16]
}

// inferBackendFromModel classifies a stored embedder model name into a
// backend label for display, since the index only persists the model name.
func inferBackendFromModel(model string) string {
	switch {
	case model == "static" || model == "static768":
		return "static"
	case strings.HasPrefix(model, "/"):
		return "mlx"
	case containsAny(model, []string{"mlx-", "mlx_"}):
		return "mlx"
	default:
		return "ollama"
	}
}

// containsAny reports whether s contains any of the given substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// FormatBytes formats a byte count into a human-readable string.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatTime formats a timestamp for display, reporting "unknown" for the
// zero value rather than the year-1 default Go formats it as.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02 15:04:05")
}

// getFileSize returns the size of a file in bytes, or 0 if it doesn't exist.
func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// getDirSize returns the total size of all files in a directory tree.
func getDirSize(path string) int64 {
	var size int64

	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return size
}

// bm25SizeOnDisk sums the BM25 index's on-disk footprint across both
// supported backends (SQLite FTS5 file, or the legacy Bleve directory).
func bm25SizeOnDisk(dataDir string) int64 {
	if size := getFileSize(filepath.Join(dataDir, "bm25.db")); size > 0 {
		return size
	}
	return getDirSize(filepath.Join(dataDir, "bm25.bleve"))
}
