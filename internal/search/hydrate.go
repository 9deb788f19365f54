package search

import (
	"os"
	"path/filepath"
	"strings"
)

// ScoreType identifies which search source produced a result's score.
type ScoreType string

const (
	ScoreTypeBm25    ScoreType = "Bm25"
	ScoreTypeVector  ScoreType = "Vector"
	ScoreTypeSnippet ScoreType = "Snippet"
	ScoreTypeFused   ScoreType = "Fused"
	ScoreTypeRecent  ScoreType = "Recent"
)

// Hydrate replaces each result's chunk content with what's currently on disk
// at workspaceRoot, extracting [StartLine, EndLine] verbatim, and marks
// IsStale according to whether the fresh read differs from what was
// indexed. Files that no longer exist fall back to the indexed content with
// IsStale forced true, matching the hydration contract: hydration errors
// degrade to indexed content rather than dropping the result.
//
// Hydrate mutates results in place (cheap: it only touches Chunk.Content
// and IsStale) and also returns the slice for chaining.
func Hydrate(results []*SearchResult, workspaceRoot string) []*SearchResult {
	if workspaceRoot == "" {
		return results
	}

	type fileLines struct {
		lines []string
		err   error
	}
	cache := make(map[string]*fileLines)

	for _, r := range results {
		if r == nil || r.Chunk == nil {
			continue
		}
		path := r.Chunk.FilePath
		fl, ok := cache[path]
		if !ok {
			fl = &fileLines{}
			abs := filepath.Join(workspaceRoot, path)
			data, err := os.ReadFile(abs)
			if err != nil {
				fl.err = err
			} else {
				fl.lines = strings.Split(string(data), "\n")
			}
			cache[path] = fl
		}

		stale := false
		if fl.err != nil {
			stale = true
		} else {
			fresh, ok := extractLines(fl.lines, r.Chunk.StartLine, r.Chunk.EndLine)
			if !ok {
				stale = true
			} else if fresh != r.Chunk.Content {
				r.Chunk.Content = fresh
				stale = true
			}
		}
		r.IsStale = &stale
	}

	return results
}

// extractLines pulls the 1-indexed, inclusive [start, end] line range out of
// lines, joined with "\n". Returns ok=false if the range no longer exists
// (file shrank below start).
func extractLines(lines []string, start, end int) (string, bool) {
	if start < 1 || start > len(lines) {
		return "", false
	}
	if end < start {
		end = start
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n"), true
}
