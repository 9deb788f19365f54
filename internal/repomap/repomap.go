// Package repomap produces a ranked structural summary of an indexed
// workspace: its most symbol-dense files, each with the top-level symbols
// it defines. The map is derived entirely from the metadata store, so it
// needs no re-parse and stays consistent with whatever the index last saw.
package repomap

import (
	"context"
	"fmt"
	"sort"

	"github.com/retrivo/core/internal/errors"
	"github.com/retrivo/core/internal/store"
)

// Request bounds the size of a generated map.
type Request struct {
	// MaxFiles caps how many files the map lists (default 200).
	MaxFiles int

	// MaxSymbolsPerFile caps the symbols listed per file (default 10).
	MaxSymbolsPerFile int
}

// SymbolEntry is one symbol line in the map.
type SymbolEntry struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	StartLine int    `json:"start_line"`
}

// FileEntry summarises one file.
type FileEntry struct {
	Path        string        `json:"path"`
	Language    string        `json:"language,omitempty"`
	ChunkCount  int           `json:"chunk_count"`
	SymbolCount int           `json:"symbol_count"`
	Symbols     []SymbolEntry `json:"symbols,omitempty"`
}

// Result is the generated map.
type Result struct {
	Files      []FileEntry `json:"files"`
	TotalFiles int         `json:"total_files"`
	Truncated  bool        `json:"truncated"`
}

// Service generates repo maps from a metadata store.
type Service struct {
	metadata store.MetadataStore
}

// NewService creates a repo-map service over the given metadata store.
func NewService(metadata store.MetadataStore) *Service {
	return &Service{metadata: metadata}
}

// Generate builds the map for projectID. Files are ranked by how many
// symbols they define (ties broken by path) on the theory that
// symbol-dense files carry the most structural signal. Returns a NotReady
// error when the project has no indexed files.
func (s *Service) Generate(ctx context.Context, projectID string, req Request) (*Result, error) {
	if req.MaxFiles <= 0 {
		req.MaxFiles = 200
	}
	if req.MaxSymbolsPerFile <= 0 {
		req.MaxSymbolsPerFile = 10
	}

	files, err := s.metadata.GetFilesForReconciliation(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New(errors.ErrCodeNotReady,
			"no indexed files for this workspace; run 'retrivo index' first", nil)
	}

	entries := make([]FileEntry, 0, len(files))
	for path, f := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		chunks, err := s.metadata.GetChunksByFile(ctx, f.ID)
		if err != nil {
			continue
		}

		entry := FileEntry{Path: path, Language: f.Language, ChunkCount: len(chunks)}
		for _, c := range chunks {
			for _, sym := range c.Symbols {
				entry.SymbolCount++
				if len(entry.Symbols) < req.MaxSymbolsPerFile {
					entry.Symbols = append(entry.Symbols, SymbolEntry{
						Name:      sym.Name,
						Kind:      string(sym.Type),
						StartLine: sym.StartLine,
					})
				}
			}
		}
		sort.Slice(entry.Symbols, func(i, j int) bool {
			return entry.Symbols[i].StartLine < entry.Symbols[j].StartLine
		})
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SymbolCount != entries[j].SymbolCount {
			return entries[i].SymbolCount > entries[j].SymbolCount
		}
		return entries[i].Path < entries[j].Path
	})

	result := &Result{TotalFiles: len(entries)}
	if len(entries) > req.MaxFiles {
		entries = entries[:req.MaxFiles]
		result.Truncated = true
	}
	result.Files = entries
	return result, nil
}
