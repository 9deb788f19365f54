// Package snippet implements the symbol-keyed Snippet Index: a store over
// tag records that answers "type:<kind>" and "name:<ident>" queries (and
// mixed free text) without going through BM25 or vector search.
package snippet

import (
	"sort"
	"strings"
	"sync"

	"github.com/retrivo/core/internal/tags"
)

// Result is a single snippet-index hit. Its chunk content is synthesised
// from the tag's own line range by the caller (the Snippet Index has no
// file-content dependency).
type Result struct {
	Tag   tags.Tag
	Score float64
}

// Index is an in-memory, symbol-keyed store over tags.Tag records, grouped
// by file so it can be rebuilt incrementally as files are reindexed.
//
// It is intentionally not persisted: tags are cheap to recompute from a
// file's content (the Tag Extractor is a pure function), so unlike the BM25
// and vector indices the Snippet Index is treated as a derived, in-memory
// cache rebuilt from the catalog on startup rather than a durable store.
type Index struct {
	mu      sync.RWMutex
	byFile  map[string][]tags.Tag
	byName  map[string][]tags.Tag
	byKind  map[tags.Kind][]tags.Tag
}

// New creates an empty Snippet Index.
func New() *Index {
	return &Index{
		byFile: make(map[string][]tags.Tag),
		byName: make(map[string][]tags.Tag),
		byKind: make(map[tags.Kind][]tags.Tag),
	}
}

// IndexTags replaces all tags previously stored for filePath with newTags.
// This mirrors the delete-then-insert batch discipline used by the BM25 and
// Vector Store so that concurrent readers always see a consistent
// pre- or post-update snapshot for a given file.
func (idx *Index) IndexTags(filePath string, newTags []tags.Tag) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(filePath)
	if len(newTags) == 0 {
		return
	}
	idx.byFile[filePath] = append([]tags.Tag(nil), newTags...)
	for _, t := range newTags {
		idx.byName[t.Symbol] = append(idx.byName[t.Symbol], t)
		idx.byKind[t.Kind] = append(idx.byKind[t.Kind], t)
	}
}

// RemoveByFilePath deletes all tags for filePath, mirroring
// BM25Index.remove_chunks_by_filepath / delete_by_filepath on the embedding
// cache so a deleted file leaves no symbol-index residue.
func (idx *Index) RemoveByFilePath(filePath string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(filePath)
}

func (idx *Index) removeLocked(filePath string) {
	old, ok := idx.byFile[filePath]
	if !ok {
		return
	}
	delete(idx.byFile, filePath)
	for _, t := range old {
		idx.byName[t.Symbol] = removeTag(idx.byName[t.Symbol], filePath, t)
		if len(idx.byName[t.Symbol]) == 0 {
			delete(idx.byName, t.Symbol)
		}
		idx.byKind[t.Kind] = removeTag(idx.byKind[t.Kind], filePath, t)
		if len(idx.byKind[t.Kind]) == 0 {
			delete(idx.byKind, t.Kind)
		}
	}
}

func removeTag(list []tags.Tag, filePath string, target tags.Tag) []tags.Tag {
	out := list[:0]
	for _, t := range list {
		if t.FilePath == filePath && t.StartLine == target.StartLine && t.Symbol == target.Symbol {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Count returns the total number of tags currently indexed.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	total := 0
	for _, ts := range idx.byFile {
		total += len(ts)
	}
	return total
}

// IsSymbolQuery reports whether query uses "type:" / "name:" syntax, which
// the Hybrid Searcher uses to decide whether to dispatch a snippet search
// and to pick the symbol-biased RRF weight profile.
func IsSymbolQuery(query string) bool {
	q := strings.TrimSpace(query)
	return strings.HasPrefix(q, "type:") || strings.HasPrefix(q, "name:") ||
		strings.Contains(q, " type:") || strings.Contains(q, " name:")
}

// Search answers "type:<kind>", "name:<ident>", and mixed free-text queries.
// Results are ordered by score desc, then by (file, start line) for a
// deterministic tie-break.
func (idx *Index) Search(query string, limit int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	terms := strings.Fields(query)
	var kindFilter tags.Kind
	var nameFilter string
	var free []string

	for _, term := range terms {
		switch {
		case strings.HasPrefix(term, "type:"):
			kindFilter = tags.Kind(capitalize(strings.TrimPrefix(term, "type:")))
		case strings.HasPrefix(term, "name:"):
			nameFilter = strings.TrimPrefix(term, "name:")
		default:
			free = append(free, term)
		}
	}

	candidates := idx.candidates(kindFilter, nameFilter, free)

	results := make([]Result, 0, len(candidates))
	for _, t := range candidates {
		results = append(results, Result{Tag: t, Score: score(t, kindFilter, nameFilter, free)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Tag.FilePath != results[j].Tag.FilePath {
			return results[i].Tag.FilePath < results[j].Tag.FilePath
		}
		return results[i].Tag.StartLine < results[j].Tag.StartLine
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (idx *Index) candidates(kindFilter tags.Kind, nameFilter string, free []string) []tags.Tag {
	switch {
	case nameFilter != "":
		return append([]tags.Tag(nil), idx.byName[nameFilter]...)
	case kindFilter != "":
		return append([]tags.Tag(nil), idx.byKind[kindFilter]...)
	default:
		var all []tags.Tag
		for _, ts := range idx.byFile {
			all = append(all, ts...)
		}
		if len(free) == 0 {
			return all
		}
		var matched []tags.Tag
		for _, t := range all {
			if matchesFreeText(t, free) {
				matched = append(matched, t)
			}
		}
		return matched
	}
}

func matchesFreeText(t tags.Tag, terms []string) bool {
	lower := strings.ToLower(t.Symbol)
	for _, term := range terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func score(t tags.Tag, kindFilter tags.Kind, nameFilter string, free []string) float64 {
	s := 1.0
	if nameFilter != "" && strings.EqualFold(t.Symbol, nameFilter) {
		s += 1.0
	}
	if kindFilter != "" && t.Kind == kindFilter {
		s += 0.5
	}
	// Symbols redefined across the file (References > 1, e.g. interface +
	// multiple implementations) are slightly demoted: a unique definition
	// is usually what "name:X" is looking for.
	if t.References > 1 {
		s -= 0.1
	}
	return s
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
