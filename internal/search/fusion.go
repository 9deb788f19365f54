// Package search provides hybrid search functionality combining BM25,
// semantic, snippet, and recent-files signals. Results are fused using
// Reciprocal Rank Fusion (RRF).
package search

import (
	"sort"
	"strings"

	"github.com/retrivo/core/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains (used by Azure AI Search, OpenSearch, etc.).
const DefaultRRFConstant = 60

// SnippetCandidate is a snippet-index hit entering fusion as its own
// ranked source. A snippet hit references a symbol's line range rather
// than a stored chunk, so the candidate carries what enrichment needs to
// synthesize a chunk when no stored chunk shares its ID.
type SnippetCandidate struct {
	ID        string // "<filepath>#<symbol>"
	FilePath  string
	Symbol    string
	StartLine int
	EndLine   int
}

// FusedResult represents a single result after RRF fusion.
type FusedResult struct {
	ChunkID      string            // Chunk identifier
	RRFScore     float64           // Combined RRF score (normalized 0-1)
	BM25Score    float64           // Original BM25 score (preserved)
	BM25Rank     int               // Position in BM25 list (1-indexed, 0 if absent)
	VecScore     float64           // Original vector similarity score (preserved)
	VecRank      int               // Position in vector list (1-indexed, 0 if absent)
	SnippetRank  int               // Position in snippet list (1-indexed, 0 if absent)
	RecentRank   int               // Position in recent-files list (1-indexed, 0 if absent)
	InBothLists  bool              // Document appeared in both BM25 and vector lists
	MatchedTerms []string          // BM25 matched terms (for highlighting)
	Snippet      *SnippetCandidate // Set when the document came from the snippet source

	// arrival is the 0-indexed order of first appearance across the input
	// lists, the final tie-break so fusion is stable on input order.
	arrival int
}

// RRFFusion combines the ranked search sources using the Reciprocal Rank
// Fusion algorithm.
//
// Algorithm: RRF_score(d) = Σ weight_s / (k + rank_s(d))
//
// Where:
//   - k = smoothing constant (default: 60)
//   - rank_s = position in ranked list s (1-indexed)
//   - weight_s = weight for search source s
type RRFFusion struct {
	K int // RRF smoothing constant (default: 60)
}

// NewRRFFusion creates a new RRF fusion instance with default k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates a new RRF fusion with custom k value.
// If k <= 0, defaults to 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines the four ranked sources — BM25, vector, snippet, and
// recent files — using Reciprocal Rank Fusion with per-source weights.
//
// BM25 and vector are the dense sources: documents appearing in only one
// of them receive the other's contribution at missing_rank =
// max(len(bm25), len(vec)) + 1. Snippet and recent are sparse signals and
// contribute only where they rank something: snippet hits enter as their
// own documents, and recent is a per-file boost that never creates a
// document by itself (a path alone has no content to return).
//
// Ties break stably on input order: the document that appeared first
// across the input lists wins.
func (f *RRFFusion) Fuse(
	bm25 []*store.BM25Result,
	vec []*store.VectorResult,
	snip []*SnippetCandidate,
	recentPaths []string,
	weights Weights,
) []*FusedResult {
	// Return empty slice, not nil, for consistent API behavior (DEBT-012)
	if len(bm25) == 0 && len(vec) == 0 && len(snip) == 0 {
		return []*FusedResult{}
	}

	capacity := len(bm25) + len(vec) + len(snip)
	scores := make(map[string]*FusedResult, capacity)
	arrivals := 0

	// Process BM25 results (1-indexed ranks)
	for rank, r := range bm25 {
		result := f.getOrCreate(scores, r.DocID, &arrivals)
		result.BM25Score = r.Score
		result.BM25Rank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		result.RRFScore += weights.BM25 / float64(f.K+rank+1)
	}

	// Process vector results (1-indexed ranks)
	for rank, r := range vec {
		result := f.getOrCreate(scores, r.ID, &arrivals)
		result.VecScore = float64(r.Score)
		result.VecRank = rank + 1
		result.RRFScore += weights.Semantic / float64(f.K+rank+1)

		// Mark if in both dense lists
		if result.BM25Rank > 0 {
			result.InBothLists = true
		}
	}

	// Process snippet results (1-indexed ranks)
	for rank, cand := range snip {
		result := f.getOrCreate(scores, cand.ID, &arrivals)
		result.SnippetRank = rank + 1
		result.Snippet = cand
		result.RRFScore += weights.Snippet / float64(f.K+rank+1)
	}

	// Handle documents in only one dense list (use missing_rank)
	missingRank := f.calculateMissingRank(len(bm25), len(vec))
	for _, r := range scores {
		if r.BM25Rank == 0 && r.VecRank > 0 {
			// Document only in vector results - add BM25 contribution at missing_rank
			r.RRFScore += weights.BM25 / float64(f.K+missingRank)
		}
		if r.VecRank == 0 && r.BM25Rank > 0 {
			// Document only in BM25 results - add semantic contribution at missing_rank
			r.RRFScore += weights.Semantic / float64(f.K+missingRank)
		}
	}

	// Recent files boost documents whose file appears in the ranked
	// recent-paths list.
	if len(recentPaths) > 0 && weights.Recent > 0 {
		recentRank := make(map[string]int, len(recentPaths))
		for i, p := range recentPaths {
			recentRank[p] = i + 1
		}
		for _, r := range scores {
			path := r.documentPath()
			if path == "" {
				continue
			}
			if rank, ok := recentRank[path]; ok {
				r.RecentRank = rank
				r.RRFScore += weights.Recent / float64(f.K+rank)
			}
		}
	}

	// Convert to sorted slice
	results := f.toSortedSlice(scores)

	// Normalize scores to 0-1 range
	f.normalize(results)

	return results
}

// documentPath extracts the file path a fused document belongs to: the
// snippet candidate's path when present, otherwise the <relpath> segment
// of the ordinal chunk ID "<workspace>:<relpath>:<ordinal>".
func (r *FusedResult) documentPath() string {
	if r.Snippet != nil {
		return r.Snippet.FilePath
	}
	first := strings.Index(r.ChunkID, ":")
	last := strings.LastIndex(r.ChunkID, ":")
	if first < 0 || last <= first {
		return ""
	}
	return r.ChunkID[first+1 : last]
}

// getOrCreate returns existing result or creates new one, stamping the
// order of first appearance for the input-order tie-break.
func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string, arrivals *int) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id, arrival: *arrivals}
	*arrivals++
	m[id] = r
	return r
}

// calculateMissingRank returns rank for documents not in a list.
// Uses max(len1, len2) + 1 to penalize missing documents appropriately.
func (f *RRFFusion) calculateMissingRank(bm25Len, vecLen int) int {
	if bm25Len > vecLen {
		return bm25Len + 1
	}
	return vecLen + 1
}

// toSortedSlice converts map to slice and sorts by RRF score with tie-breaking.
func (f *RRFFusion) toSortedSlice(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	return results
}

// compare implements deterministic comparison for sorting.
// Returns true if a should rank before b.
//
// Priority:
//  1. Higher RRF score
//  2. In both dense lists (true before false)
//  3. Higher BM25 score (exact match indicator)
//  4. Earlier first appearance across the input lists (input-order stable)
func (f *RRFFusion) compare(a, b *FusedResult) bool {
	// Primary: Higher RRF score ranks first
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}

	// Tie-break 1: Prefer documents in both lists
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}

	// Tie-break 2: Prefer higher BM25 score (exact match indicator)
	if a.BM25Score != b.BM25Score {
		return a.BM25Score > b.BM25Score
	}

	// Tie-break 3: Stable on input order
	return a.arrival < b.arrival
}

// normalize scales all RRF scores to 0-1 range.
// Uses the maximum score as the reference (becomes 1.0).
func (f *RRFFusion) normalize(results []*FusedResult) {
	if len(results) == 0 {
		return
	}

	// Results are sorted, first has max score
	maxScore := results[0].RRFScore
	if maxScore == 0 {
		return
	}

	for _, r := range results {
		r.RRFScore = r.RRFScore / maxScore
	}
}
