package search

import "sort"

// DefaultMaxChunksPerFile is the fallback per-file result cap applied when
// EngineConfig/SearchOptions don't specify one.
const DefaultMaxChunksPerFile = 2

// DedupOverlapping removes lower-scoring results whose chunk overlaps
// another, higher-scoring result's line range in the same file. Two chunks
// overlap when their [StartLine, EndLine] ranges intersect.
//
// Results must already be sorted by Score descending (the normal state
// after fusion/reranking) so that the first result seen for an overlapping
// region is always the highest scoring one.
func DedupOverlapping(results []*SearchResult) []*SearchResult {
	if len(results) <= 1 {
		return results
	}

	type span struct{ start, end int }
	kept := make([]*SearchResult, 0, len(results))
	seen := make(map[string][]span)

	for _, r := range results {
		if r == nil || r.Chunk == nil {
			kept = append(kept, r)
			continue
		}
		path := r.Chunk.FilePath
		overlaps := false
		for _, s := range seen[path] {
			if r.Chunk.StartLine <= s.end && r.Chunk.EndLine >= s.start {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		seen[path] = append(seen[path], span{r.Chunk.StartLine, r.Chunk.EndLine})
		kept = append(kept, r)
	}

	return kept
}

// ApplyPerFileCap keeps at most maxPerFile results for any single file,
// preserving their relative order (and therefore preferring the
// higher-scoring ones, since results are expected to already be sorted by
// score descending). maxPerFile <= 0 disables the cap.
func ApplyPerFileCap(results []*SearchResult, maxPerFile int) []*SearchResult {
	if maxPerFile <= 0 || len(results) == 0 {
		return results
	}

	counts := make(map[string]int)
	kept := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		if r == nil || r.Chunk == nil {
			kept = append(kept, r)
			continue
		}
		path := r.Chunk.FilePath
		if counts[path] >= maxPerFile {
			continue
		}
		counts[path]++
		kept = append(kept, r)
	}
	return kept
}

// ApplyPageRankBoost multiplies each result's score by
// 1 + (boostFactor-1) * (pagerank[file]/maxPagerank) for files present in
// pagerank — the file with the single highest pagerank value gets the full
// boostFactor multiplier, and others scale down linearly with their
// pagerank. Files absent from pagerank are left unchanged. Results are
// re-sorted by score descending afterward.
func ApplyPageRankBoost(results []*SearchResult, pagerank map[string]float64, boostFactor float64) []*SearchResult {
	if len(results) == 0 || len(pagerank) == 0 || boostFactor <= 1.0 {
		return results
	}

	maxPagerank := 0.0
	for _, score := range pagerank {
		if score > maxPagerank {
			maxPagerank = score
		}
	}
	if maxPagerank <= 0 {
		return results
	}

	for _, r := range results {
		if r == nil || r.Chunk == nil {
			continue
		}
		score, ok := pagerank[r.Chunk.FilePath]
		if !ok {
			continue
		}
		multiplier := 1 + (boostFactor-1)*(score/maxPagerank)
		r.Score *= multiplier
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}
