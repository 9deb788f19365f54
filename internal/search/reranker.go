package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// RerankResult represents a single reranked result
type RerankResult struct {
	// Index is the original position in the input documents slice
	Index int
	// Score is the relevance score (0.0 to 1.0)
	Score float64
	// Document is the original document content
	Document string
}

// Reranker reranks search results using a cross-encoder model.
// Cross-encoders jointly encode query-document pairs for more accurate
// relevance scoring than bi-encoders, but at higher computational cost.
type Reranker interface {
	// Rerank scores and reorders documents by relevance to the query.
	// Returns results sorted by score descending.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - query: The search query
	//   - documents: Documents to rerank (max ~50-100 for reasonable latency)
	//   - topK: Optional limit on results (0 = return all)
	//
	// Returns:
	//   - Results sorted by score descending
	//   - Error if reranking fails
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available checks if the reranker service is available
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// NoOpReranker is a reranker that returns results in original order.
// Used when reranking is disabled or unavailable.
type NoOpReranker struct{}

// Rerank returns documents in original order with decreasing scores.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i, doc := range documents {
		// Assign decreasing scores to maintain original order
		results[i] = RerankResult{
			Index:    i,
			Score:    1.0 - float64(i)*0.01, // 1.0, 0.99, 0.98, ...
			Document: doc,
		}
	}

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}

	return results, nil
}

// Available always returns true for NoOpReranker.
func (n *NoOpReranker) Available(_ context.Context) bool {
	return true
}

// Close is a no-op for NoOpReranker.
func (n *NoOpReranker) Close() error {
	return nil
}

// Verify interface implementation at compile time
var _ Reranker = (*NoOpReranker)(nil)

// RuleRerankerConfig carries the tunable boost factors for the built-in
// rule-based reranker. Zero boosts make the corresponding rule a no-op.
type RuleRerankerConfig struct {
	// ExactMatchBoost is the multiplicative boost applied when the full
	// query appears verbatim in a result's content.
	ExactMatchBoost float64

	// PathRelevanceBoost is applied when a query token appears in the
	// result's file path.
	PathRelevanceBoost float64

	// RecencyBoost is applied to results whose file was indexed within
	// RecencyDaysThreshold days.
	RecencyBoost float64

	// RecencyDaysThreshold bounds how old a result may be and still
	// receive the recency boost.
	RecencyDaysThreshold int
}

// DefaultRuleRerankerConfig returns the default boost factors.
func DefaultRuleRerankerConfig() RuleRerankerConfig {
	return RuleRerankerConfig{
		ExactMatchBoost:      0.15,
		PathRelevanceBoost:   0.05,
		RecencyBoost:         0.05,
		RecencyDaysThreshold: 14,
	}
}

// RuleBasedReranker adjusts fused result scores with exact-phrase,
// path-relevance, and recency boosts, then re-sorts. Unlike the
// cross-encoder Reranker interface it operates on enriched SearchResults,
// because two of its three rules need the file path and index timestamp.
type RuleBasedReranker struct {
	cfg RuleRerankerConfig

	// now is injectable for recency tests.
	now func() time.Time
}

// NewRuleBasedReranker creates a rule-based reranker with the given boosts.
func NewRuleBasedReranker(cfg RuleRerankerConfig) *RuleBasedReranker {
	return &RuleBasedReranker{cfg: cfg, now: time.Now}
}

// Name identifies this reranker in logs and explain output.
func (r *RuleBasedReranker) Name() string {
	return "rule-based"
}

// RerankResults applies the boost rules to results in place and re-sorts
// them by adjusted score (stable, so untouched results keep their order).
func (r *RuleBasedReranker) RerankResults(query string, results []*SearchResult) {
	if len(results) == 0 {
		return
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))
	queryTokens := tokenize(queryLower)
	cutoff := r.now().AddDate(0, 0, -r.cfg.RecencyDaysThreshold)

	for _, res := range results {
		if res.Chunk == nil {
			continue
		}
		factor := 1.0

		if r.cfg.ExactMatchBoost > 0 && queryLower != "" &&
			strings.Contains(strings.ToLower(res.Chunk.Content), queryLower) {
			factor *= 1 + r.cfg.ExactMatchBoost
		}

		if r.cfg.PathRelevanceBoost > 0 {
			pathLower := strings.ToLower(res.Chunk.FilePath)
			for _, tok := range queryTokens {
				if len(tok) >= 3 && strings.Contains(pathLower, tok) {
					factor *= 1 + r.cfg.PathRelevanceBoost
					break
				}
			}
		}

		if r.cfg.RecencyBoost > 0 && r.cfg.RecencyDaysThreshold > 0 &&
			!res.Chunk.UpdatedAt.IsZero() && res.Chunk.UpdatedAt.After(cutoff) {
			factor *= 1 + r.cfg.RecencyBoost
		}

		if factor != 1.0 {
			res.Score *= factor
			slog.Debug("rule_rerank_boost",
				slog.String("file", res.Chunk.FilePath),
				slog.Float64("factor", factor),
				slog.Float64("score", res.Score))
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
