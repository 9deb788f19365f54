package search

import "strings"

// RewrittenQuery is the result of Query Rewriter: the original query text,
// the rewritten form actually sent to search, any synonym expansions
// collected along the way, and whether language translation occurred.
//
// No translation backend is implemented here (translation belongs to an
// external collaborator); WasTranslated is always false for the
// default rewriter but is kept in the contract so a caller wiring in a
// translating rewriter doesn't need a different return type.
type RewrittenQuery struct {
	Original      string
	Rewritten     string
	Expansions    []string
	WasTranslated bool
}

// QueryRewriter is a pure function over a query string. The Service calls it
// only when the `query_rewrite` feature is enabled; the effective query used
// for search is Rewritten, which folds in Expansions as synonyms.
type QueryRewriter struct {
	expander *QueryExpander
}

// NewQueryRewriter builds a rewriter around the given expander. A nil
// expander falls back to NewQueryExpander()'s defaults.
func NewQueryRewriter(expander *QueryExpander) *QueryRewriter {
	if expander == nil {
		expander = NewQueryExpander()
	}
	return &QueryRewriter{expander: expander}
}

// Rewrite expands query with code-vocabulary synonyms and returns both the
// original and rewritten forms for observability.
func (r *QueryRewriter) Rewrite(query string) RewrittenQuery {
	trimmed := strings.TrimSpace(query)
	rewritten := r.expander.Expand(trimmed)

	originalTerms := make(map[string]bool)
	for _, t := range tokenize(trimmed) {
		originalTerms[strings.ToLower(t)] = true
	}

	var expansions []string
	for _, t := range tokenize(rewritten) {
		if !originalTerms[strings.ToLower(t)] {
			expansions = append(expansions, t)
		}
	}

	return RewrittenQuery{
		Original:      trimmed,
		Rewritten:     rewritten,
		Expansions:    expansions,
		WasTranslated: false,
	}
}
