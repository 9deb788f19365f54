// Package tags extracts symbol definitions from parsed source files for
// symbol search and parent-context annotation. It reuses the tree-sitter
// grammars and symbol tables already wired into internal/chunk rather than
// maintaining a second set of language queries.
package tags

import (
	"context"
	"fmt"
	"sort"

	"github.com/retrivo/core/internal/chunk"
	"github.com/retrivo/core/internal/store"
)

// Kind mirrors chunk.SymbolType with the vocabulary the retrieval layer
// expects (Function, Class, Method, ...).
type Kind string

const (
	KindFunction  Kind = "Function"
	KindClass     Kind = "Class"
	KindInterface Kind = "Interface"
	KindType      Kind = "Type"
	KindMethod    Kind = "Method"
	KindVariable  Kind = "Variable"
	KindConstant  Kind = "Constant"
)

func kindFromSymbolType(t chunk.SymbolType) Kind {
	switch t {
	case chunk.SymbolTypeFunction:
		return KindFunction
	case chunk.SymbolTypeClass:
		return KindClass
	case chunk.SymbolTypeInterface:
		return KindInterface
	case chunk.SymbolTypeType:
		return KindType
	case chunk.SymbolTypeMethod:
		return KindMethod
	case chunk.SymbolTypeVariable:
		return KindVariable
	case chunk.SymbolTypeConstant:
		return KindConstant
	default:
		return Kind(t)
	}
}

func kindFromStoreSymbolType(t store.SymbolType) Kind {
	switch t {
	case store.SymbolTypeFunction:
		return KindFunction
	case store.SymbolTypeClass:
		return KindClass
	case store.SymbolTypeInterface:
		return KindInterface
	case store.SymbolTypeType:
		return KindType
	case store.SymbolTypeMethod:
		return KindMethod
	case store.SymbolTypeVariable:
		return KindVariable
	case store.SymbolTypeConstant:
		return KindConstant
	default:
		return Kind(t)
	}
}

// Tag is a single symbol definition extracted from a file.
type Tag struct {
	FilePath   string
	Symbol     string
	Kind       Kind
	StartLine  int // 1-indexed
	EndLine    int // inclusive
	References int // number of definitions sharing this symbol name in the file
}

// Extractor parses file content with tree-sitter and yields Tags. It is a
// pure function of (content, language): given the same bytes and language it
// always produces the same tags, so callers may cache results by
// (workspace, relpath, content_hash) as the catalog does for CatalogEntry.
type Extractor struct {
	parser    *chunk.Parser
	extractor *chunk.SymbolExtractor
	registry  *chunk.LanguageRegistry
}

// NewExtractor builds an Extractor over the default language registry.
func NewExtractor() *Extractor {
	registry := chunk.DefaultRegistry()
	return &Extractor{
		parser:    chunk.NewParserWithRegistry(registry),
		extractor: chunk.NewSymbolExtractorWithRegistry(registry),
		registry:  registry,
	}
}

// Close releases the underlying tree-sitter parser.
func (e *Extractor) Close() {
	e.parser.Close()
}

// Extract parses content for language and returns its Tags. Parse failures
// and unsupported languages are non-fatal: the file is simply reported with
// no tags, matching the "errors are non-fatal per file" contract.
func (e *Extractor) Extract(ctx context.Context, filePath string, content []byte, language string) []Tag {
	if _, ok := e.registry.GetByName(language); !ok {
		return nil
	}

	tree, err := e.parser.Parse(ctx, content, language)
	if err != nil || tree == nil {
		return nil
	}

	symbols := e.extractor.Extract(tree, content)
	if len(symbols) == 0 {
		return nil
	}

	counts := make(map[string]int, len(symbols))
	for _, s := range symbols {
		counts[s.Name]++
	}

	result := make([]Tag, 0, len(symbols))
	for _, s := range symbols {
		result = append(result, Tag{
			FilePath:   filePath,
			Symbol:     s.Name,
			Kind:       kindFromSymbolType(s.Type),
			StartLine:  s.StartLine,
			EndLine:    s.EndLine,
			References: counts[s.Name],
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartLine != result[j].StartLine {
			return result[i].StartLine < result[j].StartLine
		}
		return result[i].Symbol < result[j].Symbol
	})

	return result
}

// FromSymbols builds Tags from symbols a chunker already extracted while
// parsing filePath, avoiding a second tree-sitter pass over the same file.
func FromSymbols(filePath string, symbols []*chunk.Symbol) []Tag {
	if len(symbols) == 0 {
		return nil
	}

	counts := make(map[string]int, len(symbols))
	for _, s := range symbols {
		counts[s.Name]++
	}

	result := make([]Tag, 0, len(symbols))
	for _, s := range symbols {
		result = append(result, Tag{
			FilePath:   filePath,
			Symbol:     s.Name,
			Kind:       kindFromSymbolType(s.Type),
			StartLine:  s.StartLine,
			EndLine:    s.EndLine,
			References: counts[s.Name],
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartLine != result[j].StartLine {
			return result[i].StartLine < result[j].StartLine
		}
		return result[i].Symbol < result[j].Symbol
	})

	return result
}

// FromStoreSymbols rebuilds Tags from symbols already persisted by the
// metadata store, for populating a Snippet Index at process startup without
// re-chunking every file.
func FromStoreSymbols(filePath string, symbols []*store.Symbol) []Tag {
	if len(symbols) == 0 {
		return nil
	}

	counts := make(map[string]int, len(symbols))
	for _, s := range symbols {
		counts[s.Name]++
	}

	result := make([]Tag, 0, len(symbols))
	for _, s := range symbols {
		result = append(result, Tag{
			FilePath:   filePath,
			Symbol:     s.Name,
			Kind:       kindFromStoreSymbolType(s.Type),
			StartLine:  s.StartLine,
			EndLine:    s.EndLine,
			References: counts[s.Name],
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartLine != result[j].StartLine {
			return result[i].StartLine < result[j].StartLine
		}
		return result[i].Symbol < result[j].Symbol
	})

	return result
}

// GetParentContext returns the innermost enclosing class/function/method name
// for the line range [startLine, endLine], or "" if the range sits outside
// every tag or inside a tag that is not itself nested in a larger one.
//
// "Innermost" means the tag with the smallest line span whose range fully
// contains [startLine, endLine].
func GetParentContext(tags []Tag, startLine, endLine int) string {
	var best *Tag
	for i := range tags {
		t := &tags[i]
		if t.StartLine > startLine || t.EndLine < endLine {
			continue
		}
		// A tag cannot be its own parent: a chunk spanning exactly one
		// function's range has no enclosing symbol unless a wider tag
		// (e.g. the containing class) also covers it.
		if t.StartLine == startLine && t.EndLine == endLine {
			continue
		}
		if best == nil || span(*t) < span(*best) {
			best = t
		}
	}
	if best == nil {
		return ""
	}
	return best.Symbol
}

func span(t Tag) int {
	return t.EndLine - t.StartLine
}

// String renders a Tag for debug logging.
func (t Tag) String() string {
	return fmt.Sprintf("%s:%d-%d %s %s", t.FilePath, t.StartLine, t.EndLine, t.Kind, t.Symbol)
}
