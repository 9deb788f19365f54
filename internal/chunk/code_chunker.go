package chunk

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CodeChunkerOptions tunes the AST-aware splitter.
type CodeChunkerOptions struct {
	MaxChunkTokens int // ceiling per chunk; falls back to DefaultMaxChunkTokens when zero
	OverlapTokens  int // carry-over applied only to the line-based fallback path

	// MinMethodsForOverview is the member-count threshold at which a class
	// gets a synthesized overview chunk; falls back to the package constant
	// when zero.
	MinMethodsForOverview int
}

// CodeChunker cuts source files along tree-sitter syntax boundaries, always
// at the highest boundary that still fits the token budget, so the
// concatenation of the emitted chunks reproduces the file: nothing between
// symbols (comments, const blocks, blank runs) is dropped.
type CodeChunker struct {
	parser    *Parser
	extractor *SymbolExtractor
	registry  *LanguageRegistry
	opts      CodeChunkerOptions
}

// NewCodeChunker builds a chunker using the package defaults.
func NewCodeChunker() *CodeChunker {
	return NewCodeChunkerWithOptions(CodeChunkerOptions{})
}

// NewCodeChunkerWithOptions builds a chunker, filling any zero-valued option
// with its package default.
func NewCodeChunkerWithOptions(opts CodeChunkerOptions) *CodeChunker {
	withDefaults := opts
	if withDefaults.MaxChunkTokens == 0 {
		withDefaults.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if withDefaults.OverlapTokens == 0 {
		withDefaults.OverlapTokens = DefaultOverlapTokens
	}
	if withDefaults.MinMethodsForOverview == 0 {
		withDefaults.MinMethodsForOverview = MinMethodsForOverview
	}

	reg := DefaultRegistry()
	return &CodeChunker{
		parser:    NewParserWithRegistry(reg),
		extractor: NewSymbolExtractorWithRegistry(reg),
		registry:  reg,
		opts:      withDefaults,
	}
}

// Close releases the underlying tree-sitter parser.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// SupportedExtensions lists the file extensions this chunker can parse with
// a grammar; anything else takes the line-based fallback.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// chunkSpan is an intermediate split result: a slice of the file plus its
// 1-indexed line range. Overview spans are synthesized, not file slices.
type chunkSpan struct {
	content    string
	startLine  int
	endLine    int
	isOverview bool
}

// Chunk splits a single file into chunks:
//
//  1. The leading import block, when detected, becomes a single chunk at
//     ordinal 0 covering lines [1, end].
//  2. The remaining content is split at AST boundaries with full coverage;
//     line numbers are offset past the extracted imports.
//  3. Classes with enough members get a trailing synthesized overview chunk.
//
// Unsupported languages and parse failures degrade to the token-bounded
// line splitter rather than erroring out.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) == 0 {
		return nil, nil
	}

	if _, ok := c.registry.GetByName(file.Language); !ok {
		return c.fallbackChunks(file)
	}

	content := string(file.Content)
	stamp := time.Now()

	importEnd, importText, hasImports := detectImportBlock(content, file.Language)
	remaining := content
	lineOffset := 0
	if hasImports {
		remaining, lineOffset = contentAfterImports(content, importEnd)
	}

	var spans []chunkSpan
	if strings.TrimSpace(remaining) != "" {
		tree, err := c.parser.Parse(ctx, []byte(remaining), file.Language)
		if err == nil {
			spans = c.coverageSpans(tree)
		} else {
			// A supported language that fails to parse still gets
			// contiguous (non-overlapping) line windows so coverage holds.
			spans = contiguousLineSpans(remaining, c.opts.MaxChunkTokens)
		}
	}
	for i := range spans {
		spans[i].startLine += lineOffset
		spans[i].endLine += lineOffset
	}

	// Symbols come from a parse of the full original content so their line
	// numbers need no offsetting.
	var sites []*symbolSite
	if fullTree, err := c.parser.Parse(ctx, file.Content, file.Language); err == nil {
		sites = c.collectSymbolSites(fullTree, file.Language)
	}

	chunks := make([]*Chunk, 0, len(spans)+2)
	if hasImports {
		chunks = append(chunks, &Chunk{
			FilePath:    file.Path,
			Content:     importText,
			RawContent:  importText,
			Context:     importText,
			ContentType: ContentTypeCode,
			Language:    file.Language,
			StartLine:   1,
			EndLine:     importEnd,
			Metadata:    make(map[string]string),
			CreatedAt:   stamp,
			UpdatedAt:   stamp,
		})
	}
	for _, span := range spans {
		chunks = append(chunks, &Chunk{
			FilePath:     file.Path,
			Content:      span.content,
			RawContent:   span.content,
			ContentType:  ContentTypeCode,
			Language:     file.Language,
			StartLine:    span.startLine,
			EndLine:      span.endLine,
			Symbols:      symbolsInRange(sites, span.startLine, span.endLine),
			ParentSymbol: parentSymbolFor(sites, span.startLine, span.endLine),
			Metadata:     make(map[string]string),
			CreatedAt:    stamp,
			UpdatedAt:    stamp,
		})
	}

	chunks = append(chunks, c.overviewChunks(file, sites, stamp)...)
	if len(chunks) == 0 {
		return nil, nil
	}
	assignOrdinalIDs(file, chunks)
	return chunks, nil
}

// =============================================================================
// Full-coverage AST splitting
// =============================================================================

// byteSpan is a half-open byte range into the parsed source.
type byteSpan struct {
	start, end int
}

// coverageSpans partitions the parsed source into token-bounded spans cut
// at AST boundaries. The spans are contiguous: concatenating their contents
// reproduces the source byte for byte.
func (c *CodeChunker) coverageSpans(tree *Tree) []chunkSpan {
	source := tree.Source
	if len(source) == 0 {
		return nil
	}

	bspans := mergeWhitespaceSpans(source, c.splitRange(source, 0, len(source), tree.Root.Children))

	out := make([]chunkSpan, 0, len(bspans))
	line := 1
	for _, sp := range bspans {
		text := string(source[sp.start:sp.end])
		lineCount := strings.Count(strings.TrimSuffix(text, "\n"), "\n") + 1
		out = append(out, chunkSpan{
			content:   text,
			startLine: line,
			endLine:   line + lineCount - 1,
		})
		line += strings.Count(text, "\n")
	}
	return out
}

// splitRange partitions source[start:end) into token-bounded byte spans,
// cutting at the highest syntax boundary that fits: sibling node groups
// first, then a node's children, then lines, then raw character windows.
// The gap before each node (comments, blank lines) travels with that node
// so no inter-symbol content is lost.
func (c *CodeChunker) splitRange(source []byte, start, end int, children []*Node) []byteSpan {
	budget := c.opts.MaxChunkTokens

	type segment struct {
		start, end int
		node       *Node
	}
	var segs []segment
	cursor := start
	for _, ch := range children {
		ce := int(ch.EndByte)
		if ce <= cursor || int(ch.StartByte) >= end {
			continue
		}
		if ce > end {
			ce = end
		}
		segs = append(segs, segment{start: cursor, end: ce, node: ch})
		cursor = ce
	}
	if cursor < end {
		segs = append(segs, segment{start: cursor, end: end})
	}
	if len(segs) == 0 {
		return nil
	}

	var out []byteSpan
	accStart, accEnd := -1, -1
	flush := func() {
		if accStart >= 0 && accEnd > accStart {
			out = append(out, byteSpan{accStart, accEnd})
		}
		accStart, accEnd = -1, -1
	}

	for _, seg := range segs {
		if accStart >= 0 && estimateTokens(string(source[accStart:seg.end])) <= budget {
			accEnd = seg.end
			continue
		}
		flush()
		if estimateTokens(string(source[seg.start:seg.end])) <= budget {
			accStart, accEnd = seg.start, seg.end
			continue
		}
		// The segment alone exceeds the budget: descend one level. The gap
		// preceding the node stays attached as the first sub-segment.
		if seg.node != nil && len(seg.node.Children) > 0 {
			out = append(out, c.splitRange(source, seg.start, seg.end, seg.node.Children)...)
		} else {
			out = append(out, splitLinesRange(source, seg.start, seg.end, budget)...)
		}
	}
	flush()
	return out
}

// mergeWhitespaceSpans folds spans that are pure whitespace into their
// predecessor, so boundary newlines after an oversized symbol don't become
// chunks of their own.
func mergeWhitespaceSpans(source []byte, spans []byteSpan) []byteSpan {
	var out []byteSpan
	for _, sp := range spans {
		if len(out) > 0 && len(strings.TrimSpace(string(source[sp.start:sp.end]))) == 0 {
			out[len(out)-1].end = sp.end
			continue
		}
		out = append(out, sp)
	}
	return out
}

// splitLinesRange packs whole lines of source[start:end) into token-bounded
// spans; a single line over the budget degrades to character windows.
func splitLinesRange(source []byte, start, end, budget int) []byteSpan {
	var out []byteSpan
	accStart := start
	cursor := start
	for cursor < end {
		lineEnd := cursor
		for lineEnd < end && source[lineEnd] != '\n' {
			lineEnd++
		}
		if lineEnd < end {
			lineEnd++ // keep the newline with its line
		}

		if estimateTokens(string(source[accStart:lineEnd])) > budget {
			if accStart < cursor {
				out = append(out, byteSpan{accStart, cursor})
				accStart = cursor
				continue
			}
			// Single oversized line: raw character windows.
			window := budget * TokensPerChar
			if window < 1 {
				window = 1
			}
			for accStart < lineEnd {
				winEnd := accStart + window
				if winEnd > lineEnd {
					winEnd = lineEnd
				}
				out = append(out, byteSpan{accStart, winEnd})
				accStart = winEnd
			}
			cursor = lineEnd
			continue
		}
		cursor = lineEnd
	}
	if accStart < end {
		out = append(out, byteSpan{accStart, end})
	}
	return out
}

// contiguousLineSpans is the coverage-preserving fallback for a supported
// language whose parse failed: non-overlapping token-bounded line windows.
func contiguousLineSpans(content string, budget int) []chunkSpan {
	bspans := splitLinesRange([]byte(content), 0, len(content), budget)
	out := make([]chunkSpan, 0, len(bspans))
	line := 1
	for _, sp := range bspans {
		text := content[sp.start:sp.end]
		lineCount := strings.Count(strings.TrimSuffix(text, "\n"), "\n") + 1
		out = append(out, chunkSpan{
			content:   text,
			startLine: line,
			endLine:   line + lineCount - 1,
		})
		line += strings.Count(text, "\n")
	}
	return out
}

// =============================================================================
// Import-block detection
// =============================================================================

// Per-language import-line patterns. Precompiled once; new languages are
// added by extending this table.
var (
	rustImportRegex   = regexp.MustCompile(`^\s*(use\s|mod\s|pub\s+use\s|pub\s+mod\s|extern\s+crate\s|#\[|#!\[)`)
	pythonImportRegex = regexp.MustCompile(`^\s*(import\s|from\s+\S+\s+import\s)`)
	// export matches only re-export forms (export { … } / export * from);
	// `export class Foo` and friends are declarations, not imports.
	jsImportRegex = regexp.MustCompile(`^\s*(import\s|export\s+[{*]|(const|let|var)\s+[\w{\s,}]+\s*=\s*require\(|['"]use\s)`)
	goJavaImportRegex = regexp.MustCompile(`^\s*(package\s|import\s)`)
)

func importPatternFor(language string) *regexp.Regexp {
	switch language {
	case "rust":
		return rustImportRegex
	case "python":
		return pythonImportRegex
	case "typescript", "javascript", "tsx", "jsx":
		return jsImportRegex
	case "go", "java":
		return goJavaImportRegex
	default:
		return nil
	}
}

// detectImportBlock finds the run of import/package statements at the top
// of a file. Returns the 1-indexed line where the block ends and the block's
// verbatim text (lines 1..endLine). Handles Go's multi-line `import (...)`
// and JS/TS multi-line `import { ... } from ...` via brace-depth tracking.
func detectImportBlock(content, language string) (endLine int, importContent string, ok bool) {
	pattern := importPatternFor(language)
	if pattern == nil {
		return 0, "", false
	}

	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return 0, "", false
	}

	inMultiline := false
	braceDepth := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Empty lines and comments only extend a block already started.
		if trimmed == "" || isCommentLine(trimmed, language) {
			if endLine > 0 || inMultiline {
				endLine = i + 1
			}
			continue
		}

		// Go's multi-line import block: import ( ... )
		if language == "go" {
			if strings.HasPrefix(trimmed, "import (") || trimmed == "import(" {
				inMultiline = true
				endLine = i + 1
				continue
			}
			if inMultiline {
				endLine = i + 1
				if strings.HasPrefix(trimmed, ")") {
					inMultiline = false
				}
				continue
			}
		}

		// JS/TS multi-line imports: import { ... } from '...'
		if language == "typescript" || language == "javascript" || language == "tsx" || language == "jsx" {
			if inMultiline {
				endLine = i + 1
				for _, r := range line {
					switch r {
					case '{':
						braceDepth++
					case '}':
						braceDepth--
					}
				}
				if braceDepth <= 0 &&
					(strings.Contains(trimmed, "from ") || strings.Contains(trimmed, "from'") || strings.HasSuffix(trimmed, ";")) {
					inMultiline = false
					braceDepth = 0
				}
				continue
			}
			if pattern.MatchString(line) {
				endLine = i + 1
				opens := strings.Count(line, "{")
				closes := strings.Count(line, "}")
				if opens > closes {
					inMultiline = true
					braceDepth = opens - closes
				}
				continue
			}
		}

		if pattern.MatchString(line) {
			endLine = i + 1
		} else if endLine > 0 && !inMultiline {
			// First non-import line after the block.
			break
		} else if i > 5 {
			// No imports in the first few lines (shebangs, pragmas aside).
			break
		}
	}

	if endLine == 0 {
		return 0, "", false
	}
	return endLine, strings.Join(lines[:endLine], "\n"), true
}

// isCommentLine reports whether a trimmed line is a comment in language.
func isCommentLine(trimmed, language string) bool {
	switch language {
	case "rust", "go", "java", "typescript", "javascript", "tsx", "jsx":
		return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "*")
	case "python":
		return strings.HasPrefix(trimmed, "#")
	default:
		return false
	}
}

// contentAfterImports strips the import block plus any blank lines that
// follow it, returning the rest and the line offset to add back to the
// remaining chunks' line numbers.
func contentAfterImports(content string, importEnd int) (string, int) {
	lines := strings.Split(content, "\n")
	if importEnd >= len(lines) {
		return "", importEnd
	}

	remaining := lines[importEnd:]
	skipped := 0
	for skipped < len(remaining) && strings.TrimSpace(remaining[skipped]) == "" {
		skipped++
	}
	return strings.Join(remaining[skipped:], "\n"), importEnd + skipped
}

// =============================================================================
// Symbol collection and attachment
// =============================================================================

// symbolSite pairs a syntax node with the Symbol metadata derived from it.
type symbolSite struct {
	node *Node
	sym  *Symbol
}

// symbolNodeKinds builds the node-type → SymbolType lookup for a language
// config, so the tree walk below is a single map probe per node.
func symbolNodeKinds(cfg *LanguageConfig) map[string]SymbolType {
	kinds := make(map[string]SymbolType)
	assign := func(types []string, kind SymbolType) {
		for _, t := range types {
			kinds[t] = kind
		}
	}
	assign(cfg.FunctionTypes, SymbolTypeFunction)
	assign(cfg.MethodTypes, SymbolTypeMethod)
	assign(cfg.ClassTypes, SymbolTypeClass)
	assign(cfg.InterfaceTypes, SymbolTypeInterface)
	assign(cfg.TypeDefTypes, SymbolTypeType)
	assign(cfg.ConstantTypes, SymbolTypeConstant)
	assign(cfg.VariableTypes, SymbolTypeVariable)
	return kinds
}

// collectSymbolSites walks the parse tree and gathers every node that
// defines a symbol, in document order.
func (c *CodeChunker) collectSymbolSites(tree *Tree, language string) []*symbolSite {
	cfg, ok := c.registry.GetByName(language)
	if !ok {
		return []*symbolSite{}
	}
	kinds := symbolNodeKinds(cfg)

	sites := []*symbolSite{}
	tree.Root.Walk(func(n *Node) bool {
		switch n.Type {
		case "lexical_declaration", "variable_declaration":
			// JS/TS arrow functions and function expressions are declared via
			// these node types; give the extractor first refusal before
			// falling through to the generic constant/variable handling.
			if sym := c.extractor.extractSpecialSymbol(n, tree.Source, language); sym != nil {
				sites = append(sites, &symbolSite{node: n, sym: sym})
				return true
			}
		}
		kind, isSymbol := kinds[n.Type]
		if !isSymbol {
			return true
		}
		if sym := c.buildSymbol(n, tree, kind, language); sym != nil {
			sites = append(sites, &symbolSite{node: n, sym: sym})
		}
		return true
	})
	return sites
}

// buildSymbol resolves a node's name and preceding doc comment into a Symbol.
func (c *CodeChunker) buildSymbol(n *Node, tree *Tree, kind SymbolType, language string) *Symbol {
	cfg, _ := c.registry.GetByName(language)
	name := c.extractor.extractName(n, tree.Source, cfg, language)
	if name == "" {
		return nil
	}
	return &Symbol{
		Name:       name,
		Type:       kind,
		StartLine:  int(n.StartPoint.Row) + 1,
		EndLine:    int(n.EndPoint.Row) + 1,
		DocComment: precedingComment(n, tree.Source, language),
	}
}

// symbolsInRange returns the symbols declared within a chunk's line range.
func symbolsInRange(sites []*symbolSite, startLine, endLine int) []*Symbol {
	var out []*Symbol
	for _, s := range sites {
		if s.sym.StartLine >= startLine && s.sym.StartLine <= endLine {
			out = append(out, s.sym)
		}
	}
	return out
}

// enclosingKinds are the symbol kinds that can act as a chunk's parent.
func isEnclosingKind(t SymbolType) bool {
	switch t {
	case SymbolTypeClass, SymbolTypeInterface, SymbolTypeFunction, SymbolTypeMethod:
		return true
	}
	return false
}

// parentSymbolFor returns the name of the innermost class/function whose
// range strictly contains the chunk; empty when the chunk sits at top level
// or is itself the whole symbol.
func parentSymbolFor(sites []*symbolSite, startLine, endLine int) string {
	best := ""
	bestSpan := int(^uint(0) >> 1)
	for _, s := range sites {
		if !isEnclosingKind(s.sym.Type) {
			continue
		}
		if s.sym.StartLine > startLine || s.sym.EndLine < endLine {
			continue
		}
		if s.sym.StartLine == startLine && s.sym.EndLine == endLine {
			continue
		}
		span := s.sym.EndLine - s.sym.StartLine
		if span < bestSpan {
			bestSpan = span
			best = s.sym.Name
		}
	}
	return best
}

// precedingComment walks backward from a node's start, collecting
// contiguous single-line comments immediately above it into one block.
func precedingComment(n *Node, source []byte, language string) string {
	lineStart := startOfLine(source, int(n.StartByte))
	if lineStart <= 1 {
		return ""
	}

	prefix, ok := commentPrefixFor(language)
	if !ok {
		return ""
	}

	var lines []string
	cursor := lineStart - 1 // step onto the newline ending the prior line
	for cursor > 0 {
		end := cursor
		cursor--
		for cursor > 0 && source[cursor] != '\n' {
			cursor--
		}
		start := cursor
		if cursor > 0 {
			start++
		}

		text := strings.TrimSpace(string(source[start:end]))
		if !strings.HasPrefix(text, prefix) {
			break
		}
		lines = append([]string{strings.TrimPrefix(text, prefix)}, lines...)
	}

	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func commentPrefixFor(language string) (string, bool) {
	switch language {
	case "go", "typescript", "tsx", "javascript", "jsx", "rust", "java":
		return "//", true
	case "python":
		return "#", true
	default:
		return "", false
	}
}

// startOfLine returns the byte offset of the first character on the line
// containing pos.
func startOfLine(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}

// =============================================================================
// Overview chunks
// =============================================================================

// overviewChunks synthesizes a member-list summary chunk for each class
// whose line range encloses at least MinMethodsForOverview methods. These
// chunks are not file slices: IsOverview is set, ParentSymbol stays empty,
// and they trail the literal chunks so the import block keeps ordinal 0.
func (c *CodeChunker) overviewChunks(file *FileInput, sites []*symbolSite, stamp time.Time) []*Chunk {
	threshold := c.opts.MinMethodsForOverview
	var out []*Chunk

	for _, site := range sites {
		if site.sym.Type != SymbolTypeClass && site.sym.Type != SymbolTypeInterface {
			continue
		}

		var members []string
		for _, other := range sites {
			if other == site {
				continue
			}
			if other.sym.Type != SymbolTypeMethod && other.sym.Type != SymbolTypeFunction {
				continue
			}
			if other.sym.StartLine >= site.sym.StartLine && other.sym.EndLine <= site.sym.EndLine {
				members = append(members, other.sym.Name)
			}
		}
		if len(members) < threshold {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s %s (%s, lines %d-%d)\n", site.sym.Type, site.sym.Name, file.Path, site.sym.StartLine, site.sym.EndLine)
		b.WriteString("Members:\n")
		for _, m := range members {
			fmt.Fprintf(&b, "- %s\n", m)
		}

		content := b.String()
		out = append(out, &Chunk{
			FilePath:    file.Path,
			Content:     content,
			RawContent:  content,
			ContentType: ContentTypeCode,
			Language:    file.Language,
			StartLine:   site.sym.StartLine,
			EndLine:     site.sym.EndLine,
			IsOverview:  true,
			Metadata:    make(map[string]string),
			CreatedAt:   stamp,
			UpdatedAt:   stamp,
		})
	}
	return out
}

// =============================================================================
// Fallback path
// =============================================================================

// fallbackChunks handles languages with no tree-sitter grammar via plain
// overlapping line windows (overlap helps prose; AST boundaries aren't
// available to make chunks self-contained).
func (c *CodeChunker) fallbackChunks(file *FileInput) ([]*Chunk, error) {
	text := string(file.Content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	lines := strings.Split(text, "\n")
	const windowSize = 128 // ~512 tokens at 4 chars/token, 80 chars/line
	const overlap = 16     // ~64 tokens

	stamp := time.Now()
	var chunks []*Chunk
	for cursor := 0; cursor < len(lines); {
		end := cursor + windowSize
		if end > len(lines) {
			end = len(lines)
		}

		text := strings.Join(lines[cursor:end], "\n")
		chunks = append(chunks, &Chunk{
			FilePath:    file.Path,
			Content:     text,
			RawContent:  text,
			ContentType: ContentTypeText,
			Language:    file.Language,
			StartLine:   cursor + 1,
			EndLine:     end,
			Metadata:    make(map[string]string),
			CreatedAt:   stamp,
			UpdatedAt:   stamp,
		})

		if end >= len(lines) {
			break
		}
		cursor = end - overlap
		if cursor <= 0 {
			break
		}
	}

	assignOrdinalIDs(file, chunks)
	return chunks, nil
}

// estimateTokens approximates a token count from byte length; no BPE
// tokenizer is linked in, so this is a fixed chars-per-token ratio.
func estimateTokens(content string) int {
	return len(content) / TokensPerChar
}
