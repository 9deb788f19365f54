package tags

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrivo/core/internal/chunk"
	"github.com/retrivo/core/internal/store"
)

func TestExtractor_Extract_GoFunctionsAndMethods(t *testing.T) {
	source := `package main

type Greeter struct {
	name string
}

func (g *Greeter) Hello() string {
	return "hello " + g.name
}

func NewGreeter(name string) *Greeter {
	return &Greeter{name: name}
}
`
	e := NewExtractor()
	defer e.Close()

	got := e.Extract(context.Background(), "greeter.go", []byte(source), "go")
	require.NotEmpty(t, got)

	var names []string
	for _, tag := range got {
		names = append(names, tag.Symbol)
		assert.Equal(t, "greeter.go", tag.FilePath)
		assert.LessOrEqual(t, tag.StartLine, tag.EndLine)
	}
	assert.Contains(t, names, "Hello")
	assert.Contains(t, names, "NewGreeter")
}

func TestExtractor_Extract_UnsupportedLanguageReturnsNoTags(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	got := e.Extract(context.Background(), "x.rb", []byte("def foo; end"), "ruby")
	assert.Nil(t, got)
}

func TestExtractor_Extract_ParseErrorIsNonFatal(t *testing.T) {
	e := NewExtractor()
	defer e.Close()

	// Malformed source should not panic or error out; tree-sitter parses
	// best-effort and the extractor degrades to whatever it can find.
	got := e.Extract(context.Background(), "broken.go", []byte("func ("), "go")
	assert.NotPanics(t, func() {
		_ = got
	})
}

func TestGetParentContext_ReturnsInnermostEnclosingSymbol(t *testing.T) {
	tagList := []Tag{
		{FilePath: "f.go", Symbol: "Greeter", Kind: KindClass, StartLine: 3, EndLine: 20},
		{FilePath: "f.go", Symbol: "Hello", Kind: KindMethod, StartLine: 7, EndLine: 9},
	}

	parent := GetParentContext(tagList, 7, 9)
	assert.Equal(t, "Greeter", parent)
}

func TestGetParentContext_NoEnclosingSymbolReturnsEmpty(t *testing.T) {
	tagList := []Tag{
		{FilePath: "f.go", Symbol: "Hello", Kind: KindFunction, StartLine: 7, EndLine: 9},
	}

	assert.Equal(t, "", GetParentContext(tagList, 1, 2))
}

func TestGetParentContext_ExactMatchIsNotItsOwnParent(t *testing.T) {
	tagList := []Tag{
		{FilePath: "f.go", Symbol: "Hello", Kind: KindFunction, StartLine: 7, EndLine: 9},
	}

	assert.Equal(t, "", GetParentContext(tagList, 7, 9))
}

func TestExtractor_Extract_ReferencesCountsDuplicateNames(t *testing.T) {
	source := `package main

func Foo() {}

func Foo2() {}
`
	e := NewExtractor()
	defer e.Close()

	got := e.Extract(context.Background(), "dup.go", []byte(source), "go")
	for _, tag := range got {
		assert.Equal(t, 1, tag.References)
	}
}

func TestFromSymbols_ConvertsChunkSymbolsWithoutReparsing(t *testing.T) {
	symbols := []*chunk.Symbol{
		{Name: "Hello", Type: chunk.SymbolTypeMethod, StartLine: 7, EndLine: 9},
		{Name: "NewGreeter", Type: chunk.SymbolTypeFunction, StartLine: 11, EndLine: 13},
	}

	got := FromSymbols("greeter.go", symbols)
	require.Len(t, got, 2)
	assert.Equal(t, "Hello", got[0].Symbol)
	assert.Equal(t, KindMethod, got[0].Kind)
	assert.Equal(t, "greeter.go", got[0].FilePath)
	assert.Equal(t, "NewGreeter", got[1].Symbol)
	assert.Equal(t, KindFunction, got[1].Kind)
}

func TestFromSymbols_EmptyInputReturnsNil(t *testing.T) {
	assert.Nil(t, FromSymbols("f.go", nil))
}

func TestFromStoreSymbols_ConvertsPersistedSymbols(t *testing.T) {
	symbols := []*store.Symbol{
		{Name: "Hello", Type: store.SymbolTypeMethod, StartLine: 7, EndLine: 9},
	}

	got := FromStoreSymbols("greeter.go", symbols)
	require.Len(t, got, 1)
	assert.Equal(t, "Hello", got[0].Symbol)
	assert.Equal(t, KindMethod, got[0].Kind)
	assert.Equal(t, "greeter.go", got[0].FilePath)
}

func TestFromStoreSymbols_EmptyInputReturnsNil(t *testing.T) {
	assert.Nil(t, FromStoreSymbols("f.go", nil))
}
