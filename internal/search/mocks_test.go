package search

import (
	"context"

	"github.com/retrivo/core/internal/embed"
	"github.com/retrivo/core/internal/store"
)

// MockBM25Index is a function-field based mock of store.BM25Index for
// benchmarks. Unset methods fall through to the embedded nil interface
// and must not be called.
type MockBM25Index struct {
	store.BM25Index
	SearchFn func(ctx context.Context, query string, limit int) ([]*store.BM25Result, error)
	StatsFn  func() *store.IndexStats
}

func (m *MockBM25Index) Search(ctx context.Context, query string, limit int) ([]*store.BM25Result, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, limit)
	}
	return nil, nil
}

func (m *MockBM25Index) Stats() *store.IndexStats {
	if m.StatsFn != nil {
		return m.StatsFn()
	}
	return &store.IndexStats{}
}

// MockVectorStore is a function-field based mock of store.VectorStore for
// benchmarks. Unset methods fall through to the embedded nil interface
// and must not be called.
type MockVectorStore struct {
	store.VectorStore
	SearchFn func(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error)
	CountFn  func() int
}

func (m *MockVectorStore) Search(ctx context.Context, query []float32, k int) ([]*store.VectorResult, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, k)
	}
	return nil, nil
}

func (m *MockVectorStore) Count() int {
	if m.CountFn != nil {
		return m.CountFn()
	}
	return 0
}

// MockEmbedder is a function-field based mock of embed.Embedder for
// benchmarks. Unset methods fall through to the embedded nil interface
// and must not be called.
type MockEmbedder struct {
	embed.Embedder
	EmbedFn      func(ctx context.Context, text string) ([]float32, error)
	DimensionsFn func() int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFn != nil {
		return m.EmbedFn(ctx, text)
	}
	return nil, nil
}

func (m *MockEmbedder) Dimensions() int {
	if m.DimensionsFn != nil {
		return m.DimensionsFn()
	}
	return 0
}

// MockMetadataStore is a function-field based mock of store.MetadataStore
// for benchmarks, backed by an in-memory chunk map. Unset methods fall
// through to the embedded nil interface and must not be called.
type MockMetadataStore struct {
	store.MetadataStore
	chunks map[string]*store.Chunk
}

// NewMockMetadataStore creates a MockMetadataStore with an empty chunk map.
func NewMockMetadataStore() *MockMetadataStore {
	return &MockMetadataStore{chunks: make(map[string]*store.Chunk)}
}

func (m *MockMetadataStore) GetChunk(ctx context.Context, id string) (*store.Chunk, error) {
	if c, ok := m.chunks[id]; ok {
		return c, nil
	}
	return nil, nil
}

func (m *MockMetadataStore) GetChunks(ctx context.Context, ids []string) ([]*store.Chunk, error) {
	result := make([]*store.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *MockMetadataStore) SaveChunks(ctx context.Context, chunks []*store.Chunk) error {
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *MockMetadataStore) Close() error {
	return nil
}
