package app_test

import (
	"context"
	"hash/fnv"

	"github.com/timrodz/cards-oracle/internal/app"
	"github.com/timrodz/cards-oracle/internal/embedding"
	"github.com/timrodz/cards-oracle/internal/pipeline"
	"github.com/timrodz/cards-oracle/internal/retrieval"
	"github.com/timrodz/cards-oracle/internal/vector"
)

// hashEmbedder maps text to a stable vector.
type hashEmbedder struct {
	dims int
}

func (e *hashEmbedder) EmbedText(ctx context.Context, text string, normalize bool) ([]float32, error) {
	return embedding.Single(ctx, e, text, normalize)
}

func (e *hashEmbedder) EmbedTexts(_ context.Context, texts []string, normalize bool) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		h := fnv.New32a()
		h.Write([]byte(t))
		sum := h.Sum32()
		v := make([]float32, e.dims)
		for d := range v {
			v[d] = float32((sum>>(d*4))&0xf) + 1
		}
		out[i] = v
	}
	return embedding.Finish(out, e.dims, normalize)
}

type fixedGenerator struct {
	reply string
}

func (g *fixedGenerator) Generate(context.Context, string) (string, error) {
	return g.reply, nil
}

func (g *fixedGenerator) Stream(_ context.Context, _ string, onChunk func(string) error) error {
	return onChunk(g.reply)
}

func fakeProviders(dims int, reply string) app.Providers {
	return app.Providers{
		Kind: embedding.KindOllama,
		Factory: func() (embedding.Provider, error) {
			return &hashEmbedder{dims: dims}, nil
		},
		Generator: &fixedGenerator{reply: reply},
	}
}

type memoryStore struct {
	upserts map[string][]pipeline.EmbeddingRecord
	results []retrieval.SearchResult
	indexes []vector.IndexDefinition
	count   int
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{upserts: map[string][]pipeline.EmbeddingRecord{}}
}

func (m *memoryStore) Upsert(_ context.Context, collection string, recs []pipeline.EmbeddingRecord) error {
	m.upserts[collection] = append(m.upserts[collection], recs...)
	return nil
}

func (m *memoryStore) Search(context.Context, []float32, int) ([]retrieval.SearchResult, error) {
	return m.results, nil
}

func (m *memoryStore) CreateIndex(_ context.Context, def vector.IndexDefinition) error {
	m.indexes = append(m.indexes, def)
	return m.err
}

func (m *memoryStore) Count(context.Context, string) (int, error) {
	return m.count, nil
}
