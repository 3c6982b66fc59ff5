package pipeline_test

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/timrodz/cards-oracle/internal/embedding"
	"github.com/timrodz/cards-oracle/internal/pipeline"
	"github.com/timrodz/cards-oracle/internal/records"
)

type memorySource struct {
	recs  []records.Record
	pages []int
}

func newMemorySource(recs ...records.Record) *memorySource {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return &memorySource{recs: recs}
}

func (s *memorySource) Page(ctx context.Context, collection, afterID string, size int) ([]records.Record, error) {
	s.pages = append(s.pages, size)
	var out []records.Record
	for _, r := range s.recs {
		if r.ID > afterID {
			out = append(out, r)
			if len(out) == size {
				break
			}
		}
	}
	return out, nil
}

// fakeProvider returns vectors of a fixed length and flags concurrent use.
type fakeProvider struct {
	dims       int
	configured int
	failOn     string
	err        error
	panicOn    string

	inUse      atomic.Int32
	overlapped atomic.Bool
	calls      atomic.Int32
	closed     atomic.Int32
}

func (p *fakeProvider) Close() error {
	p.closed.Add(1)
	return nil
}

func (p *fakeProvider) EmbedText(ctx context.Context, text string, normalize bool) ([]float32, error) {
	return embedding.Single(ctx, p, text, normalize)
}

func (p *fakeProvider) EmbedTexts(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	if p.inUse.Add(1) > 1 {
		p.overlapped.Store(true)
	}
	defer p.inUse.Add(-1)
	p.calls.Add(1)

	for _, t := range texts {
		if p.failOn != "" && t == p.failOn {
			return nil, p.err
		}
		if p.panicOn != "" && t == p.panicOn {
			panic("model crashed")
		}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, p.dims)
		for j := range v {
			v[j] = 1
		}
		out[i] = v
	}
	return embedding.Finish(out, p.configured, normalize)
}

type mockIndexer struct {
	mock.Mock
	mu       sync.Mutex
	upserted []pipeline.EmbeddingRecord
}

func (m *mockIndexer) Upsert(ctx context.Context, collection string, recs []pipeline.EmbeddingRecord) error {
	args := m.Called(ctx, collection, recs)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.upserted = append(m.upserted, recs...)
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *mockIndexer) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.upserted))
	for i, r := range m.upserted {
		out[i] = r.ID
	}
	sort.Strings(out)
	return out
}
