// Package pipeline turns source records into embedded chunks and writes
// them into a vector collection.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/timrodz/cards-oracle/internal/chunk"
	"github.com/timrodz/cards-oracle/internal/embedding"
	"github.com/timrodz/cards-oracle/internal/records"
)

var ErrInvalidRequest = errors.New("invalid embeddings request")

// EmbeddingRecord is one chunk ready for the index. ID is the upsert key.
type EmbeddingRecord struct {
	ID       string
	SourceID string
	Summary  string
	Vector   []float32
}

// Request is the persisted form of a pipeline run.
type Request struct {
	SourceCollection string  `json:"source_collection"`
	TargetCollection string  `json:"target_collection"`
	ChunkMappings    *string `json:"chunk_mappings,omitempty"`
	Limit            *int    `json:"limit,omitempty"`
	Normalize        bool    `json:"normalize"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.SourceCollection) == "" {
		return fmt.Errorf("%w: source_collection is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.TargetCollection) == "" {
		return fmt.Errorf("%w: target_collection is required", ErrInvalidRequest)
	}
	if r.Limit != nil && *r.Limit < 1 {
		return fmt.Errorf("%w: limit must be >= 1", ErrInvalidRequest)
	}
	if r.ChunkMappings != nil {
		if *r.ChunkMappings == "" {
			return fmt.Errorf("%w: chunk_mappings must not be empty", ErrInvalidRequest)
		}
		return chunk.Validate(*r.ChunkMappings)
	}
	return nil
}

func (r Request) limit() int {
	if r.Limit == nil {
		return 0
	}
	return *r.Limit
}

// MissingFieldsError lists template fields absent from the source
// collection.
type MissingFieldsError struct {
	Collection string
	Fields     []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("Invalid chunk_mappings fields for collection %s: %s", e.Collection, strings.Join(e.Fields, ", "))
}

type PropertyLister interface {
	Properties(ctx context.Context, collection string) ([]string, error)
}

// CheckFields verifies that the first segment of every template field is a
// property of the source collection.
func CheckFields(ctx context.Context, lister PropertyLister, req Request) error {
	if req.ChunkMappings == nil {
		return nil
	}
	fields, err := chunk.ExtractFields(*req.ChunkMappings)
	if err != nil {
		return err
	}
	props, err := lister.Properties(ctx, req.SourceCollection)
	if err != nil {
		return fmt.Errorf("list collection properties: %w", err)
	}
	known := make(map[string]struct{}, len(props))
	for _, p := range props {
		known[p] = struct{}{}
	}

	var missing []string
	for f := range fields {
		root, _, _ := strings.Cut(f, ".")
		if _, ok := known[root]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingFieldsError{Collection: req.SourceCollection, Fields: missing}
}

// Stats summarises a finished run.
type Stats struct {
	Read     int `json:"read"`
	Filtered int `json:"filtered"`
	Chunks   int `json:"chunks"`
}

type Config struct {
	Kind    embedding.Kind
	Workers int
	Factory embedding.Factory
	Indexer Indexer
}

type Pipeline struct {
	batcher *Batcher
	cfg     Config
}

func New(batcher *Batcher, cfg Config) *Pipeline {
	return &Pipeline{batcher: batcher, cfg: cfg}
}

// Run renders every record of the source collection, embeds the chunks and
// upserts them into the target collection. It returns after all batches
// have finished; the first failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, req Request) (Stats, error) {
	var stats Stats
	if err := req.Validate(); err != nil {
		return stats, err
	}

	slog.InfoContext(ctx, "starting embeddings pipeline",
		"source", req.SourceCollection,
		"target", req.TargetCollection,
		"workers", p.cfg.Workers,
		"limit", req.limit(),
		"normalize", req.Normalize,
	)
	start := time.Now()

	exec, err := NewExecutor(ExecutorConfig{
		Kind:       p.cfg.Kind,
		Workers:    p.cfg.Workers,
		Factory:    p.cfg.Factory,
		Indexer:    p.cfg.Indexer,
		Collection: req.TargetCollection,
		Normalize:  req.Normalize,
	})
	if err != nil {
		return stats, err
	}

	render := cardChunk
	if req.ChunkMappings != nil {
		render = templateChunk(*req.ChunkMappings)
	}

	loadErr := p.batcher.Each(ctx, req.SourceCollection, req.limit(), func(batch []records.Record) error {
		slog.DebugContext(ctx, "loaded batch", "records", len(batch))
		chunks := make([]EmbeddingRecord, 0, len(batch))
		for _, rec := range batch {
			stats.Read++
			summary, keep, err := render(rec)
			if err != nil {
				return err
			}
			if !keep {
				stats.Filtered++
				continue
			}
			chunks = append(chunks, EmbeddingRecord{ID: rec.ID, SourceID: rec.ID, Summary: summary})
			stats.Chunks++
		}
		return exec.Submit(ctx, chunks)
	})
	waitErr := exec.Wait()

	if loadErr != nil {
		return stats, loadErr
	}
	if waitErr != nil {
		return stats, waitErr
	}

	slog.InfoContext(ctx, "embeddings pipeline finished",
		"read", stats.Read,
		"filtered", stats.Filtered,
		"chunks", stats.Chunks,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

type renderFunc func(records.Record) (summary string, keep bool, err error)

func cardChunk(rec records.Record) (string, bool, error) {
	if chunk.IsPlaceholderCard(rec.Fields) {
		return "", false, nil
	}
	return chunk.CardSummary(rec.Fields), true, nil
}

func templateChunk(template string) renderFunc {
	return func(rec records.Record) (string, bool, error) {
		s, err := chunk.Render(rec.Fields, template)
		return s, err == nil, err
	}
}
