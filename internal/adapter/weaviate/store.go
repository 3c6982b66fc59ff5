package weaviate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/timrodz/cards-oracle/internal/pipeline"
	"github.com/timrodz/cards-oracle/internal/retrieval"
	"github.com/timrodz/cards-oracle/internal/vector"
)

// objectNamespace seeds deterministic object ids so re-embedding a record
// replaces its previous chunk.
var objectNamespace = uuid.MustParse("3f1e0a52-8c1d-4b8e-9a57-6c2f7d9e4b10")

// IndexOperationError reports objects of one batch that Weaviate rejected.
type IndexOperationError struct {
	Collection string
	Failed     int
	Total      int
	Messages   []string
}

func (e *IndexOperationError) Error() string {
	return fmt.Sprintf("index write to %s failed for %d of %d objects: %s", e.Collection, e.Failed, e.Total, strings.Join(e.Messages, "; "))
}

// Store is the vector index over embedded chunks. Searches run against
// one configured collection.
type Store struct {
	client     *weaviate.Client
	collection string
	similarity vector.Similarity
}

func NewStore(client *weaviate.Client, collection string, similarity vector.Similarity) *Store {
	return &Store{client: client, collection: collection, similarity: similarity}
}

// ObjectID is the Weaviate id of a record within a collection.
func ObjectID(collection, recordID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(objectNamespace, []byte(collection+":"+recordID)).String())
}

// Upsert writes recs in one unordered batch. Existing objects with the same
// id are replaced.
func (s *Store) Upsert(ctx context.Context, collection string, recs []pipeline.EmbeddingRecord) error {
	if len(recs) == 0 {
		return nil
	}
	className := vector.ClassName(collection)

	objects := make([]*models.Object, len(recs))
	for i, r := range recs {
		objects[i] = &models.Object{
			Class: className,
			ID:    ObjectID(collection, r.ID),
			Properties: map[string]interface{}{
				"recordId": r.ID,
				"sourceId": r.SourceID,
				"summary":  r.Summary,
			},
			Vector: r.Vector,
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("batch upsert into %s: %w", className, err)
	}

	var messages []string
	for _, obj := range resp {
		if obj.Result == nil || obj.Result.Errors == nil {
			continue
		}
		for _, e := range obj.Result.Errors.Error {
			if e != nil {
				messages = append(messages, fmt.Sprintf("%s: %s", obj.ID, e.Message))
			}
		}
	}
	if len(messages) > 0 {
		return &IndexOperationError{Collection: collection, Failed: len(messages), Total: len(recs), Messages: messages}
	}
	return nil
}

// Search returns the limit nearest chunks to vec, highest score first.
func (s *Store) Search(ctx context.Context, vec []float32, limit int) ([]retrieval.SearchResult, error) {
	className := vector.ClassName(s.collection)
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "sourceId"},
		{Name: "summary"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(className).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	results := []retrieval.SearchResult{}
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if chunks, ok := data[className].([]interface{}); ok {
			for _, c := range chunks {
				props, ok := c.(map[string]interface{})
				if !ok {
					continue
				}
				r := retrieval.SearchResult{}
				r.SourceID, _ = props["sourceId"].(string)
				r.Summary, _ = props["summary"].(string)
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					if d, ok := additional["distance"].(float64); ok {
						r.Score = s.similarity.Score(d)
					}
				}
				results = append(results, r)
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	slog.DebugContext(ctx, "vector search finished", "class", className, "results", len(results))
	return results, nil
}

// CreateIndex creates or updates the class described by def.
func (s *Store) CreateIndex(ctx context.Context, def vector.IndexDefinition) error {
	return vector.EnsureIndex(ctx, vector.NewWeaviateSchema(s.client), def)
}

// Count returns the number of chunks stored for a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	className := vector.ClassName(collection)
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	rows, ok := agg[className].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]interface{})
	meta, _ := row["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count), nil
}
