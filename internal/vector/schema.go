package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate/entities/models"
)

var ErrIndexConflict = errors.New("vector index already exists with a different similarity")

// SchemaClient defines the Weaviate schema operations used to manage
// indexes.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// Properties stored alongside every embedded chunk.
func chunkProperties() []*models.Property {
	return []*models.Property{
		{Name: "recordId", DataType: []string{"string"}},
		{Name: "sourceId", DataType: []string{"string"}},
		{Name: "summary", DataType: []string{"text"}},
	}
}

// Class builds the Weaviate class backing the index. Vectors are supplied
// by the pipeline, never by a Weaviate module.
func (d IndexDefinition) Class() *models.Class {
	field := d.VectorField()
	return &models.Class{
		Class:           ClassName(d.Name),
		Description:     fmt.Sprintf("vectorSearch index %s on %s (%d dimensions)", d.Name, field.Path, field.NumDimensions),
		Vectorizer:      "none",
		VectorIndexType: "flat",
		VectorIndexConfig: map[string]interface{}{
			"distance": field.Similarity.Distance(),
		},
		Properties: chunkProperties(),
	}
}

// EnsureIndex creates the class for def when it does not exist and adds any
// missing chunk properties when it does. An existing class with another
// distance metric is reported as ErrIndexConflict.
func EnsureIndex(ctx context.Context, client SchemaClient, def IndexDefinition) error {
	want := def.Class()
	exists, err := client.ClassExists(ctx, want.Class)
	if err != nil {
		return err
	}
	if !exists {
		slog.InfoContext(ctx, "creating vector index", "class", want.Class, "distance", def.VectorField().Similarity.Distance())
		return client.CreateClass(ctx, want)
	}

	class, err := client.GetClass(ctx, want.Class)
	if err != nil {
		return err
	}
	if got := classDistance(class); got != "" && got != def.VectorField().Similarity.Distance() {
		return fmt.Errorf("%w: %s uses %s", ErrIndexConflict, want.Class, got)
	}

	existing := make(map[string]bool)
	for _, p := range class.Properties {
		existing[p.Name] = true
	}
	for _, p := range want.Properties {
		if !existing[p.Name] {
			if err := client.AddProperty(ctx, want.Class, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func classDistance(class *models.Class) string {
	if class == nil {
		return ""
	}
	cfg, ok := class.VectorIndexConfig.(map[string]interface{})
	if !ok {
		return ""
	}
	d, _ := cfg["distance"].(string)
	return d
}
