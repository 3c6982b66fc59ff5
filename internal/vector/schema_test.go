package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/weaviate/weaviate/entities/models"
)

type MockSchemaClient struct {
	CreatedClass    *models.Class
	ExistingClass   *models.Class
	AddedProperties []*models.Property
	CheckedName     string
}

func (m *MockSchemaClient) ClassExists(ctx context.Context, className string) (bool, error) {
	m.CheckedName = className
	return m.ExistingClass != nil, nil
}

func (m *MockSchemaClient) CreateClass(ctx context.Context, class *models.Class) error {
	m.CreatedClass = class
	return nil
}

func (m *MockSchemaClient) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return m.ExistingClass, nil
}

func (m *MockSchemaClient) AddProperty(ctx context.Context, className string, property *models.Property) error {
	m.AddedProperties = append(m.AddedProperties, property)
	return nil
}

func TestEnsureIndex_CreatesClass(t *testing.T) {
	client := &MockSchemaClient{}
	def := NewIndexDefinition("card_embeddings", "embeddings", 384, Cosine)

	if err := EnsureIndex(context.Background(), client, def); err != nil {
		t.Fatalf("EnsureIndex failed: %v", err)
	}
	if client.CheckedName != "CardEmbeddings" {
		t.Errorf("checked class %q, want CardEmbeddings", client.CheckedName)
	}

	class := client.CreatedClass
	if class == nil {
		t.Fatal("Class not created")
	}
	if class.Vectorizer != "none" {
		t.Errorf("Vectorizer = %q, want none", class.Vectorizer)
	}
	if class.VectorIndexType != "flat" {
		t.Errorf("VectorIndexType = %q, want flat", class.VectorIndexType)
	}
	cfg := class.VectorIndexConfig.(map[string]interface{})
	if cfg["distance"] != "cosine" {
		t.Errorf("distance = %v, want cosine", cfg["distance"])
	}

	expectedProps := map[string]string{
		"recordId": "string",
		"sourceId": "string",
		"summary":  "text",
	}
	if len(class.Properties) != len(expectedProps) {
		t.Fatalf("got %d properties, want %d", len(class.Properties), len(expectedProps))
	}
	for _, prop := range class.Properties {
		if prop.DataType[0] != expectedProps[prop.Name] {
			t.Errorf("Property %s has wrong DataType: %v", prop.Name, prop.DataType)
		}
	}
}

func TestEnsureIndex_AddsMissingProperties(t *testing.T) {
	client := &MockSchemaClient{
		ExistingClass: &models.Class{
			Class:             "CardEmbeddings",
			VectorIndexConfig: map[string]interface{}{"distance": "dot"},
			Properties: []*models.Property{
				{Name: "sourceId", DataType: []string{"string"}},
			},
		},
	}

	def := NewIndexDefinition("card_embeddings", "embeddings", 384, DotProduct)
	if err := EnsureIndex(context.Background(), client, def); err != nil {
		t.Fatalf("EnsureIndex failed: %v", err)
	}
	if client.CreatedClass != nil {
		t.Fatal("Should not recreate class if it exists")
	}

	added := map[string]bool{}
	for _, p := range client.AddedProperties {
		added[p.Name] = true
	}
	if !added["recordId"] || !added["summary"] {
		t.Errorf("missing properties not added: %v", added)
	}
	if added["sourceId"] {
		t.Error("Should not re-add existing 'sourceId' property")
	}
}

func TestEnsureIndex_DistanceConflict(t *testing.T) {
	client := &MockSchemaClient{
		ExistingClass: &models.Class{
			Class:             "CardEmbeddings",
			VectorIndexConfig: map[string]interface{}{"distance": "cosine"},
		},
	}

	err := EnsureIndex(context.Background(), client, NewIndexDefinition("card_embeddings", "embeddings", 384, Euclidean))
	if !errors.Is(err, ErrIndexConflict) {
		t.Fatalf("expected ErrIndexConflict, got %v", err)
	}
}
