package vector

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// Similarity is the metric a vector index ranks by.
type Similarity string

const (
	DotProduct Similarity = "dot_product"
	Cosine     Similarity = "cosine"
	Euclidean  Similarity = "euclidean"
)

func ParseSimilarity(s string) (Similarity, error) {
	switch sim := Similarity(s); sim {
	case DotProduct, Cosine, Euclidean:
		return sim, nil
	case "":
		return DotProduct, nil
	default:
		return "", fmt.Errorf("unsupported similarity %q: use dot_product, cosine or euclidean", s)
	}
}

// Distance returns the Weaviate distance metric for the similarity.
func (s Similarity) Distance() string {
	switch s {
	case Cosine:
		return "cosine"
	case Euclidean:
		return "l2-squared"
	default:
		return "dot"
	}
}

// Score converts a Weaviate distance into a similarity score where higher
// is closer.
func (s Similarity) Score(distance float64) float64 {
	switch s {
	case Cosine:
		return 1 - distance/2
	case Euclidean:
		return 1 / (1 + math.Sqrt(math.Max(distance, 0)))
	default:
		return (1 - distance) / 2
	}
}

type Field struct {
	Type          string     `json:"type"`
	NumDimensions int        `json:"numDimensions"`
	Path          string     `json:"path"`
	Similarity    Similarity `json:"similarity"`
}

// IndexDefinition describes a vector search index over one collection.
type IndexDefinition struct {
	Name   string  `json:"name"`
	Type   string  `json:"type"`
	Fields []Field `json:"fields"`
}

func NewIndexDefinition(name, path string, dimensions int, sim Similarity) IndexDefinition {
	return IndexDefinition{
		Name: name,
		Type: "vectorSearch",
		Fields: []Field{{
			Type:          "vector",
			NumDimensions: dimensions,
			Path:          path,
			Similarity:    sim,
		}},
	}
}

// VectorField returns the single vector field of the definition.
func (d IndexDefinition) VectorField() Field {
	for _, f := range d.Fields {
		if f.Type == "vector" {
			return f
		}
	}
	return Field{Type: "vector", Similarity: DotProduct}
}

// ClassName maps a collection name such as "card_embeddings" to the
// Weaviate class "CardEmbeddings".
func ClassName(collection string) string {
	var b strings.Builder
	upper := true
	for _, r := range collection {
		if r == '_' || r == '-' || r == ' ' || r == '.' {
			upper = true
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	name := b.String()
	if name == "" || !unicode.IsLetter(rune(name[0])) {
		name = "C" + name
	}
	return name
}
