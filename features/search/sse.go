package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/timrodz/cards-oracle/internal/retrieval"
)

// eventSchema accepts exactly the frames a search stream may carry.
const eventSchema = `{
  "definitions": {
    "result": {
      "type": "object",
      "properties": {
        "source_id": {"type": "string"},
        "summary": {"type": "string"},
        "score": {"type": "number"}
      },
      "required": ["source_id", "summary", "score"]
    }
  },
  "oneOf": [
    {
      "type": "object",
      "properties": {
        "type": {"enum": ["meta"]},
        "results": {"type": "array", "items": {"$ref": "#/definitions/result"}},
        "context": {"type": "string"}
      },
      "required": ["type", "results", "context"],
      "additionalProperties": false
    },
    {
      "type": "object",
      "properties": {
        "type": {"enum": ["chunk"]},
        "content": {"type": "string"}
      },
      "required": ["type", "content"],
      "additionalProperties": false
    },
    {
      "type": "object",
      "properties": {"type": {"enum": ["seeking_card", "done"]}},
      "required": ["type"],
      "additionalProperties": false
    },
    {
      "type": "object",
      "properties": {
        "type": {"enum": ["found_card"]},
        "id": {"type": "string", "minLength": 1}
      },
      "required": ["type", "id"],
      "additionalProperties": false
    },
    {
      "type": "object",
      "properties": {
        "type": {"enum": ["error"]},
        "message": {"type": "string"},
        "query": {"type": "string"}
      },
      "required": ["type", "message"],
      "additionalProperties": false
    }
  ]
}`

// Encoder renders stream events as SSE data frames. A payload that does not
// match the event schema is replaced by an error frame.
type Encoder struct {
	schema *gojsonschema.Schema
}

func NewEncoder() (*Encoder, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(eventSchema))
	if err != nil {
		return nil, fmt.Errorf("compile stream event schema: %w", err)
	}
	return &Encoder{schema: schema}, nil
}

func (e *Encoder) Encode(ev any) []byte {
	payload, err := json.Marshal(ev)
	if err != nil {
		return e.invalid(err.Error())
	}

	result, err := e.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return e.invalid(err.Error())
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return e.invalid(strings.Join(msgs, "; "))
	}
	return frame(payload)
}

func (e *Encoder) invalid(reason string) []byte {
	payload, _ := json.Marshal(retrieval.NewErrorEvent("Invalid stream event payload: "+reason, nil))
	return frame(payload)
}

func frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	out = append(out, "data: "...)
	out = append(out, payload...)
	return append(out, '\n', '\n')
}
