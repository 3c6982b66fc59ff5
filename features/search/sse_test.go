package search_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timrodz/cards-oracle/features/search"
	"github.com/timrodz/cards-oracle/internal/retrieval"
)

func decodeFrame(t *testing.T, frame []byte) map[string]interface{} {
	t.Helper()
	s := string(frame)
	require.True(t, strings.HasPrefix(s, "data: "), s)
	require.True(t, strings.HasSuffix(s, "\n\n"), s)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(s, "data: "), "\n\n")), &out))
	return out
}

func TestEncoder_ValidEvents(t *testing.T) {
	enc, err := search.NewEncoder()
	require.NoError(t, err)

	q := "who?"
	tests := []struct {
		name string
		ev   retrieval.Event
		want map[string]interface{}
	}{
		{"Meta", retrieval.NewMetaEvent(nil, ""), map[string]interface{}{"type": "meta", "results": []interface{}{}, "context": ""}},
		{"Chunk", retrieval.NewChunkEvent("Sol"), map[string]interface{}{"type": "chunk", "content": "Sol"}},
		{"Seeking", retrieval.NewSeekingCardEvent(), map[string]interface{}{"type": "seeking_card"}},
		{"Found", retrieval.NewFoundCardEvent("abc"), map[string]interface{}{"type": "found_card", "id": "abc"}},
		{"Done", retrieval.NewDoneEvent(), map[string]interface{}{"type": "done"}},
		{"ErrorNoQuery", retrieval.NewErrorEvent("boom", nil), map[string]interface{}{"type": "error", "message": "boom"}},
		{"ErrorQuery", retrieval.NewErrorEvent("boom", &q), map[string]interface{}{"type": "error", "message": "boom", "query": "who?"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeFrame(t, enc.Encode(tt.ev)))
		})
	}
}

func TestEncoder_MetaWithResults(t *testing.T) {
	enc, err := search.NewEncoder()
	require.NoError(t, err)

	ev := retrieval.NewMetaEvent([]retrieval.SearchResult{{SourceID: "s1", Summary: "Sol Ring", Score: 0.9}}, "ctx")
	got := decodeFrame(t, enc.Encode(ev))
	assert.Equal(t, "meta", got["type"])
	assert.Len(t, got["results"], 1)
}

func TestEncoder_InvalidPayload(t *testing.T) {
	enc, err := search.NewEncoder()
	require.NoError(t, err)

	t.Run("EmptyFoundID", func(t *testing.T) {
		got := decodeFrame(t, enc.Encode(retrieval.FoundCardEvent{Type: retrieval.TypeFoundCard}))
		assert.Equal(t, "error", got["type"])
		assert.True(t, strings.HasPrefix(got["message"].(string), "Invalid stream event payload: "))
	})

	t.Run("UnknownType", func(t *testing.T) {
		got := decodeFrame(t, enc.Encode(retrieval.ChunkEvent{Type: "bogus", Content: "x"}))
		assert.Equal(t, "error", got["type"])
	})

	t.Run("Unmarshalable", func(t *testing.T) {
		got := decodeFrame(t, enc.Encode(func() {}))
		assert.Equal(t, "error", got["type"])
		assert.Contains(t, got["message"], "Invalid stream event payload: ")
	})
}
