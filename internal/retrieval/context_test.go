package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestBuildContext(t *testing.T) {
	results := []SearchResult{
		{SourceID: "a", Summary: "first card", Score: 0.9},
		{SourceID: "b", Summary: "second card", Score: 0.8},
		{SourceID: "", Summary: "third card", Score: 0.7},
	}

	t.Run("WithSourceIDs", func(t *testing.T) {
		got := BuildContext(results, 4000, true)
		assert.Equal(t, "source_id: a\nfirst card\nsource_id: b\nsecond card\nthird card", got)
	})

	t.Run("WithoutSourceIDs", func(t *testing.T) {
		got := BuildContext(results, 4000, false)
		assert.Equal(t, "first card\nsecond card\nthird card", got)
	})

	t.Run("TruncatesOverflowingSection", func(t *testing.T) {
		// "first card" (10) + "\n" (1) leaves 4 bytes for the second section.
		got := BuildContext(results, 15, false)
		assert.Equal(t, "first card\nseco", got)
	})

	t.Run("SeparatorExhaustsBudget", func(t *testing.T) {
		got := BuildContext(results, 11, false)
		assert.Equal(t, "first card", got)
	})

	t.Run("ZeroBudget", func(t *testing.T) {
		assert.Equal(t, "", BuildContext(results, 0, true))
	})

	t.Run("NoResults", func(t *testing.T) {
		assert.Equal(t, "", BuildContext(nil, 4000, true))
	})

	t.Run("EmptySummaries", func(t *testing.T) {
		got := BuildContext([]SearchResult{{Summary: "  "}, {Summary: ""}}, 4000, false)
		assert.Equal(t, "", got)
	})
}

func TestBuildContext_BudgetInvariant(t *testing.T) {
	results := []SearchResult{
		{SourceID: "77c6fa74", Summary: strings.Repeat("Ætherflux ", 40)},
		{SourceID: "1b2c", Summary: strings.Repeat("Jötun Grunt ", 25)},
		{SourceID: "9f", Summary: "short"},
	}

	for maxChars := 0; maxChars < 900; maxChars += 7 {
		for _, ids := range []bool{true, false} {
			got := BuildContext(results, maxChars, ids)
			assert.LessOrEqual(t, len(got), maxChars)
			assert.True(t, utf8.ValidString(got), "cut inside a rune at %d", maxChars)
		}
	}
}

func TestBuildContext_PreservesRankOrder(t *testing.T) {
	results := []SearchResult{
		{Summary: "alpha"},
		{Summary: "beta"},
		{Summary: "gamma"},
	}
	got := BuildContext(results, 4000, false)
	assert.Less(t, strings.Index(got, "alpha"), strings.Index(got, "beta"))
	assert.Less(t, strings.Index(got, "beta"), strings.Index(got, "gamma"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	// "é" is two bytes; cutting after its first byte backs off.
	assert.Equal(t, "a", truncate("aé", 2))
	assert.Equal(t, "", truncate("é", 1))
}
