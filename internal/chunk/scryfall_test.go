package chunk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/timrodz/cards-oracle/internal/chunk"
)

func TestCardSummary(t *testing.T) {
	tests := []struct {
		name string
		card map[string]any
		want string
	}{
		{
			name: "full card",
			card: map[string]any{
				"name":        "Lightning Bolt",
				"type_line":   "Instant",
				"set_name":    "Alpha",
				"mana_cost":   "{R}",
				"cmc":         1.0,
				"oracle_text": "Lightning Bolt deals 3 damage to any target.",
			},
			want: "Card Name: Lightning Bolt. Type: Instant. Set: Alpha. Cost: R (CMC or mana value 1.0). Abilities: Lightning Bolt deals 3 damage to any target.. ",
		},
		{
			name: "mana symbols in oracle text",
			card: map[string]any{
				"name":        "Llanowar Elves",
				"type_line":   "Creature — Elf Druid",
				"set_name":    "Dominaria",
				"mana_cost":   "{G}",
				"cmc":         1.0,
				"oracle_text": "{T}: Add {G}.",
			},
			want: "Card Name: Llanowar Elves. Type: Creature — Elf Druid. Set: Dominaria. Cost: G (CMC or mana value 1.0). Abilities: T : Add G .. ",
		},
		{
			name: "no cost and no abilities",
			card: map[string]any{
				"name":      "Plains",
				"type_line": "Basic Land — Plains",
				"set_name":  "Unlimited",
			},
			want: "Card Name: Plains. Type: Basic Land — Plains. Set: Unlimited. Cost: None. Abilities: None. ",
		},
		{
			name: "fractional cmc",
			card: map[string]any{
				"name":      "Little Girl",
				"type_line": "Creature — Human Child",
				"set_name":  "Unhinged",
				"mana_cost": "{W/2}",
				"cmc":       0.5,
			},
			want: "Card Name: Little Girl. Type: Creature — Human Child. Set: Unhinged. Cost: W/2 (CMC or mana value 0.5). Abilities: None. ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunk.CardSummary(tt.card))
		})
	}
}

func TestIsPlaceholderCard(t *testing.T) {
	tests := []struct {
		name string
		card map[string]any
		want bool
	}{
		{
			name: "regular card",
			card: map[string]any{"type_line": "Instant", "cmc": 0.0},
			want: false,
		},
		{
			name: "empty single faced stub",
			card: map[string]any{"type_line": "Card", "cmc": 0.0, "colors": []any{}, "color_identity": []any{}, "keywords": []any{}, "mana_cost": ""},
			want: true,
		},
		{
			name: "stub with colors",
			card: map[string]any{"type_line": "Card", "cmc": 0.0, "colors": []any{"U"}, "mana_cost": ""},
			want: false,
		},
		{
			name: "double faced with empty face",
			card: map[string]any{
				"type_line": "Card // Card",
				"card_faces": []any{
					map[string]any{"mana_cost": "{U}", "colors": []any{"U"}},
					map[string]any{"mana_cost": "", "colors": []any{}},
				},
			},
			want: true,
		},
		{
			name: "double faced with populated faces",
			card: map[string]any{
				"type_line": "Card // Card",
				"card_faces": []any{
					map[string]any{"mana_cost": "{U}", "colors": []any{"U"}},
					map[string]any{"mana_cost": "", "colors": []any{"B"}},
				},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chunk.IsPlaceholderCard(tt.card))
		})
	}
}
