package chunk

import (
	"fmt"
	"strconv"
	"strings"
)

// CardSummary renders a Scryfall card into the default searchable summary
// used when no template is configured.
func CardSummary(card map[string]any) string {
	name := stringField(card, "name")
	typeLine := stringField(card, "type_line")
	setName := stringField(card, "set_name")
	manaCost := normalizeManaSymbols(stringField(card, "mana_cost"))
	oracleText := normalizeManaSymbols(stringField(card, "oracle_text"))

	var costParts []string
	if manaCost != "" {
		costParts = append(costParts, "Cost: "+manaCost)
	}
	if cmc, ok := card["cmc"].(float64); ok {
		costParts = append(costParts, fmt.Sprintf("(CMC or mana value %s)", formatCMC(cmc)))
	}
	cost := "Cost: None"
	if len(costParts) > 0 {
		cost = strings.Join(costParts, " ")
	}

	abilities := "Abilities: None"
	if oracleText != "" {
		abilities = "Abilities: " + oracleText
	}

	return fmt.Sprintf("Card Name: %s. Type: %s. Set: %s. %s. %s. ", name, typeLine, setName, cost, abilities)
}

// IsPlaceholderCard reports whether a card is one of the empty "Card" stubs
// found in bulk Scryfall exports.
func IsPlaceholderCard(card map[string]any) bool {
	typeLine := stringField(card, "type_line")
	if typeLine != "Card" && typeLine != "Card // Card" {
		return false
	}

	if faces, ok := card["card_faces"].([]any); ok && len(faces) > 0 {
		for _, f := range faces {
			face, ok := f.(map[string]any)
			if ok && isEmptyFace(face) {
				return true
			}
		}
		return false
	}

	cmc, _ := card["cmc"].(float64)
	return cmc == 0 &&
		listLen(card["colors"]) == 0 &&
		listLen(card["color_identity"]) == 0 &&
		listLen(card["keywords"]) == 0 &&
		stringField(card, "mana_cost") == ""
}

func isEmptyFace(face map[string]any) bool {
	manaCost, present := face["mana_cost"].(string)
	if !present || manaCost != "" {
		return false
	}
	colors, isList := face["colors"].([]any)
	if isList {
		return len(colors) == 0
	}
	return face["colors"] == nil
}

func normalizeManaSymbols(s string) string {
	s = strings.NewReplacer("{", " ", "}", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func formatCMC(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func listLen(v any) int {
	l, _ := v.([]any)
	return len(l)
}
