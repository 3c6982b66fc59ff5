package card

import (
	"encoding/json"
	"regexp"
	"strings"
)

var sourceIDPattern = regexp.MustCompile(`^\{\s*source_id\s*:\s*([^}]+)\s*\}$`)

// NormalizeID accepts a bare id or the attribution object a model may echo
// back, either as {source_id: X} or as JSON.
func NormalizeID(raw string) string {
	value := strings.TrimSpace(raw)

	if m := sourceIDPattern.FindStringSubmatch(value); m != nil {
		return strings.Trim(strings.Trim(strings.TrimSpace(m[1]), `"`), "'")
	}

	if strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}") {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			return value
		}
		if id, ok := parsed["source_id"].(string); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	return value
}
