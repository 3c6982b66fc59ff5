package chunk

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var fieldToken = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// TemplateSyntaxError reports braces that are not part of a placeholder.
type TemplateSyntaxError struct {
	Template string
}

func (e *TemplateSyntaxError) Error() string {
	return "Invalid chunk_mappings syntax. Use placeholders like {field_name}."
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `''`,
	`"`, `\"`,
	"\x00", "",
	"\n", `\n`,
	"\r", `\r`,
)

// Validate checks that every brace in the template belongs to a placeholder.
func Validate(template string) error {
	cleaned := fieldToken.ReplaceAllString(template, "")
	if strings.ContainsAny(cleaned, "{}") {
		return &TemplateSyntaxError{Template: template}
	}
	return nil
}

// ExtractFields returns the distinct field paths referenced by the template.
func ExtractFields(template string) (map[string]struct{}, error) {
	if err := Validate(template); err != nil {
		return nil, err
	}
	fields := make(map[string]struct{})
	for _, m := range fieldToken.FindAllStringSubmatch(template, -1) {
		fields[m[1]] = struct{}{}
	}
	return fields, nil
}

// Render substitutes the record fields into the template. Literal text is
// escaped, field values are inserted as they are.
func Render(fields map[string]any, template string) (string, error) {
	if err := Validate(template); err != nil {
		return "", err
	}

	var b strings.Builder
	pos := 0
	for _, loc := range fieldToken.FindAllStringSubmatchIndex(template, -1) {
		b.WriteString(EscapeLiteral(template[pos:loc[0]]))
		b.WriteString(formatValue(Lookup(fields, template[loc[2]:loc[3]])))
		pos = loc[1]
	}
	b.WriteString(EscapeLiteral(template[pos:]))
	return b.String(), nil
}

// EscapeLiteral escapes characters that would break out of a quoted string.
func EscapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

// Lookup walks a dot separated path through nested maps. Missing keys and
// non-map intermediates yield nil.
func Lookup(fields map[string]any, path string) any {
	var current any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	default:
		return fmt.Sprint(t)
	}
}
