package retrieval

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrNoJSONObject = errors.New("model response must contain a JSON object")

	unquotedKey = regexp.MustCompile(`([{\s,])([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
)

type answerPayload struct {
	Answer   *string `json:"answer"`
	SourceID *string `json:"source_id"`
}

type sourceIDPayload struct {
	SourceID *string `json:"source_id"`
}

// ParseAnswer decodes an {answer, source_id} reply.
func ParseAnswer(text string) (string, *string, error) {
	var p answerPayload
	if err := decodeReply(text, &p); err != nil {
		return "", nil, err
	}
	if p.Answer == nil {
		return "", nil, fmt.Errorf("model response is missing answer")
	}
	return strings.TrimSpace(*p.Answer), cleanID(p.SourceID), nil
}

// ParseSourceID decodes a {source_id} reply.
func ParseSourceID(text string) (*string, error) {
	var p sourceIDPayload
	if err := decodeReply(text, &p); err != nil {
		return nil, err
	}
	return cleanID(p.SourceID), nil
}

func decodeReply(text string, v any) error {
	obj, ok := extractObject(text)
	if !ok {
		return ErrNoJSONObject
	}
	err := strictDecode(obj, v)
	if err == nil {
		return nil
	}
	// Some models reply with unquoted keys, e.g. { source_id: "..." }.
	if retryErr := strictDecode(unquotedKey.ReplaceAllString(obj, `$1"$2"$3`), v); retryErr == nil {
		return nil
	}
	return fmt.Errorf("decode model response: %w", err)
}

func strictDecode(s string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON object")
	}
	return nil
}

func extractObject(text string) (string, bool) {
	s := stripCodeFence(text)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s, true
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}

func cleanID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
