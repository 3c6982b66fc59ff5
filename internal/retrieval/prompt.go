package retrieval

import (
	"encoding/json"
	"strings"
)

const (
	answerRole      = "You help users find cards for Magic: The Gathering."
	attributionRole = "You identify the best matching card from provided context."

	baseInstructions = "Answer the question using the provided context. " +
		"If the context is insufficient, say so and suggest what to ask next."

	jsonInstructions = "If you can confidently pinpoint a single specific card from the context, " +
		"include its source_id in the response. Only use source_id values that " +
		"appear in the context. If not confident, set source_id to null. " +
		"Return only JSON with keys: answer (string), source_id (string|null)"

	attributionInstructions = "Given the question, context, and answer, choose the single best " +
		"source_id if the answer clearly refers to one card. " +
		"Only use source_id values that appear in the context. " +
		"If not confident, set source_id to null. " +
		"Return only JSON with key: source_id (string|null). " +
		`Example response: { "source_id": "77c6fa74-5543-42ac-9ead-0e890b188e99" }`
)

type answerPrompt struct {
	Role         string `json:"role"`
	Instructions string `json:"instructions"`
	Context      string `json:"context"`
	Question     string `json:"question"`
}

type attributionPrompt struct {
	Role         string `json:"role"`
	Instructions string `json:"instructions"`
	Context      string `json:"context"`
	Question     string `json:"question"`
	Answer       string `json:"answer"`
}

// AnswerPrompt renders the prompt that asks for an answer. With requireJSON
// the model must reply with {answer, source_id}.
func AnswerPrompt(question, context string, requireJSON bool) (string, error) {
	instructions := baseInstructions
	if requireJSON {
		instructions = strings.Join([]string{baseInstructions, jsonInstructions}, "\n")
	}
	return encodePrompt(answerPrompt{
		Role:         answerRole,
		Instructions: instructions,
		Context:      context,
		Question:     question,
	})
}

// SourceIDPrompt asks, after the fact, which card an answer refers to.
func SourceIDPrompt(question, context, answer string) (string, error) {
	return encodePrompt(attributionPrompt{
		Role:         attributionRole,
		Instructions: attributionInstructions,
		Context:      context,
		Question:     question,
		Answer:       answer,
	})
}

func encodePrompt(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
