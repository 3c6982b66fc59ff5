package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timrodz/cards-oracle/features/card"
	"github.com/timrodz/cards-oracle/internal/middleware"
	"github.com/timrodz/cards-oracle/internal/records"
	"github.com/timrodz/cards-oracle/internal/retrieval"
)

type Retriever interface {
	Search(ctx context.Context, question string, normalize bool) (*retrieval.SearchResponse, error)
	Find(ctx context.Context, question string, normalize bool) ([]retrieval.SearchResult, error)
}

type RecordGetter interface {
	Get(ctx context.Context, collection, id string) (*records.Record, error)
}

type Handler struct {
	retriever    Retriever
	cards        RecordGetter
	collection   string
	keepAlive    time.Duration
	sessions     map[string]chan string // sessionId -> serialized JSON-RPC responses
	sessionsLock sync.RWMutex
}

func NewHandler(r Retriever, cards RecordGetter, collection string) *Handler {
	return &Handler{
		retriever:  r,
		cards:      cards,
		collection: collection,
		keepAlive:  15 * time.Second,
		sessions:   make(map[string]chan string),
	}
}

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type QuestionArgs struct {
	Question  string `json:"question"`
	Normalize *bool  `json:"normalize,omitempty"`
}

func (a QuestionArgs) normalize() bool {
	return a.Normalize == nil || *a.Normalize
}

type CardArgs struct {
	ID string `json:"id"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

var questionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"question": map[string]string{
			"type":        "string",
			"description": "Natural language question about the cards",
		},
		"normalize": map[string]string{
			"type":        "boolean",
			"description": "Normalize the question embedding (default true)",
		},
	},
	"required": []string{"question"},
}

func tools() []Tool {
	return []Tool{
		{
			Name: "cards_search",
			Description: `Answers a question about the card catalogue. Retrieves the nearest card chunks and asks the language model for an answer grounded in them.

The result names the card the answer came from when the model is confident.

USAGE EXAMPLE:
cards_search(question="Which red instant deals 3 damage for one mana?")`,
			InputSchema: questionSchema,
		},
		{
			Name: "cards_find",
			Description: `Lists the card chunks nearest to a question, with their source ids and similarity scores. No answer is generated.

Use this to explore candidates, then read a card with cards_get.`,
			InputSchema: questionSchema,
		},
		{
			Name:        "cards_get",
			Description: `Reads the full record of one card by its id.`,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]string{
						"type":        "string",
						"description": "The card id, as returned in source_id",
					},
				},
				"required": []string{"id"},
			},
		},
	}
}

// ProcessRequest handles one JSON-RPC request. It returns nil for
// notifications.
func (h *Handler) ProcessRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
				"serverInfo": map[string]interface{}{
					"name":    "cards-oracle-mcp",
					"version": "1.0.0",
				},
			},
		}
	case "notifications/initialized":
		return nil
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: tools()}}
	case "tools/call":
		var params CallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid params")
			return &resp
		}
		return h.callTool(ctx, req.ID, params)
	}

	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found")
	return &resp
}

func (h *Handler) callTool(ctx context.Context, id interface{}, params CallParams) *JSONRPCResponse {
	correlationID := middleware.GetCorrelationID(ctx)
	slog.InfoContext(ctx, "tool execution started", "tool", params.Name, "correlationId", correlationID)

	switch params.Name {
	case "cards_search":
		var args QuestionArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			resp := makeErrorResponse(id, ErrInvalidParams, "Invalid arguments")
			return &resp
		}
		answer, err := h.retriever.Search(ctx, args.Question, args.normalize())
		if errors.Is(err, retrieval.ErrEmptyQuestion) {
			resp := makeErrorResponse(id, ErrInvalidParams, "question must not be empty")
			return &resp
		}
		if err != nil {
			slog.ErrorContext(ctx, "tool execution failed", "tool", params.Name, "error", err)
			return toolError(id, "Search failed")
		}
		if answer == nil {
			return toolText(id, "No relevant cards found.")
		}
		text := answer.Answer
		if answer.SourceID != nil {
			text += fmt.Sprintf("\n\nSource card: %s", *answer.SourceID)
		}
		return toolText(id, text)

	case "cards_find":
		var args QuestionArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			resp := makeErrorResponse(id, ErrInvalidParams, "Invalid arguments")
			return &resp
		}
		results, err := h.retriever.Find(ctx, args.Question, args.normalize())
		if errors.Is(err, retrieval.ErrEmptyQuestion) {
			resp := makeErrorResponse(id, ErrInvalidParams, "question must not be empty")
			return &resp
		}
		if err != nil {
			slog.ErrorContext(ctx, "tool execution failed", "tool", params.Name, "error", err)
			return toolError(id, "Vector search failed")
		}
		if len(results) == 0 {
			return toolText(id, "No matching cards.")
		}
		var b strings.Builder
		for i, res := range results {
			fmt.Fprintf(&b, "Result %d [score %.4f]\nsource_id: %s\n%s\n\n", i+1, res.Score, res.SourceID, res.Summary)
		}
		slog.InfoContext(ctx, "tool execution completed", "tool", params.Name, "result_count", len(results))
		return toolText(id, strings.TrimRight(b.String(), "\n"))

	case "cards_get":
		var args CardArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil || strings.TrimSpace(args.ID) == "" {
			resp := makeErrorResponse(id, ErrInvalidParams, "id is required")
			return &resp
		}
		rec, err := h.cards.Get(ctx, h.collection, card.NormalizeID(args.ID))
		if errors.Is(err, records.ErrNotFound) {
			return toolError(id, "Card not found: "+args.ID)
		}
		if err != nil {
			slog.ErrorContext(ctx, "tool execution failed", "tool", params.Name, "error", err)
			return toolError(id, "Failed to read card")
		}
		body, err := json.MarshalIndent(rec.Fields, "", "  ")
		if err != nil {
			return toolError(id, "Failed to encode card")
		}
		return toolText(id, string(body))
	}

	slog.WarnContext(ctx, "tool not found", "tool", params.Name)
	resp := makeErrorResponse(id, ErrMethodNotFound, "Method not found: "+params.Name)
	return &resp
}

func toolText(id interface{}, text string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: text}}},
	}
}

func toolError(id interface{}, text string) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: text}}, IsError: true},
	}
}

func makeErrorResponse(id interface{}, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

// ServeHTTP answers a single JSON-RPC request in the response body.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp := makeErrorResponse(nil, ErrParse, "Parse error")
		middleware.WriteJSON(r.Context(), w, http.StatusOK, resp)
		return
	}

	resp := h.ProcessRequest(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	middleware.WriteJSON(r.Context(), w, http.StatusOK, resp)
}

// HandleSSE opens a session. Responses to messages posted for the session
// are delivered as "message" events.
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.WriteError(r.Context(), w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sessionID := uuid.New().String()
	msgChan := make(chan string, 100)

	h.sessionsLock.Lock()
	h.sessions[sessionID] = msgChan
	h.sessionsLock.Unlock()

	defer func() {
		h.sessionsLock.Lock()
		delete(h.sessions, sessionID)
		close(msgChan)
		h.sessionsLock.Unlock()
		slog.Info("sse session ended", "session_id", sessionID)
	}()

	slog.Info("sse session started", "session_id", sessionID)

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s/mcp/messages?sessionId=%s", scheme, r.Host, sessionID)

	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", html.EscapeString(endpoint))
	fmt.Fprintf(w, "event: id\ndata: %s\n\n", html.EscapeString(sessionID))
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleMessage accepts a JSON-RPC request for a session and answers it on
// the session's event stream.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		middleware.WriteError(ctx, w, "VALIDATION_ERROR", "Missing sessionId", http.StatusBadRequest)
		return
	}

	h.sessionsLock.RLock()
	_, exists := h.sessions[sessionID]
	h.sessionsLock.RUnlock()
	if !exists {
		middleware.WriteError(ctx, w, "NOT_FOUND", "Session not found", http.StatusNotFound)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(ctx, w, "INVALID_JSON", "Invalid JSON", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	bgCtx := context.WithoutCancel(ctx)
	go func() {
		resp := h.ProcessRequest(bgCtx, req)
		if resp == nil {
			return
		}
		body, err := json.Marshal(resp)
		if err != nil {
			slog.ErrorContext(bgCtx, "failed to marshal response", "error", err)
			return
		}
		h.deliver(bgCtx, sessionID, string(body))
	}()
}

// deliver holds the read lock while sending so the session cannot be closed
// underneath it.
func (h *Handler) deliver(ctx context.Context, sessionID, msg string) {
	h.sessionsLock.RLock()
	defer h.sessionsLock.RUnlock()

	msgChan, ok := h.sessions[sessionID]
	if !ok {
		slog.WarnContext(ctx, "session closed before response", "session_id", sessionID)
		return
	}
	select {
	case msgChan <- msg:
	default:
		slog.WarnContext(ctx, "session channel full, dropping message", "session_id", sessionID)
	}
}
