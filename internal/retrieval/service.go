package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultSearchLimit = 5

	streamBuffer = 16
)

var ErrEmptyQuestion = errors.New("question must not be empty")

// Stable messages sent to stream consumers. Details go to the log.
const (
	msgEmbedFailed       = "Failed to embed question"
	msgSearchFailed      = "Vector search failed"
	msgPromptFailed      = "Failed to build prompt"
	msgGenerationFailed  = "Answer generation failed"
	msgAttributionFailed = "Card attribution failed"
)

type Config struct {
	SearchLimit     int
	MaxContextChars int
}

type Service struct {
	embedder  Embedder
	searcher  VectorSearcher
	generator Generator
	logger    *QueryLogger
	limit     int
	maxChars  int
}

func NewService(e Embedder, s VectorSearcher, g Generator, l *QueryLogger, cfg Config) *Service {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultMaxContextChars
	}
	return &Service{
		embedder:  e,
		searcher:  s,
		generator: g,
		logger:    l,
		limit:     cfg.SearchLimit,
		maxChars:  cfg.MaxContextChars,
	}
}

// Search answers a question in one call. A nil response with a nil error
// means nothing relevant was found.
func (s *Service) Search(ctx context.Context, question string, normalize bool) (resp *SearchResponse, err error) {
	start := time.Now()
	numResults := 0
	defer func() {
		s.logQuery(ctx, QueryLogEntry{
			Query:      question,
			Mode:       "search",
			NumResults: numResults,
			Duration:   time.Since(start),
			Answered:   resp != nil,
			SourceID:   sourceIDOf(resp),
			Failed:     err != nil,
		})
	}()

	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	results, err := s.retrieve(ctx, question, normalize)
	if err != nil {
		return nil, err
	}
	numResults = len(results)
	if len(results) == 0 {
		slog.WarnContext(ctx, "vector search produced 0 results", "question", question)
		return nil, nil
	}

	answerContext := BuildContext(results, s.maxChars, true)
	if answerContext == "" {
		slog.WarnContext(ctx, "unable to build context", "results", len(results))
		return nil, nil
	}

	prompt, err := AnswerPrompt(question, answerContext, true)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}
	reply, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	answer, sourceID, err := ParseAnswer(reply)
	if err != nil {
		return nil, fmt.Errorf("parse answer: %w", err)
	}
	return &SearchResponse{Answer: answer, SourceID: sourceID}, nil
}

// Find returns the chunks nearest to question without generating an answer.
func (s *Service) Find(ctx context.Context, question string, normalize bool) ([]SearchResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	return s.retrieve(ctx, question, normalize)
}

// SearchStream answers a question incrementally. The returned channel is
// closed after the final event. Cancelling ctx stops the producer.
func (s *Service) SearchStream(ctx context.Context, question string, normalize bool) <-chan Event {
	out := make(chan Event, streamBuffer)
	go func() {
		defer close(out)
		st := &stream{ctx: ctx, out: out, question: question}
		start := time.Now()
		s.stream(st, normalize)
		s.logQuery(ctx, QueryLogEntry{
			Query:      question,
			Mode:       "stream",
			NumResults: st.results,
			Duration:   time.Since(start),
			Answered:   st.chunks > 0,
			SourceID:   st.foundID,
			Failed:     st.failed,
		})
	}()
	return out
}

func (s *Service) stream(st *stream, normalize bool) {
	ctx := st.ctx
	if strings.TrimSpace(st.question) == "" {
		st.fail(ErrEmptyQuestion.Error(), ErrEmptyQuestion)
		return
	}

	vec, err := s.embedder.EmbedText(ctx, st.question, normalize)
	if err != nil {
		st.fail(msgEmbedFailed, err)
		return
	}
	results, err := s.searcher.Search(ctx, vec, s.limit)
	if err != nil {
		st.fail(msgSearchFailed, err)
		return
	}
	st.results = len(results)

	if len(results) == 0 {
		st.emit(NewMetaEvent(nil, ""))
		st.emit(NewDoneEvent())
		return
	}

	streamContext := BuildContext(results, s.maxChars, false)
	if streamContext == "" {
		st.emit(NewMetaEvent(results, ""))
		st.emit(NewDoneEvent())
		return
	}

	prompt, err := AnswerPrompt(st.question, streamContext, false)
	if err != nil {
		st.fail(msgPromptFailed, err)
		return
	}
	if !st.emit(NewMetaEvent(results, streamContext)) {
		return
	}

	var answer strings.Builder
	err = s.generator.Stream(ctx, prompt, func(chunk string) error {
		st.chunks++
		answer.WriteString(chunk)
		if !st.emit(NewChunkEvent(chunk)) {
			return ctx.Err()
		}
		return nil
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		st.fail(msgGenerationFailed, err)
		return
	}

	if st.chunks > 0 {
		sourceContext := BuildContext(results, s.maxChars, true)
		sourcePrompt, err := SourceIDPrompt(st.question, sourceContext, answer.String())
		if err != nil {
			st.fail(msgPromptFailed, err)
			return
		}
		if !st.emit(NewSeekingCardEvent()) {
			return
		}
		reply, err := s.generator.Generate(ctx, sourcePrompt)
		if err != nil {
			st.fail(msgAttributionFailed, err)
			return
		}
		id, err := ParseSourceID(reply)
		if err != nil {
			st.fail(msgAttributionFailed, err)
			return
		}
		if id != nil {
			st.foundID = id
			if !st.emit(NewFoundCardEvent(*id)) {
				return
			}
		}
	}
	st.emit(NewDoneEvent())
}

// stream tracks the producer side of one SearchStream call.
type stream struct {
	ctx      context.Context
	out      chan<- Event
	question string

	metaSent bool
	results  int
	chunks   int
	foundID  *string
	failed   bool
}

func (st *stream) emit(ev Event) bool {
	if st.ctx.Err() != nil {
		return false
	}
	select {
	case st.out <- ev:
		if ev.EventType() == TypeMeta {
			st.metaSent = true
		}
		return true
	case <-st.ctx.Done():
		return false
	}
}

// fail reports err to the consumer and terminates the stream. A failure
// before meta still emits an empty meta first.
func (st *stream) fail(message string, err error) {
	st.failed = true
	slog.ErrorContext(st.ctx, "search stream failed", "reason", message, "error", err)
	if !st.metaSent && !st.emit(NewMetaEvent(nil, "")) {
		return
	}
	q := st.question
	if !st.emit(NewErrorEvent(message, &q)) {
		return
	}
	st.emit(NewDoneEvent())
}

func (s *Service) retrieve(ctx context.Context, question string, normalize bool) ([]SearchResult, error) {
	vec, err := s.embedder.EmbedText(ctx, question, normalize)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	results, err := s.searcher.Search(ctx, vec, s.limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}

func (s *Service) logQuery(ctx context.Context, entry QueryLogEntry) {
	if s.logger == nil {
		return
	}
	s.logger.Log(ctx, entry)
}

func sourceIDOf(resp *SearchResponse) *string {
	if resp == nil {
		return nil
	}
	return resp.SourceID
}
