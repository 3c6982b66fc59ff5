package retrieval

// Event types emitted on a search stream.
const (
	TypeMeta        = "meta"
	TypeChunk       = "chunk"
	TypeSeekingCard = "seeking_card"
	TypeFoundCard   = "found_card"
	TypeDone        = "done"
	TypeError       = "error"
)

// Event is one frame of a search stream. A stream always starts with a
// MetaEvent and ends with a DoneEvent.
type Event interface {
	EventType() string
	isEvent()
}

type MetaEvent struct {
	Type    string         `json:"type"`
	Results []SearchResult `json:"results"`
	Context string         `json:"context"`
}

type ChunkEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type SeekingCardEvent struct {
	Type string `json:"type"`
}

type FoundCardEvent struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type DoneEvent struct {
	Type string `json:"type"`
}

type ErrorEvent struct {
	Type    string  `json:"type"`
	Message string  `json:"message"`
	Query   *string `json:"query,omitempty"`
}

func NewMetaEvent(results []SearchResult, context string) MetaEvent {
	if results == nil {
		results = []SearchResult{}
	}
	return MetaEvent{Type: TypeMeta, Results: results, Context: context}
}

func NewChunkEvent(content string) ChunkEvent { return ChunkEvent{Type: TypeChunk, Content: content} }
func NewSeekingCardEvent() SeekingCardEvent    { return SeekingCardEvent{Type: TypeSeekingCard} }
func NewFoundCardEvent(id string) FoundCardEvent {
	return FoundCardEvent{Type: TypeFoundCard, ID: id}
}
func NewDoneEvent() DoneEvent { return DoneEvent{Type: TypeDone} }

func NewErrorEvent(message string, query *string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Message: message, Query: query}
}

func (e MetaEvent) EventType() string        { return e.Type }
func (e ChunkEvent) EventType() string       { return e.Type }
func (e SeekingCardEvent) EventType() string { return e.Type }
func (e FoundCardEvent) EventType() string   { return e.Type }
func (e DoneEvent) EventType() string        { return e.Type }
func (e ErrorEvent) EventType() string       { return e.Type }

func (MetaEvent) isEvent()        {}
func (ChunkEvent) isEvent()       {}
func (SeekingCardEvent) isEvent() {}
func (FoundCardEvent) isEvent()   {}
func (DoneEvent) isEvent()        {}
func (ErrorEvent) isEvent()       {}
