package llm

// EventType identifies a streaming event surfaced to the UI layer.
type EventType string

const (
	// EventTextDelta carries a fragment of assistant text.
	EventTextDelta EventType = "TEXT_DELTA"

	// EventThinkingDelta carries a fragment of reasoning content.
	EventThinkingDelta EventType = "THINKING_DELTA"

	// EventToolCallArgsDelta carries an argument fragment for a streamable
	// text-writing tool.
	EventToolCallArgsDelta EventType = "TOOL_CALL_ARGS_DELTA"

	// EventPipelineProgress fires once, at the first tool-call observation
	// of a completion.
	EventPipelineProgress EventType = "PIPELINE_PROGRESS"
)

// Event is one typed streaming event.
type Event struct {
	Type      EventType
	Text      string
	ToolIndex int
	ToolName  string
}

// EventSink receives streaming events. May be nil.
type EventSink func(Event)

func (s EventSink) emit(e Event) {
	if s != nil {
		s(e)
	}
}
