package llm

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ToolCallDelta is one incremental tool-call fragment. Providers stream the
// id and name in the first fragment for an index and argument text across
// later fragments.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Delta is the provider-neutral chunk shape. Native go-openai stream
// responses adapt into it; providers with a generic delta wire format can
// feed it directly.
type Delta struct {
	ContentDelta  string
	ThinkingDelta string
	ToolCalls     []ToolCallDelta
	FinishReason  string
	Usage         *openai.Usage
}

// ChunkSource yields deltas until io.EOF.
type ChunkSource interface {
	Recv() (Delta, error)
}

// nativeRecv matches *openai.ChatCompletionStream.
type nativeRecv interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
}

type nativeSource struct {
	s nativeRecv
}

// NativeSource adapts a go-openai chat completion stream into a ChunkSource.
func NativeSource(s nativeRecv) ChunkSource {
	return nativeSource{s: s}
}

func (n nativeSource) Recv() (Delta, error) {
	resp, err := n.s.Recv()
	if err != nil {
		return Delta{}, err
	}

	var d Delta
	d.Usage = resp.Usage
	if len(resp.Choices) == 0 {
		return d, nil
	}
	choice := resp.Choices[0]
	d.ContentDelta = choice.Delta.Content
	d.ThinkingDelta = choice.Delta.ReasoningContent
	d.FinishReason = string(choice.FinishReason)
	for _, tc := range choice.Delta.ToolCalls {
		index := 0
		if tc.Index != nil {
			index = *tc.Index
		}
		d.ToolCalls = append(d.ToolCalls, ToolCallDelta{
			Index:     index,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return d, nil
}

// ToolCall is one fully reassembled tool call.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Result is the accumulated outcome of one streamed completion.
type Result struct {
	Content      string
	Reasoning    string
	ToolCalls    []ToolCall
	FinishReason string
	// Usage is nil when the provider streamed no usage chunk.
	Usage *openai.Usage
	// TTFT is the time to the first content-bearing chunk.
	TTFT time.Duration
}

// Message converts the result into an assistant chat message.
func (r *Result) Message() openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:             openai.ChatMessageRoleAssistant,
		Content:          r.Content,
		ReasoningContent: r.Reasoning,
	}
	for _, tc := range r.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return msg
}

// ConsumeOptions tunes stream consumption.
type ConsumeOptions struct {
	// Sink receives typed events per delta. Optional.
	Sink EventSink
	// StreamableTools names tools whose argument fragments surface as
	// TOOL_CALL_ARGS_DELTA events.
	StreamableTools map[string]bool
	// Start anchors the TTFT measurement; zero means now.
	Start time.Time
}

// Consume drains a chunk source into an accumulated result. Tool calls are
// reassembled from index-keyed fragments; TTFT is captured at the first
// content-bearing chunk.
func Consume(ctx context.Context, src ChunkSource, opts ConsumeOptions) (*Result, error) {
	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}

	res := &Result{}
	calls := make(map[int]*ToolCall)
	sawFirstContent := false
	sawFirstToolCall := false

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		d, err := src.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stream receive failed: %w", err)
		}

		bearing := d.ContentDelta != "" || d.ThinkingDelta != "" || len(d.ToolCalls) > 0
		if bearing && !sawFirstContent {
			sawFirstContent = true
			res.TTFT = time.Since(start)
		}

		if d.ContentDelta != "" {
			res.Content += d.ContentDelta
			opts.Sink.emit(Event{Type: EventTextDelta, Text: d.ContentDelta})
		}
		if d.ThinkingDelta != "" {
			res.Reasoning += d.ThinkingDelta
			opts.Sink.emit(Event{Type: EventThinkingDelta, Text: d.ThinkingDelta})
		}

		for _, tc := range d.ToolCalls {
			if !sawFirstToolCall {
				sawFirstToolCall = true
				opts.Sink.emit(Event{Type: EventPipelineProgress})
			}
			call := calls[tc.Index]
			if call == nil {
				call = &ToolCall{}
				calls[tc.Index] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Name != "" {
				call.Name = tc.Name
			}
			if tc.Arguments != "" {
				call.Arguments += tc.Arguments
				if opts.StreamableTools[call.Name] {
					opts.Sink.emit(Event{
						Type:      EventToolCallArgsDelta,
						Text:      tc.Arguments,
						ToolIndex: tc.Index,
						ToolName:  call.Name,
					})
				}
			}
		}

		if d.FinishReason != "" {
			res.FinishReason = d.FinishReason
		}
		if d.Usage != nil {
			res.Usage = d.Usage
		}
	}

	indexes := make([]int, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		if calls[i].Name != "" {
			res.ToolCalls = append(res.ToolCalls, *calls[i])
		}
	}
	return res, nil
}
