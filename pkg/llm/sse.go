// Incremental Server-Sent-Events decoding for streaming chat completions
package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// StreamDoneSentinel is the payload providers send on the data channel to
// signal a graceful end of stream. It is filtered out before events reach the
// consumer.
const StreamDoneSentinel = "[DONE]"

// streamChunk is the wire shape of one SSE payload.
type streamChunk struct {
	ID      string `json:"id,omitempty"`
	Model   string `json:"model,omitempty"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string          `json:"role,omitempty"`
			Content   string          `json:"content,omitempty"`
			ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

// StreamDecoder incrementally decodes a newline-delimited SSE stream into
// StreamEvents. The decoder is forward-only and not restartable; consuming
// the stream again requires a new underlying connection.
//
// Only the fragments of the event currently being assembled are buffered, so
// memory use is bounded by the largest single event, not the stream length.
type StreamDecoder struct {
	scanner *bufio.Scanner
	data    []string // data lines of the event being assembled
	done    bool
}

// NewStreamDecoder wraps a raw SSE byte stream.
func NewStreamDecoder(r io.Reader) *StreamDecoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1024*1024)
	return &StreamDecoder{scanner: scanner}
}

// Next returns the next decoded event. ok is false once the stream has ended;
// after a false return every subsequent call returns false. The final event
// of an interrupted or malformed stream is a terminal error event; a stream
// ended by the done sentinel simply stops with no error.
func (d *StreamDecoder) Next() (event StreamEvent, ok bool) {
	if d.done {
		return StreamEvent{}, false
	}

	for d.scanner.Scan() {
		line := d.scanner.Text()

		if line == "" {
			if len(d.data) == 0 {
				continue // stray separator between events
			}
			payload := strings.Join(d.data, "\n")
			d.data = d.data[:0]
			return d.dispatch(payload)
		}

		if strings.HasPrefix(line, "data:") {
			d.data = append(d.data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		// Other SSE fields (event:, id:, comments) carry nothing we need.
	}

	// EOF can arrive right after the last data line, without the blank
	// separator; the assembled event still counts.
	if len(d.data) > 0 && d.scanner.Err() == nil {
		payload := strings.Join(d.data, "\n")
		d.data = nil
		return d.dispatch(payload)
	}

	d.done = true
	if err := d.scanner.Err(); err != nil {
		return NewErrorEvent(NewStreamError(err)), true
	}
	// EOF without the done sentinel means the transport dropped mid-stream.
	return NewErrorEvent(NewStreamError(io.ErrUnexpectedEOF)), true
}

// dispatch turns one assembled payload into an event, handling the done
// sentinel and malformed payloads.
func (d *StreamDecoder) dispatch(payload string) (StreamEvent, bool) {
	if payload == StreamDoneSentinel {
		d.done = true
		return StreamEvent{}, false
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		d.done = true
		return NewErrorEvent(NewSerializationError("malformed stream payload", err)), true
	}

	if len(chunk.Choices) == 0 {
		// Keep-alive or usage-only chunk; nothing to surface.
		return d.Next()
	}

	choice := chunk.Choices[0]
	if choice.FinishReason != "" {
		return NewDoneEvent(choice.Index, choice.FinishReason), true
	}

	delta := &MessageDelta{
		Role:      MessageRole(choice.Delta.Role),
		Content:   choice.Delta.Content,
		ToolCalls: choice.Delta.ToolCalls,
	}
	return NewDeltaEvent(choice.Index, delta), true
}

// DecodeStream pumps a raw SSE body through a StreamDecoder into a channel,
// closing the channel after the terminal event. The body is closed when the
// stream ends or ctx is cancelled.
func DecodeStream(ctx context.Context, body io.ReadCloser) <-chan StreamEvent {
	ch := make(chan StreamEvent, 10)

	go func() {
		defer close(ch)
		defer func() { _ = body.Close() }()

		decoder := NewStreamDecoder(body)
		for {
			event, ok := decoder.Next()
			if !ok {
				return
			}
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
			if event.IsTerminal() && event.IsError() {
				return
			}
		}
	}()

	return ch
}
