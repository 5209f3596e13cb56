package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quorale/go-llm/pkg/llm"
)

// Client implements the llm.Client interface for testing. Responses, errors
// and stream scripts are consumed in FIFO order; when a script runs out the
// client falls back to an echo response. The client is safe for concurrent
// use so batch and resilience tests can hammer it.
type Client struct {
	mu sync.Mutex

	modelInfo llm.ModelInfo

	responses     []llm.ChatResponse
	responseIndex int
	errors        []error
	errorIndex    int

	streamScripts [][]llm.StreamEvent
	streamIndex   int
	sseScripts    []string // raw SSE payloads decoded through the real decoder
	sseIndex      int

	callLog []llm.ChatRequest
	latency time.Duration

	callCount int
}

// NewClient creates a new mock LLM client for testing
func NewClient(modelName, provider string) (*Client, error) {
	return &Client{
		modelInfo: llm.ModelInfo{
			Name:              modelName,
			Provider:          provider,
			MaxTokens:         4096,
			SupportsTools:     true,
			SupportsStreaming: true,
		},
	}, nil
}

// WithResponses queues canned responses, served one per call.
func (m *Client) WithResponses(responses ...llm.ChatResponse) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
	return m
}

// WithErrors queues canned errors. Errors are served before responses, so a
// script of two errors and one response models two failures then a success.
func (m *Client) WithErrors(errs ...error) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, errs...)
	return m
}

// WithStreamScript queues one streaming response as a sequence of events.
func (m *Client) WithStreamScript(events ...llm.StreamEvent) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamScripts = append(m.streamScripts, events)
	return m
}

// WithSSEScript queues one streaming response as a raw SSE payload, which is
// fed through the real stream decoder.
func (m *Client) WithSSEScript(payload string) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sseScripts = append(m.sseScripts, payload)
	return m
}

// WithLatency makes every call sleep to simulate a slow provider.
func (m *Client) WithLatency(d time.Duration) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
	return m
}

// CallCount returns how many chat completion calls the client has served.
func (m *Client) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// CallLog returns a copy of every request seen so far.
func (m *Client) CallLog() []llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.ChatRequest, len(m.callLog))
	copy(out, m.callLog)
	return out
}

// ChatCompletion serves the next scripted error or response.
func (m *Client) ChatCompletion(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.callCount++
	m.callLog = append(m.callLog, req)
	latency := m.latency

	var scriptedErr error
	if m.errorIndex < len(m.errors) {
		scriptedErr = m.errors[m.errorIndex]
		m.errorIndex++
	}

	var resp *llm.ChatResponse
	if scriptedErr == nil {
		if m.responseIndex < len(m.responses) {
			r := m.responses[m.responseIndex]
			m.responseIndex++
			resp = &r
		}
	}
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return nil, &llm.Error{
				Code:    "request_cancelled",
				Message: ctx.Err().Error(),
				Type:    llm.ErrorTypeTimeout,
				Cause:   ctx.Err(),
			}
		case <-time.After(latency):
		}
	}

	if scriptedErr != nil {
		return nil, scriptedErr
	}
	if resp != nil {
		return resp, nil
	}
	return m.echoResponse(req), nil
}

// echoResponse builds a deterministic fallback response from the last user
// message.
func (m *Client) echoResponse(req llm.ChatRequest) *llm.ChatResponse {
	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}

	response := fmt.Sprintf("Mock response to: %s", lastUserMessage)
	return &llm.ChatResponse{
		ID:    fmt.Sprintf("mock-resp-%d", time.Now().UnixNano()),
		Model: req.Model,
		Choices: []llm.Choice{
			{
				Index:        0,
				Message:      llm.NewTextMessage(llm.RoleAssistant, response),
				FinishReason: llm.FinishReasonStop,
			},
		},
		Usage: llm.Usage{
			PromptTokens:     len(strings.Fields(lastUserMessage)),
			CompletionTokens: len(strings.Fields(response)),
			TotalTokens:      len(strings.Fields(lastUserMessage)) + len(strings.Fields(response)),
		},
	}
}

// StreamChatCompletion serves the next scripted stream. SSE scripts run
// through the real decoder; event scripts are replayed verbatim; with no
// script the echo response is streamed word by word.
func (m *Client) StreamChatCompletion(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	m.mu.Lock()
	m.callCount++
	m.callLog = append(m.callLog, req)

	if m.sseIndex < len(m.sseScripts) {
		payload := m.sseScripts[m.sseIndex]
		m.sseIndex++
		m.mu.Unlock()
		return llm.DecodeStream(ctx, nopReadCloser{strings.NewReader(payload)}), nil
	}

	var events []llm.StreamEvent
	if m.streamIndex < len(m.streamScripts) {
		events = m.streamScripts[m.streamIndex]
		m.streamIndex++
	} else {
		resp := m.echoResponse(req)
		for _, word := range strings.Fields(resp.Choices[0].Message.Content) {
			events = append(events, llm.NewDeltaEvent(0, &llm.MessageDelta{Content: word + " "}))
		}
		events = append(events, llm.NewDoneEvent(0, llm.FinishReasonStop))
	}
	m.mu.Unlock()

	ch := make(chan llm.StreamEvent, len(events))
	go func() {
		defer close(ch)
		for _, event := range events {
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
			if event.IsTerminal() {
				return
			}
		}
	}()
	return ch, nil
}

type nopReadCloser struct{ *strings.Reader }

func (nopReadCloser) Close() error { return nil }

// GetRemote returns information about the mock client
func (m *Client) GetRemote() llm.ClientRemoteInfo {
	healthy := true
	now := time.Now()
	return llm.ClientRemoteInfo{
		Name: m.modelInfo.Provider,
		Status: &llm.ClientRemoteInfoStatus{
			Healthy:     &healthy,
			LastChecked: &now,
		},
	}
}

// GetModelInfo returns information about the model being used
func (m *Client) GetModelInfo() llm.ModelInfo {
	return m.modelInfo
}

// Close cleans up any resources used by the client
func (m *Client) Close() error {
	return nil
}

var _ llm.Client = (*Client)(nil)
