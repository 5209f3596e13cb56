package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingMiddleware appends its name to a shared trace on every hook.
type recordingMiddleware struct {
	name  string
	trace *[]string
	fail  bool
}

func (r *recordingMiddleware) Name() string { return r.name }

func (r *recordingMiddleware) ProcessRequest(ctx context.Context, req *ChatRequest) (*ChatRequest, error) {
	if r.fail {
		return nil, errors.New("rejected by " + r.name)
	}
	*r.trace = append(*r.trace, "req:"+r.name)
	return req, nil
}

func (r *recordingMiddleware) ProcessResponse(ctx context.Context, req *ChatRequest, resp *ChatResponse, err error) (*ChatResponse, error) {
	*r.trace = append(*r.trace, "resp:"+r.name)
	return resp, nil
}

func (r *recordingMiddleware) ProcessStreamEvent(ctx context.Context, req *ChatRequest, event StreamEvent) (StreamEvent, error) {
	*r.trace = append(*r.trace, "event:"+r.name)
	return event, nil
}

func TestMiddlewareChainOrder(t *testing.T) {
	t.Parallel()

	var trace []string
	chain := []Middleware{
		&recordingMiddleware{name: "outer", trace: &trace},
		&recordingMiddleware{name: "inner", trace: &trace},
	}
	client := NewEnhancedClient(newStubClient("stub"), chain)

	_, err := client.ChatCompletion(context.Background(), userRequest("hello"))
	require.NoError(t, err)

	// Requests flow outer-to-inner, responses inner-to-outer.
	assert.Equal(t, []string{"req:outer", "req:inner", "resp:inner", "resp:outer"}, trace)
}

func TestMiddlewareRequestRejection(t *testing.T) {
	t.Parallel()

	var trace []string
	inner := newStubClient("stub")
	client := NewEnhancedClient(inner, []Middleware{
		&recordingMiddleware{name: "gate", trace: &trace, fail: true},
	})

	_, err := client.ChatCompletion(context.Background(), userRequest("hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gate")
	assert.Equal(t, 0, inner.callCount(), "a rejected request must not reach the provider")
}

func TestMiddlewareStreamEvents(t *testing.T) {
	t.Parallel()

	var trace []string
	client := NewEnhancedClient(newStubClient("stub"), []Middleware{
		&recordingMiddleware{name: "tap", trace: &trace},
	})

	stream, err := client.StreamChatCompletion(context.Background(), userRequest("hello"))
	require.NoError(t, err)

	count := 0
	for range stream {
		count++
	}
	assert.Equal(t, 2, count)
	assert.Contains(t, trace, "event:tap")
}

func TestMiddlewareChainManagement(t *testing.T) {
	t.Parallel()

	var trace []string
	client := NewEnhancedClient(newStubClient("stub"), []Middleware{
		&recordingMiddleware{name: "first", trace: &trace},
	})
	client.AddMiddleware(&recordingMiddleware{name: "second", trace: &trace})

	assert.True(t, client.RemoveMiddleware("first"))
	assert.False(t, client.RemoveMiddleware("first"), "already removed")

	_, err := client.ChatCompletion(context.Background(), userRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, []string{"req:second", "resp:second"}, trace)
}

func TestClientWithMiddlewareExtendsExistingChain(t *testing.T) {
	t.Parallel()

	var trace []string
	base := ClientWithMiddleware(newStubClient("stub"), []Middleware{
		&recordingMiddleware{name: "a", trace: &trace},
	})
	extended := ClientWithMiddleware(base, []Middleware{
		&recordingMiddleware{name: "b", trace: &trace},
	})

	// The same EnhancedClient is reused rather than nested.
	assert.Same(t, base, extended)

	enhanced, ok := extended.(*EnhancedClient)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, enhanced.chain.GetMiddlewareNames())
}

func TestBuiltinMiddlewaresPassThrough(t *testing.T) {
	t.Parallel()

	client := NewEnhancedClient(newStubClient("stub"), []Middleware{
		NewLoggingMiddleware(zap.NewNop()),
		NewTimingMiddleware(zap.NewNop()),
	})

	for i := 0; i < 3; i++ {
		resp, err := client.ChatCompletion(context.Background(), userRequest(fmt.Sprintf("hello %d", i)))
		require.NoError(t, err)
		assert.Equal(t, "stub-response", resp.ID)
	}
}
