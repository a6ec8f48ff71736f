package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticHistory []Turn

func (h staticHistory) History(ctx context.Context, conversationID string) ([]Turn, error) {
	return h, nil
}

func TestOpenAIResponder_Process(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		fmt.Fprint(w, `{
			"id": "cmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer server.Close()

	history := staticHistory{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	responder := NewOpenAIResponder(OpenAIConfig{
		BaseURL:      server.URL,
		APIKey:       "test-key",
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are helpful",
	}, history, nil)

	resp, err := responder.Process(context.Background(), "Hi", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", resp.Content)
	assert.Equal(t, 15, resp.TokensUsed)
	assert.Contains(t, resp.ProcessLogs, "finish_reason: stop")

	// system + 2 history turns + new user prompt
	require.Len(t, gotReq.Messages, 4)
	assert.Equal(t, "system", gotReq.Messages[0]["role"])
	assert.Equal(t, "Hi", gotReq.Messages[3]["content"])
	assert.False(t, gotReq.Stream)
}

func TestOpenAIResponder_Process_NoDuplicateUserTurn(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, `{"choices": [{"message": {"content": "ok"}, "finish_reason": "stop"}]}`)
	}))
	defer server.Close()

	// History already ends with the durably recorded user turn
	history := staticHistory{{Role: "user", Content: "Hi"}}
	responder := NewOpenAIResponder(OpenAIConfig{BaseURL: server.URL, Model: "m"}, history, nil)

	_, err := responder.Process(context.Background(), "Hi", "conv-1")
	require.NoError(t, err)
	require.Len(t, gotReq.Messages, 1)
}

func TestOpenAIResponder_Process_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	responder := NewOpenAIResponder(OpenAIConfig{BaseURL: server.URL, Model: "m"}, nil, nil)

	_, err := responder.Process(context.Background(), "Hi", "conv-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIResponder_ProcessStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"total_tokens\":9}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	responder := NewOpenAIResponder(OpenAIConfig{BaseURL: server.URL, Model: "m"}, nil, nil)

	events, err := responder.ProcessStream(context.Background(), "Hi", "conv-1")
	require.NoError(t, err)

	var deltas []string
	var final *Response
	for ev := range events {
		switch ev.Kind {
		case EventText:
			deltas = append(deltas, ev.Text)
		case EventDone:
			final = ev.Response
		case EventError:
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
	}

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	require.NotNil(t, final)
	assert.Equal(t, "Hello", final.Content)
	assert.Equal(t, 9, final.TokensUsed)
	assert.Contains(t, final.ProcessLogs, "finish_reason: stop")
}
