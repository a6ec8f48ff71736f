// ABOUTME: OpenAI-compatible chat-completions responder with streaming support
// ABOUTME: Works against any provider exposing the /chat/completions wire format

package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// OpenAIConfig configures a single OpenAI-compatible responder.
type OpenAIConfig struct {
	BaseURL      string // e.g. https://api.openai.com/v1
	APIKey       string
	Model        string
	SystemPrompt string
}

// OpenAIResponder answers prompts via an OpenAI-compatible
// chat-completions endpoint. Prior turns come from the history provider
// so the model sees the durably recorded conversation.
type OpenAIResponder struct {
	cfg     OpenAIConfig
	client  *http.Client
	history HistoryProvider
	logger  *slog.Logger
}

// NewOpenAIResponder creates a responder for one provider/model pair.
func NewOpenAIResponder(cfg OpenAIConfig, history HistoryProvider, logger *slog.Logger) *OpenAIResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIResponder{
		cfg:     cfg,
		client:  &http.Client{Timeout: 5 * time.Minute},
		history: history,
		logger:  logger.With("component", "openai", "model", cfg.Model),
	}
}

// chatRequest is the request body for OpenAI-compatible APIs
type chatRequest struct {
	Model         string              `json:"model"`
	Messages      []map[string]string `json:"messages"`
	Stream        bool                `json:"stream,omitempty"`
	StreamOptions *streamOptions      `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatResponse is the non-streaming response from OpenAI-compatible APIs
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

// chatChunk is one streamed SSE data frame
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Process sends the prompt with conversation history and returns the
// finished response.
func (o *OpenAIResponder) Process(ctx context.Context, prompt, conversationID string) (*Response, error) {
	messages, err := o.buildMessages(ctx, prompt, conversationID)
	if err != nil {
		return nil, err
	}

	body, err := o.post(ctx, &chatRequest{Model: o.cfg.Model, Messages: messages})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("completion response contained no choices")
	}

	resp := &Response{
		Content: parsed.Choices[0].Message.Content,
		ProcessLogs: []string{
			"model: " + o.cfg.Model,
			"finish_reason: " + parsed.Choices[0].FinishReason,
		},
	}
	if parsed.Usage != nil {
		resp.TokensUsed = parsed.Usage.TotalTokens
	}
	return resp, nil
}

// ProcessStream sends the prompt with streaming enabled and yields text
// deltas as they arrive, terminating with the accumulated summary.
func (o *OpenAIResponder) ProcessStream(ctx context.Context, prompt, conversationID string) (<-chan StreamEvent, error) {
	messages, err := o.buildMessages(ctx, prompt, conversationID)
	if err != nil {
		return nil, err
	}

	body, err := o.post(ctx, &chatRequest{
		Model:         o.cfg.Model,
		Messages:      messages,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 16)
	go o.readStream(body, events)
	return events, nil
}

// readStream parses SSE data frames off the response body.
func (o *OpenAIResponder) readStream(body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	var content strings.Builder
	var tokens int
	finishReason := "stop"

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			o.logger.Warn("skipping malformed stream chunk", "error", err)
			continue
		}
		if chunk.Usage != nil {
			tokens = chunk.Usage.TotalTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if fr := chunk.Choices[0].FinishReason; fr != "" {
			finishReason = fr
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			content.WriteString(delta)
			events <- StreamEvent{Kind: EventText, Text: delta}
		}
	}

	if err := scanner.Err(); err != nil {
		events <- StreamEvent{Kind: EventError, Err: fmt.Errorf("reading stream: %w", err)}
		return
	}

	events <- StreamEvent{
		Kind: EventDone,
		Response: &Response{
			Content:    content.String(),
			TokensUsed: tokens,
			ProcessLogs: []string{
				"model: " + o.cfg.Model,
				"finish_reason: " + finishReason,
			},
		},
	}
}

// buildMessages assembles system prompt, history, and the new user turn.
func (o *OpenAIResponder) buildMessages(ctx context.Context, prompt, conversationID string) ([]map[string]string, error) {
	messages := []map[string]string{}
	if o.cfg.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": o.cfg.SystemPrompt})
	}

	if o.history != nil && conversationID != "" {
		turns, err := o.history.History(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("loading history: %w", err)
		}
		for _, turn := range turns {
			messages = append(messages, map[string]string{"role": turn.Role, "content": turn.Content})
		}
	}

	// History already includes the durably recorded user turn; append the
	// prompt only when it is not the trailing entry.
	if n := len(messages); n == 0 || messages[n-1]["role"] != "user" || messages[n-1]["content"] != prompt {
		messages = append(messages, map[string]string{"role": "user", "content": prompt})
	}
	return messages, nil
}

func (o *OpenAIResponder) post(ctx context.Context, reqBody *chatRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	url := strings.TrimSuffix(o.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling completion endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return resp.Body, nil
}
