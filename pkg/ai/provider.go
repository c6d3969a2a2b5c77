package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider is the minimal interface every AI backend implements: stream
// completion chunks for a system/user prompt pair (spec §4.5, grounded on
// the original's AiProvider.stream_completion).
type Provider interface {
	StreamCompletion(ctx context.Context, systemPrompt, userMessage string, maxTokens int, onChunk func(string) error) error
}

// IsRetryable reports whether err represents a transient provider failure
// worth retrying (rate limit, timeout, 5xx) rather than a permanent one.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		return httpErr.status == http.StatusTooManyRequests || httpErr.status >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d: %s", e.status, e.body)
}

// AnthropicProvider streams completions from the Anthropic Messages API
// using server-sent events.
type AnthropicProvider struct {
	APIKey     string
	Model      string
	BaseURL    string // defaults to https://api.anthropic.com
	httpClient *http.Client
}

// NewAnthropicProvider constructs an AnthropicProvider.
func NewAnthropicProvider(apiKey, model, baseURL string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicProvider{APIKey: apiKey, Model: model, BaseURL: baseURL, httpClient: &http.Client{}}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Stream    bool               `json:"stream"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// StreamCompletion implements Provider against the Anthropic Messages API's
// text/event-stream response.
func (p *AnthropicProvider) StreamCompletion(ctx context.Context, systemPrompt, userMessage string, maxTokens int, onChunk func(string) error) error {
	body, err := json.Marshal(anthropicRequest{
		Model:     p.Model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Stream:    true,
		Messages:  []anthropicMessage{{Role: "user", Content: userMessage}},
	})
	if err != nil {
		return fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build anthropic request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", p.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{status: resp.StatusCode, body: readBodySnippet(resp)}
	}

	return scanSSE(resp.Body, func(event, data string) error {
		if data == "" {
			return nil
		}
		var ev anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil // ignore lines this loose schema doesn't recognise
		}
		if ev.Type == "content_block_delta" && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
			return onChunk(ev.Delta.Text)
		}
		return nil
	})
}

// OpenAICompatibleProvider streams completions from any OpenAI Chat
// Completions-compatible endpoint (OpenAI itself, or a self-hosted Ollama
// instance behind its /v1 shim — spec §4.5 names both as providers).
type OpenAICompatibleProvider struct {
	APIKey     string
	Model      string
	BaseURL    string // e.g. https://api.openai.com or http://localhost:11434
	httpClient *http.Client
}

// NewOpenAICompatibleProvider constructs an OpenAICompatibleProvider.
func NewOpenAICompatibleProvider(apiKey, model, baseURL string) *OpenAICompatibleProvider {
	return &OpenAICompatibleProvider{APIKey: apiKey, Model: model, BaseURL: strings.TrimRight(baseURL, "/"), httpClient: &http.Client{}}
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Stream    bool          `json:"stream"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamCompletion implements Provider against the OpenAI-compatible
// /v1/chat/completions streaming endpoint.
func (p *OpenAICompatibleProvider) StreamCompletion(ctx context.Context, systemPrompt, userMessage string, maxTokens int, onChunk func(string) error) error {
	body, err := json.Marshal(chatRequest{
		Model:     p.Model,
		MaxTokens: maxTokens,
		Stream:    true,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{status: resp.StatusCode, body: readBodySnippet(resp)}
	}

	return scanSSE(resp.Body, func(event, data string) error {
		if data == "" || data == "[DONE]" {
			return nil
		}
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return onChunk(chunk.Choices[0].Delta.Content)
		}
		return nil
	})
}

// scanSSE parses a text/event-stream body, calling handle(event, data) for
// each "data: ..." line (event defaults to "message" when unset by the
// stream, matching the SSE spec).
func scanSSE(body interface{ Read([]byte) (int, error) }, handle func(event, data string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	event := "message"
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if err := handle(event, data); err != nil {
				return err
			}
		case line == "":
			event = "message"
		}
	}
	return scanner.Err()
}

func readBodySnippet(resp *http.Response) string {
	buf := make([]byte, 512)
	n, _ := resp.Body.Read(buf)
	return string(buf[:n])
}

// StreamTimeout is a five-minute ceiling for one provider stream. The
// providers in this package and Analyze do not apply it; a stream runs
// until the provider ends it or the caller's context is cancelled.
const StreamTimeout = 5 * time.Minute
