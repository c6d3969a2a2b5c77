package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProvider_StreamsTextDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		w.Header().Set("content-type", "text/event-stream")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hello\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\", world\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-test", srv.URL)
	var got strings.Builder
	err := p.StreamCompletion(context.Background(), "sys", "user", 100, func(chunk string) error {
		got.WriteString(chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", got.String())
}

func TestAnthropicProvider_NonOKStatusReturnsRetryableError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "rate limited")
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-test", srv.URL)
	err := p.StreamCompletion(context.Background(), "sys", "user", 100, func(string) error { return nil })
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestOpenAICompatibleProvider_StreamsChoiceDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("content-type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"foo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"bar\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAICompatibleProvider("", "local-model", srv.URL)
	var got strings.Builder
	err := p.StreamCompletion(context.Background(), "sys", "user", 100, func(chunk string) error {
		got.WriteString(chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "foobar", got.String())
}

func TestOpenAICompatibleProvider_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOpenAICompatibleProvider("key", "model", srv.URL)
	err := p.StreamCompletion(context.Background(), "sys", "user", 100, func(string) error { return nil })
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestIsRetryable_NilIsFalse(t *testing.T) {
	assert.False(t, IsRetryable(nil))
}

func TestIsRetryable_GenericErrorIsFalse(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("boom")))
}
