package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

func TestNewLLMService(t *testing.T) {
	_, err := NewLLMService(Config{})
	assert.ErrorContains(t, err, "API key is required")

	s, err := NewLLMService(Config{APIKey: "k", BaseURL: "http://example.com/"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, s.ModelName())
	assert.Equal(t, "http://example.com", s.baseURL)
}

func TestLLMService_Generate(t *testing.T) {
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"content":[{"type":"text","text":"Because "},{"type":"tool_use"},{"type":"text","text":"it is."}],
			"stop_reason":"end_turn",
			"usage":{"input_tokens":10,"output_tokens":3}
		}`))
	}))
	defer srv.Close()

	s, err := NewLLMService(Config{APIKey: "sk-ant", BaseURL: srv.URL, Model: "claude-test"})
	require.NoError(t, err)

	reply, err := s.Generate(context.Background(), "why?", driven.GenerateOptions{Temperature: 0.2})

	require.NoError(t, err)
	assert.Equal(t, "Because it is.", reply)
	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, messagesMessage{Role: "user", Content: "why?"}, got.Messages[0])
}

func TestLLMService_Generate_Errors(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		want string
	}{
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, "overloaded_error"},
		{"bad status", http.StatusInternalServerError, `{}`, "status 500"},
		{"empty content", http.StatusOK, `{"content":[]}`, "no response content"},
		{"bad json", http.StatusOK, `<html>`, "decode response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			s, err := NewLLMService(Config{APIKey: "k", BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = s.Generate(context.Background(), "q", driven.GenerateOptions{MaxTokens: 10})
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLLMService_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		if r.Header.Get("x-api-key") != "good" {
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	good, _ := NewLLMService(Config{APIKey: "good", BaseURL: srv.URL})
	bad, _ := NewLLMService(Config{APIKey: "bad", BaseURL: srv.URL})

	assert.NoError(t, good.Ping(context.Background()))
	assert.ErrorContains(t, bad.Ping(context.Background()), "status 401")
	assert.NoError(t, good.Close())
}
