package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "k3y", r.URL.Query().Get("key"))

		var body geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hej", body.Contents[0].Parts[0].Text)
		assert.Equal(t, 0.7, body.GenerationConfig.Temperature)
		assert.Equal(t, 2000, body.GenerationConfig.MaxOutputTokens)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"svar"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(GeminiConfig{Endpoint: srv.URL, APIKey: "k3y"})
	out, err := c.Generate(context.Background(), "hej")
	require.NoError(t, err)
	assert.Equal(t, "svar", out)
}

func TestGeminiClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusForbidden, ErrAuthInvalid},
		{http.StatusUnauthorized, ErrAuthInvalid},
		{http.StatusInternalServerError, ErrUpstream},
		{http.StatusBadRequest, ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := NewGeminiClient(GeminiConfig{Endpoint: srv.URL, APIKey: "k"})
			_, err := c.Generate(context.Background(), "p")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGeminiClient_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	_, err := NewGeminiClient(GeminiConfig{Endpoint: srv.URL, APIKey: "k"}).Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestGeminiClient_MissingKey(t *testing.T) {
	_, err := NewGeminiClient(GeminiConfig{}).Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrAuthInvalid)
}

func TestChatClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"analys"}}]}`))
	}))
	defer srv.Close()

	c := NewChatClient(ChatConfig{Endpoint: srv.URL, Model: "test-model", APIKey: "sk-test"})
	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "analys", out)
}

func TestChatClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewChatClient(ChatConfig{Endpoint: srv.URL, APIKey: "k"}).Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.True(t, IsQuotaError(err))
}
