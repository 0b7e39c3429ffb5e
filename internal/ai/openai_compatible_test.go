package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		assert.Equal(t, false, body["stream"])
		_, hasMaxTokens := body["max_tokens"]
		assert.False(t, hasMaxTokens)

		fmt.Fprint(w, `{"choices":[{"message":{"content":"hello there"}}]}`)
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient()
	cfg := ChatConfig{BaseURL: server.URL, APIKey: "test-key", Model: "test-model"}

	text, err := client.Complete(context.Background(), cfg, []ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}

func TestCompleteErrors(t *testing.T) {
	t.Run("non-2xx status surfaces the body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"rate limited"}`)
		}))
		defer server.Close()

		client := NewOpenAICompatibleClient()
		_, err := client.Complete(context.Background(), ChatConfig{BaseURL: server.URL}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"choices":[]}`)
		}))
		defer server.Close()

		client := NewOpenAICompatibleClient()
		_, err := client.Complete(context.Background(), ChatConfig{BaseURL: server.URL}, nil)
		assert.Error(t, err)
	})
}

func sseBody() string {
	return "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{}}]}\n\n" +
		": keepalive comment\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n\n" +
		"data: [DONE]\n\n"
}

func TestStreamComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody())
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient()
	cfg := ChatConfig{BaseURL: server.URL, Model: "test-model"}

	t.Run("fragments arrive in order and concatenate", func(t *testing.T) {
		var chunks []string
		full, err := client.StreamComplete(context.Background(), cfg, nil, func(chunk string) error {
			chunks = append(chunks, chunk)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Hel", "lo", "!"}, chunks)
		assert.Equal(t, "Hello!", full)
	})

	t.Run("onChunk error aborts and returns unchanged", func(t *testing.T) {
		stop := errors.New("consumer gone")
		calls := 0
		_, err := client.StreamComplete(context.Background(), cfg, nil, func(string) error {
			calls++
			if calls == 2 {
				return stop
			}
			return nil
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 2, calls)
	})
}

func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2]},{"embedding":[0.3,0.4]}]}`)
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient()
	cfg := EmbeddingConfig{BaseURL: server.URL, Model: "embed-model"}

	t.Run("batch keeps input order", func(t *testing.T) {
		vectors, err := client.EmbedBatch(context.Background(), cfg, []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, vectors, 2)
		assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
		assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
	})

	t.Run("empty input is rejected locally", func(t *testing.T) {
		_, err := client.Embed(context.Background(), cfg, "   ")
		assert.Error(t, err)
	})

	t.Run("count mismatch is an error", func(t *testing.T) {
		_, err := client.EmbedBatch(context.Background(), cfg, []string{"a", "b", "c"})
		assert.Error(t, err)
	})
}
