package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EmbeddingConfig holds API settings for text embedding
// (OpenAI-compatible /embeddings endpoint).
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

func (c *OpenAICompatibleClient) embed(ctx context.Context, cfg EmbeddingConfig, input any) ([][]float32, error) {
	resp, err := c.postJSON(ctx, ChatConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey}, "/embeddings", map[string]any{
		"model": cfg.Model,
		"input": input,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}

	vectors := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		vectors[i] = parsed.Data[i].Embedding
	}
	return vectors, nil
}

// Embed returns the embedding vector for a single text.
func (c *OpenAICompatibleClient) Embed(ctx context.Context, cfg EmbeddingConfig, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	vectors, err := c.embed(ctx, cfg, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input text, in input order.
func (c *OpenAICompatibleClient) EmbedBatch(ctx context.Context, cfg EmbeddingConfig, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	trimmed := make([]string, 0, len(texts))
	for _, t := range texts {
		if s := strings.TrimSpace(t); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("no non-empty texts for embedding")
	}

	vectors, err := c.embed(ctx, cfg, trimmed)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(trimmed) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(trimmed), len(vectors))
	}
	return vectors, nil
}
