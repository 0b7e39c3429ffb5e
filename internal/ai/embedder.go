package ai

import "context"

// EmbeddingGateway binds the OpenAI-compatible client to one
// embedding model so callers don't carry provider settings around.
type EmbeddingGateway struct {
	client *OpenAICompatibleClient
	cfg    EmbeddingConfig
}

func NewEmbeddingGateway(client *OpenAICompatibleClient, cfg EmbeddingConfig) *EmbeddingGateway {
	return &EmbeddingGateway{client: client, cfg: cfg}
}

func (g *EmbeddingGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	return g.client.Embed(ctx, g.cfg, text)
}

func (g *EmbeddingGateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return g.client.EmbedBatch(ctx, g.cfg, texts)
}
