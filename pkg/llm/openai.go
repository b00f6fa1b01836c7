package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openAIBackend calls an OpenAI-compatible /embeddings endpoint, e.g. a
// text-embeddings-inference server hosting a multilingual e5 model.
type openAIBackend struct {
	client *openai.Client
	model  string
}

func newOpenAIBackend(config EmbedderConfig) (Backend, error) {
	key := config.APIKey
	if key == "" {
		// Local OpenAI-compatible servers usually ignore the token.
		key = "none"
	}

	clientConfig := openai.DefaultConfig(key)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &openAIBackend{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
	}, nil
}

func (b *openAIBackend) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(b.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings API error: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d items for %d inputs", len(resp.Data), len(texts))
	}

	// Items carry their input position; do not rely on response order.
	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) || vectors[item.Index] != nil {
			return nil, fmt.Errorf("embeddings API returned invalid index %d", item.Index)
		}
		v := make([]float32, len(item.Embedding))
		for i := range item.Embedding {
			v[i] = float32(item.Embedding[i])
		}
		vectors[item.Index] = v
	}

	return vectors, nil
}

func (b *openAIBackend) Close() error {
	return nil
}
