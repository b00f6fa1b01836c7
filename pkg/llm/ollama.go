package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
)

// ollamaBackend delegates to an Ollama server through langchaingo.
type ollamaBackend struct {
	llm *ollama.LLM
}

func newOllamaBackend(config EmbedderConfig) (Backend, error) {
	modelOptions := ollama.WithModel(config.Model)

	serverOptions := ollama.WithServerURL(config.BaseURL)

	emb, err := ollama.New(modelOptions, serverOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama: %w", err)
	}

	return &ollamaBackend{llm: emb}, nil
}

func (b *ollamaBackend) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	return b.llm.CreateEmbedding(ctx, texts)
}

func (b *ollamaBackend) Close() error {
	return nil
}
