//go:build cgo

package llm

import (
	"context"
	"fmt"
	"path/filepath"

	fastembed "github.com/anush008/fastembed-go"
)

// fastEmbedModels maps friendly model names to fastembed model constants.
var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// fastEmbedBackend runs an ONNX model in-process.
type fastEmbedBackend struct {
	model     *fastembed.FlagEmbedding
	batchSize int
}

func newFastEmbedBackend(config EmbedderConfig) (Backend, error) {
	model, ok := fastEmbedModels[config.Model]
	if !ok {
		model = fastembed.EmbeddingModel(config.Model)
		if !isFastEmbedModel(model) {
			return nil, fmt.Errorf("%w: unsupported fastembed model %q", ErrInvalidConfig, config.Model)
		}
	}

	cacheDir := config.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            config.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}

	return &fastEmbedBackend{
		model:     flagEmbed,
		batchSize: config.BatchSize,
	}, nil
}

func isFastEmbedModel(model fastembed.EmbeddingModel) bool {
	for _, m := range fastEmbedModels {
		if m == model {
			return true
		}
	}
	return false
}

// CreateEmbedding embeds texts as given; the passage prefix is already
// applied by the Embedder.
func (b *fastEmbedBackend) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.model.Embed(texts, b.batchSize)
}

func (b *fastEmbedBackend) Close() error {
	return b.model.Destroy()
}
