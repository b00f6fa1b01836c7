package llm

import (
	"context"
	"errors"
	"fmt"
)

// PassagePrefix marks texts as documents for the e5 family of asymmetric
// retrieval models. It is applied to every input of EmbedBatch.
const PassagePrefix = "passage: "

var (
	ErrModelLoad       = errors.New("embedding model failed to load")
	ErrEmbeddingFailed = errors.New("embedding generation failed")
	ErrBatchTooLarge   = errors.New("batch exceeds configured batch size")
	ErrInvalidConfig   = errors.New("invalid embedder configuration")
)

// Backend is a loaded embedding model.
type Backend interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}

// EmbedderConfig represents the configuration for an Embedder.
type EmbedderConfig struct {
	Provider  string // openai (default), fastembed or ollama
	Model     string
	BaseURL   string
	APIKey    string
	CacheDir  string
	MaxLength int
	BatchSize int
	// Dimension is the expected vector length. Zero means the length of the
	// first vector produced is enforced for the rest of the run.
	Dimension int
}

// Embedder produces passage embeddings with a model that is loaded once, on
// first use.
type Embedder struct {
	config  EmbedderConfig
	open    func(EmbedderConfig) (Backend, error)
	backend Backend
	loadErr error
	dim     int
}

// DefaultModel is the multilingual model the stored vectors are built with.
// PassagePrefix is its document marker.
const DefaultModel = "intfloat/multilingual-e5-small"

// DefaultTEIURL is the OpenAI-compatible route of a local
// text-embeddings-inference server.
const DefaultTEIURL = "http://localhost:8080/v1"

// NewEmbedderWithConfig resolves provider defaults. The default provider is
// openai serving DefaultModel from DefaultTEIURL. fastembed and ollama have no
// multilingual e5 model, so they require an explicit Model.
func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = "openai"
	}

	var open func(EmbedderConfig) (Backend, error)
	switch config.Provider {
	case "fastembed":
		open = newFastEmbedBackend
	case "ollama":
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		open = newOllamaBackend
	case "openai":
		if config.Model == "" {
			config.Model = DefaultModel
			if config.BaseURL == "" {
				config.BaseURL = DefaultTEIURL
			}
		}
		open = newOpenAIBackend
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, config.Provider)
	}

	if config.Model == "" {
		return nil, fmt.Errorf("%w: provider %s requires an explicit model", ErrInvalidConfig, config.Provider)
	}

	return newEmbedder(config, open), nil
}

// NewEmbedderWithBackend wraps an already loaded backend.
func NewEmbedderWithBackend(config EmbedderConfig, backend Backend) *Embedder {
	return newEmbedder(config, func(EmbedderConfig) (Backend, error) {
		return backend, nil
	})
}

func newEmbedder(config EmbedderConfig, open func(EmbedderConfig) (Backend, error)) *Embedder {
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.MaxLength <= 0 {
		config.MaxLength = 512
	}
	if config.Dimension == 0 {
		config.Dimension = knownDimension(config.Model)
	}

	return &Embedder{
		config: config,
		open:   open,
		dim:    config.Dimension,
	}
}

// Load loads the model if it is not loaded yet. A failed load is remembered
// and returned again without another attempt.
func (e *Embedder) Load() error {
	if e.backend != nil {
		return nil
	}
	if e.loadErr != nil {
		return e.loadErr
	}

	backend, err := e.open(e.config)
	if err != nil {
		e.loadErr = fmt.Errorf("%w: %s (%s): %w", ErrModelLoad, e.config.Model, e.config.Provider, err)
		return e.loadErr
	}
	e.backend = backend
	return nil
}

// EmbedBatch returns one vector per text, in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > e.config.BatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(texts), e.config.BatchSize)
	}
	if err := e.Load(); err != nil {
		return nil, err
	}

	prefixed := make([]string, len(texts))
	for i, text := range texts {
		prefixed[i] = PassagePrefix + text
	}

	vectors, err := e.backend.CreateEmbedding(ctx, prefixed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrEmbeddingFailed, len(texts), len(vectors))
	}

	for i, v := range vectors {
		if e.dim == 0 {
			e.dim = len(v)
		}
		if len(v) == 0 || len(v) != e.dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrEmbeddingFailed, i, len(v), e.dim)
		}
	}

	return vectors, nil
}

// Dimension is the vector length, or zero before the first batch when the
// model's dimension is unknown.
func (e *Embedder) Dimension() int {
	return e.dim
}

func (e *Embedder) BatchSize() int {
	return e.config.BatchSize
}

func (e *Embedder) Model() string {
	return e.config.Model
}

func (e *Embedder) Close() error {
	if e.backend == nil {
		return nil
	}
	err := e.backend.Close()
	e.backend = nil
	e.loadErr = fmt.Errorf("%w: embedder closed", ErrModelLoad)
	return err
}

var modelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"intfloat/multilingual-e5-small":         384,
	"intfloat/multilingual-e5-base":          768,
	"intfloat/multilingual-e5-large":         1024,
	"nomic-embed-text":                       768,
	"nomic-embed-text:latest":                768,
}

func knownDimension(model string) int {
	return modelDimensions[model]
}
