package types

import (
	"context"

	"github.com/xhad/embedsync/internal/models"
)

// Core interfaces
type ChunkStore interface {
	FetchPending(ctx context.Context) ([]models.Chunk, error)
	PatchEmbedding(ctx context.Context, id string, vector []float32) error
	PatchDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error
	Close()
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
