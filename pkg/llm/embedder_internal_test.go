package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constBackend struct{}

func (constBackend) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func (constBackend) Close() error { return nil }

func TestEmbedderOpensModelOnce(t *testing.T) {
	opens := 0
	emb := newEmbedder(EmbedderConfig{Model: "test"}, func(EmbedderConfig) (Backend, error) {
		opens++
		return constBackend{}, nil
	})
	assert.Zero(t, opens, "model must not load before first use")

	for i := 0; i < 4; i++ {
		_, err := emb.EmbedBatch(context.Background(), []string{"chunk"})
		require.NoError(t, err)
	}
	require.NoError(t, emb.Load())
	assert.Equal(t, 1, opens)
}

func TestEmbedderDoesNotRetryFailedLoad(t *testing.T) {
	opens := 0
	cause := errors.New("model file missing")
	emb := newEmbedder(EmbedderConfig{Model: "test", Provider: "fastembed"}, func(EmbedderConfig) (Backend, error) {
		opens++
		return nil, cause
	})

	for i := 0; i < 3; i++ {
		_, err := emb.EmbedBatch(context.Background(), []string{"chunk"})
		assert.ErrorIs(t, err, ErrModelLoad)
		assert.ErrorIs(t, err, cause)
	}
	assert.ErrorIs(t, emb.Load(), ErrModelLoad)
	assert.Equal(t, 1, opens)
}
