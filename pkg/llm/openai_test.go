package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/embedsync/pkg/llm"
)

func TestOpenAIBackendReordersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "intfloat/multilingual-e5-small", req.Model)
		assert.Equal(t, []string{"passage: one", "passage: two"}, req.Input)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "intfloat/multilingual-e5-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [2, 2, 2]},
				{"object": "embedding", "index": 0, "embedding": [1, 1, 1]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  "openai",
		BaseURL:   srv.URL + "/v1",
		APIKey:    "secret",
		Dimension: 3,
	})
	require.NoError(t, err)
	defer emb.Close()

	vectors, err := emb.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1, 1}, {2, 2, 2}}, vectors)
}

func TestOpenAIBackendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "model crashed", "type": "server_error"}}`))
	}))
	defer srv.Close()

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider: "openai",
		BaseURL:  srv.URL + "/v1",
	})
	require.NoError(t, err)

	_, err = emb.EmbedBatch(context.Background(), []string{"one"})
	assert.ErrorIs(t, err, llm.ErrEmbeddingFailed)
}
