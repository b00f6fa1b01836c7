package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/embedsync/internal/models"
	"github.com/xhad/embedsync/pkg/store"
)

func newTestStore(t *testing.T, handler http.HandlerFunc, mutate ...func(*store.StoreConfig)) *store.RESTStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	config := store.StoreConfig{
		URL:    srv.URL,
		APIKey: "service-key",
	}
	for _, m := range mutate {
		m(&config)
	}

	s, err := store.NewRESTStore(config)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestRESTStoreFetchPending(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/norm_chunks", r.URL.Path)
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "is.null", q.Get("embedding"))
		assert.Equal(t, "id,content,document_id", q.Get("select"))
		assert.Equal(t, "chunk_index.asc,id.asc", q.Get("order"))
		assert.Equal(t, "1000", q.Get("limit"))
		assert.Equal(t, "0", q.Get("offset"))

		writeJSON(w, `[
			{"id": 17, "content": "first", "document_id": "doc-a"},
			{"id": "c-2", "content": "second", "document_id": 9}
		]`)
	})

	chunks, err := s.FetchPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Chunk{
		{ID: "17", Content: "first", DocumentID: "doc-a"},
		{ID: "c-2", Content: "second", DocumentID: "9"},
	}, chunks)
}

func TestRESTStoreFetchPendingEmpty(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[]`)
	})

	chunks, err := s.FetchPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRESTStoreFetchPendingPages(t *testing.T) {
	var requests int32
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
		assert.NoError(t, err)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		switch offset {
		case 0:
			writeJSON(w, `[{"id":"a","content":"1","document_id":"d"},{"id":"b","content":"2","document_id":"d"}]`)
		case 2:
			writeJSON(w, `[{"id":"c","content":"3","document_id":"e"}]`)
		default:
			t.Errorf("unexpected offset %d", offset)
			writeJSON(w, `[]`)
		}
	}, func(c *store.StoreConfig) { c.PageSize = 2 })

	chunks, err := s.FetchPending(context.Background())
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "a", chunks[0].ID)
	assert.Equal(t, "c", chunks[2].ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestRESTStorePatchEmbedding(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/rest/v1/norm_chunks", r.URL.Path)
		assert.Equal(t, "eq.c-1", r.URL.Query().Get("id"))
		assert.Equal(t, "return=minimal", r.Header.Get("Prefer"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		var body map[string][]float64
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []float64{0.5, 1, -2}, body["embedding"])

		w.WriteHeader(http.StatusNoContent)
	})

	err := s.PatchEmbedding(context.Background(), "c-1", []float32{0.5, 1, -2})
	require.NoError(t, err)
}

func TestRESTStorePatchDocumentStatus(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/rest/v1/docs", r.URL.Path)
		assert.Equal(t, "eq.d-1", r.URL.Query().Get("id"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"status": "embedded"}, body)

		w.WriteHeader(http.StatusNoContent)
	}, func(c *store.StoreConfig) { c.DocumentsTable = "docs" })

	err := s.PatchDocumentStatus(context.Background(), "d-1", models.StatusEmbedded)
	require.NoError(t, err)
}

func TestRESTStoreErrors(t *testing.T) {
	t.Run("non-2xx response", func(t *testing.T) {
		s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"overloaded"}`))
		})

		err := s.PatchEmbedding(context.Background(), "c-1", []float32{1})
		require.Error(t, err)
		assert.ErrorIs(t, err, store.ErrStatus)

		var se *store.StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
		assert.Contains(t, err.Error(), "overloaded")
		assert.True(t, store.IsRetryable(err))
	})

	t.Run("client error is permanent", func(t *testing.T) {
		s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		err := s.PatchDocumentStatus(context.Background(), "d-1", models.StatusEmbedded)
		assert.ErrorIs(t, err, store.ErrStatus)
		assert.False(t, store.IsRetryable(err))
	})

	t.Run("malformed body", func(t *testing.T) {
		s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, `{"id": not json`)
		})

		_, err := s.FetchPending(context.Background())
		assert.ErrorIs(t, err, store.ErrDecode)
		assert.NotErrorIs(t, err, store.ErrTransport)
	})

	t.Run("transport failure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		s, err := store.NewRESTStore(store.StoreConfig{URL: srv.URL, APIKey: "k"})
		require.NoError(t, err)

		_, err = s.FetchPending(context.Background())
		assert.ErrorIs(t, err, store.ErrTransport)
		assert.True(t, store.IsRetryable(err))
	})

	t.Run("timeout", func(t *testing.T) {
		s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.WriteHeader(http.StatusNoContent)
		}, func(c *store.StoreConfig) { c.Timeout = 20 * time.Millisecond })

		err := s.PatchEmbedding(context.Background(), "c-1", []float32{1})
		assert.ErrorIs(t, err, store.ErrTransport)
		assert.True(t, store.IsRetryable(err))
	})
}

func TestNewRESTStoreRequiresCredentials(t *testing.T) {
	_, err := store.NewRESTStore(store.StoreConfig{APIKey: "k"})
	assert.Error(t, err)

	_, err = store.NewRESTStore(store.StoreConfig{URL: "https://x.example"})
	assert.Error(t, err)
}
