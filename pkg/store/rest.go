package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/xhad/embedsync/internal/models"
)

// RESTStore talks to a PostgREST endpoint such as Supabase's /rest/v1.
type RESTStore struct {
	config StoreConfig
	client *resty.Client
}

type chunkRow struct {
	ID         rowID  `json:"id"`
	Content    string `json:"content"`
	DocumentID rowID  `json:"document_id"`
}

func NewRESTStore(config StoreConfig) (*RESTStore, error) {
	config.applyDefaults()

	if config.URL == "" {
		return nil, fmt.Errorf("store URL is required")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("store API key is required")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(config.URL, "/")+"/rest/v1").
		SetTimeout(config.Timeout).
		SetHeader("apikey", config.APIKey).
		SetAuthToken(config.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "return=minimal").
		SetDisableWarn(true)

	return &RESTStore{
		config: config,
		client: client,
	}, nil
}

func (s *RESTStore) FetchPending(ctx context.Context) ([]models.Chunk, error) {
	var chunks []models.Chunk

	for offset := 0; ; {
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"embedding": "is.null",
				"select":    "id,content,document_id",
				"order":     "chunk_index.asc,id.asc",
				"limit":     strconv.Itoa(s.config.PageSize),
				"offset":    strconv.Itoa(offset),
			}).
			Get("/" + url.PathEscape(s.config.ChunksTable))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to fetch pending chunks: %w", ErrTransport, err)
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("failed to fetch pending chunks: %w", &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()})
		}

		var rows []chunkRow
		if err := json.Unmarshal(resp.Body(), &rows); err != nil {
			return nil, fmt.Errorf("%w: failed to decode pending chunks: %w", ErrDecode, err)
		}

		for _, row := range rows {
			chunks = append(chunks, models.Chunk{
				ID:         string(row.ID),
				Content:    row.Content,
				DocumentID: string(row.DocumentID),
			})
		}

		if len(rows) < s.config.PageSize {
			return chunks, nil
		}
		offset += len(rows)
	}
}

func (s *RESTStore) PatchEmbedding(ctx context.Context, id string, vector []float32) error {
	return s.patch(ctx, s.config.ChunksTable, id, map[string]any{"embedding": vector})
}

func (s *RESTStore) PatchDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error {
	return s.patch(ctx, s.config.DocumentsTable, id, map[string]any{"status": status})
}

func (s *RESTStore) patch(ctx context.Context, table, id string, body map[string]any) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("id", "eq."+id).
		SetBody(body).
		Patch("/" + url.PathEscape(table))
	if err != nil {
		return fmt.Errorf("%w: failed to update %s %s: %w", ErrTransport, table, id, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("failed to update %s %s: %w", table, id, &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()})
	}
	return nil
}

func (s *RESTStore) Close() {
	s.client.GetClient().CloseIdleConnections()
}
