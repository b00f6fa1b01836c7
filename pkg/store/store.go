package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xhad/embedsync/internal/types"
)

var (
	// ErrTransport covers network failures and timeouts.
	ErrTransport = errors.New("store transport failure")

	// ErrStatus is matched by every *StatusError.
	ErrStatus = errors.New("store returned non-2xx status")

	// ErrDecode indicates a malformed response body.
	ErrDecode = errors.New("malformed store response")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// IsRetryable reports whether a failed request may succeed when repeated:
// transport failures, 408, 429 and 5xx responses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransport) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusRequestTimeout,
			se.StatusCode == http.StatusTooManyRequests,
			se.StatusCode >= 500:
			return true
		}
	}
	return false
}

type StoreConfig struct {
	Backend        string // "rest" or "postgres"
	URL            string
	APIKey         string
	DatabaseURL    string
	ChunksTable    string
	DocumentsTable string
	PageSize       int
	Timeout        time.Duration
}

func (c *StoreConfig) applyDefaults() {
	if c.Backend == "" {
		c.Backend = "rest"
	}
	if c.ChunksTable == "" {
		c.ChunksTable = "norm_chunks"
	}
	if c.DocumentsTable == "" {
		c.DocumentsTable = "norm_documents"
	}
	if c.PageSize <= 0 {
		c.PageSize = 1000
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// NewWithConfig opens the store selected by config.Backend.
func NewWithConfig(ctx context.Context, config StoreConfig) (types.ChunkStore, error) {
	config.applyDefaults()

	switch config.Backend {
	case "rest":
		return NewRESTStore(config)
	case "postgres":
		return NewPostgresStore(ctx, config)
	default:
		return nil, fmt.Errorf("unknown store backend %q", config.Backend)
	}
}

// rowID accepts both string and numeric JSON identifiers.
type rowID string

func (id *rowID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return fmt.Errorf("identifier is null")
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		*id = rowID(unquoted)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("identifier %s is neither string nor number", s)
	}
	*id = rowID(s)
	return nil
}
