package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport", fmt.Errorf("%w: dial tcp: refused", ErrTransport), true},
		{"canceled", fmt.Errorf("%w: %w", ErrTransport, context.Canceled), false},
		{"deadline", fmt.Errorf("%w: %w", ErrTransport, context.DeadlineExceeded), true},
		{"too many requests", &StatusError{StatusCode: 429}, true},
		{"request timeout", &StatusError{StatusCode: 408}, true},
		{"bad gateway", fmt.Errorf("patch: %w", &StatusError{StatusCode: 502}), true},
		{"conflict", &StatusError{StatusCode: 409}, false},
		{"decode", fmt.Errorf("%w: eof", ErrDecode), false},
		{"foreign", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	assert.Equal(t, "status 404", (&StatusError{StatusCode: 404}).Error())
	assert.Equal(t, "status 400: bad filter", (&StatusError{StatusCode: 400, Body: " bad filter\n"}).Error())
	assert.ErrorIs(t, &StatusError{StatusCode: 500}, ErrStatus)
}

func TestRowIDUnmarshal(t *testing.T) {
	var row struct {
		A rowID `json:"a"`
		B rowID `json:"b"`
		C rowID `json:"c"`
	}
	err := json.Unmarshal([]byte(`{"a":"x-1","b":42,"c":"550e8400-e29b-41d4-a716-446655440000"}`), &row)
	require.NoError(t, err)
	assert.Equal(t, rowID("x-1"), row.A)
	assert.Equal(t, rowID("42"), row.B)
	assert.Equal(t, rowID("550e8400-e29b-41d4-a716-446655440000"), row.C)

	var bad struct {
		A rowID `json:"a"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"a":null}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &bad))
}

func TestNewWithConfigUnknownBackend(t *testing.T) {
	_, err := NewWithConfig(context.Background(), StoreConfig{Backend: "s3"})
	assert.Error(t, err)
}

func TestNewWithConfigREST(t *testing.T) {
	s, err := NewWithConfig(context.Background(), StoreConfig{URL: "https://x.example", APIKey: "k"})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &RESTStore{}, s)
}

func TestUpdateByID(t *testing.T) {
	assert.Equal(t,
		`UPDATE "norm_chunks" SET "embedding" = $1 WHERE id = $2::text::bigint`,
		updateByID("norm_chunks", "embedding", "bigint"))
	assert.Equal(t,
		`UPDATE "norm_documents" SET "status" = $1 WHERE id = $2::text::uuid`,
		updateByID("norm_documents", "status", "uuid"))
}
