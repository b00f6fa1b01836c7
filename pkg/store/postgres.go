package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/embedsync/internal/models"
)

// PostgresStore reads and updates the chunk and document tables directly,
// bypassing the REST layer.
type PostgresStore struct {
	config StoreConfig
	pool   *pgxpool.Pool

	mu      sync.Mutex
	idTypes map[string]string
}

func NewPostgresStore(ctx context.Context, config StoreConfig) (*PostgresStore, error) {
	config.applyDefaults()

	poolConfig, err := pgxpool.ParseConfig(config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to database: %w", ErrTransport, err)
	}

	return &PostgresStore{
		config:  config,
		pool:    pool,
		idTypes: make(map[string]string),
	}, nil
}

func (ps *PostgresStore) FetchPending(ctx context.Context) ([]models.Chunk, error) {
	ctx, cancel := ps.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id::text, content, document_id::text
		FROM %s
		WHERE embedding IS NULL
		ORDER BY chunk_index ASC, id ASC`,
		pgx.Identifier{ps.config.ChunksTable}.Sanitize())

	rows, err := ps.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query pending chunks: %w", ErrTransport, err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var content *string
		if err := rows.Scan(&chunk.ID, &content, &chunk.DocumentID); err != nil {
			return nil, fmt.Errorf("%w: failed to scan row: %w", ErrDecode, err)
		}
		if content != nil {
			chunk.Content = sanitizeUTF8(*content)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read pending chunks: %w", ErrTransport, err)
	}

	return chunks, nil
}

func (ps *PostgresStore) PatchEmbedding(ctx context.Context, id string, vector []float32) error {
	return ps.update(ctx, ps.config.ChunksTable, "embedding", id, pgvector.NewVector(vector))
}

func (ps *PostgresStore) PatchDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error {
	return ps.update(ctx, ps.config.DocumentsTable, "status", id, string(status))
}

func (ps *PostgresStore) update(ctx context.Context, table, column, id string, value any) error {
	ctx, cancel := ps.withTimeout(ctx)
	defer cancel()

	idType, err := ps.idType(ctx, table)
	if err != nil {
		return err
	}

	if _, err := ps.pool.Exec(ctx, updateByID(table, column, idType), value, id); err != nil {
		return serverOrTransport(err, fmt.Sprintf("failed to update %s %s", table, id))
	}
	return nil
}

// updateByID casts the textual id to the column's own type so the primary
// key index is used.
func updateByID(table, column, idType string) string {
	return fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE id = $2::text::%s`,
		pgx.Identifier{table}.Sanitize(), pgx.Identifier{column}.Sanitize(), idType)
}

// idType returns the SQL type of table's id column. It is looked up once per
// table.
func (ps *PostgresStore) idType(ctx context.Context, table string) (string, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if t, ok := ps.idTypes[table]; ok {
		return t, nil
	}

	var t string
	err := ps.pool.QueryRow(ctx, `
		SELECT format_type(a.atttypid, a.atttypmod)
		FROM pg_attribute a
		WHERE a.attrelid = $1::text::regclass
			AND a.attname = 'id'
			AND NOT a.attisdropped`,
		pgx.Identifier{table}.Sanitize()).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("table %s has no id column", table)
	}
	if err != nil {
		return "", serverOrTransport(err, fmt.Sprintf("failed to resolve id type of %s", table))
	}

	ps.idTypes[table] = t
	return t, nil
}

// serverOrTransport wraps err with ErrTransport unless the server itself
// raised it. Server errors (constraint, type, permission, missing relation)
// will not go away on retry.
func serverOrTransport(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, msg, err)
}

func (ps *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ps.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, ps.config.Timeout)
}

func (ps *PostgresStore) Close() {
	if ps.pool != nil {
		ps.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
