// Package pipeline fills in missing chunk embeddings and rolls document
// status up to "embedded".
//
// A run has four sequential phases: fetch pending chunks, embed them in
// fixed-size batches, persist every vector, and mark every affected document.
// Fetch and embed failures abort the run before anything is written. Write
// failures in the last two phases are isolated to the item that failed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/embedsync/internal/models"
	"github.com/xhad/embedsync/internal/types"
	"github.com/xhad/embedsync/pkg/store"
)

var (
	ErrFetch = errors.New("failed to fetch pending chunks")
	ErrEmbed = errors.New("failed to compute embeddings")
)

type Config struct {
	// BatchSize bounds the number of texts per embedding call.
	BatchSize int
	// ReportInterval is how often (in chunk writes) an EventProgress is emitted.
	ReportInterval int
	// MaxAttempts is the total number of tries per write, including the first.
	MaxAttempts int
	// RetryDelay is the initial backoff between attempts.
	RetryDelay time.Duration
	// WriteRate limits store writes per second. Zero disables the limit.
	WriteRate float64
	// Retryable decides whether a failed write is tried again.
	Retryable  func(error) bool
	Logger     *zap.Logger
	OnProgress ProgressFunc
}

// Summary is the outcome of a run.
type Summary struct {
	Fetched      int
	Batches      int
	Embedded     int
	Failed       int
	FailedChunks []string

	Documents        int
	DocumentsUpdated int
	FailedDocuments  []string

	NothingToDo bool
	Elapsed     time.Duration
}

// Complete reports whether every write of the run succeeded.
func (s *Summary) Complete() bool {
	return s.Failed == 0 && len(s.FailedDocuments) == 0
}

type Pipeline struct {
	store    types.ChunkStore
	embedder types.Embedder
	config   Config
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func NewWithConfig(chunkStore types.ChunkStore, embedder types.Embedder, config Config) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = 10
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 500 * time.Millisecond
	}
	if config.Retryable == nil {
		config.Retryable = store.IsRetryable
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	limit := rate.Inf
	if config.WriteRate > 0 {
		limit = rate.Limit(config.WriteRate)
	}

	return &Pipeline{
		store:    chunkStore,
		embedder: embedder,
		config:   config,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   config.Logger,
	}
}

// Run executes one synchronization pass. Fetch and embed failures return a
// nil Summary and an error wrapping ErrFetch or ErrEmbed; nothing has been
// written in that case. Per-item write failures are reported in the Summary
// only. If ctx is canceled while writing, the partial Summary is returned
// together with the context error.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}
	defer func() { summary.Elapsed = time.Since(start) }()

	chunks, err := p.store.FetchPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	summary.Fetched = len(chunks)
	p.emit(Event{Kind: EventFetched, Total: len(chunks)})

	if len(chunks) == 0 {
		p.logger.Info("no chunks to embed")
		summary.NothingToDo = true
		return summary, nil
	}
	p.logger.Info("found chunks to embed", zap.Int("chunks", len(chunks)))

	vectors, batches, err := p.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}
	summary.Batches = batches

	if err := p.persist(ctx, chunks, vectors, summary); err != nil {
		return summary, err
	}
	if err := p.rollup(ctx, chunks, summary); err != nil {
		return summary, err
	}

	p.logger.Info("sync finished",
		zap.Int("embedded", summary.Embedded),
		zap.Int("failed", summary.Failed),
		zap.Int("documents_updated", summary.DocumentsUpdated),
		zap.Int("documents", summary.Documents),
	)
	return summary, nil
}

func (p *Pipeline) embed(ctx context.Context, chunks []models.Chunk) ([][]float32, int, error) {
	batches := Partition(chunks, p.config.BatchSize)
	vectors := make([][]float32, 0, len(chunks))

	p.logger.Info("generating embeddings",
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", p.config.BatchSize),
	)

	for i, batch := range batches {
		texts := make([]string, len(batch))
		for j, chunk := range batch {
			texts[j] = chunk.Content
		}

		out, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: batch %d/%d: %w", ErrEmbed, i+1, len(batches), err)
		}
		if len(out) != len(batch) {
			return nil, 0, fmt.Errorf("%w: batch %d/%d: got %d vectors for %d chunks", ErrEmbed, i+1, len(batches), len(out), len(batch))
		}

		vectors = append(vectors, out...)
		p.logger.Debug("embedded batch", zap.Int("batch", i+1), zap.Int("size", len(batch)))
		p.emit(Event{Kind: EventBatchEmbedded, Done: len(vectors), Total: len(chunks)})
	}

	return vectors, len(batches), nil
}

func (p *Pipeline) persist(ctx context.Context, chunks []models.Chunk, vectors [][]float32, summary *Summary) error {
	total := len(chunks)

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		vector := vectors[i]
		err := p.write(ctx, func(ctx context.Context) error {
			return p.store.PatchEmbedding(ctx, chunk.ID, vector)
		})
		if err != nil {
			summary.Failed++
			summary.FailedChunks = append(summary.FailedChunks, chunk.ID)
			p.logger.Error("failed to persist embedding",
				zap.String("chunk_id", chunk.ID),
				zap.String("document_id", chunk.DocumentID),
				zap.Error(err),
			)
		} else {
			summary.Embedded++
		}

		done := i + 1
		p.emit(Event{Kind: EventChunkPersisted, Done: done, Total: total, ID: chunk.ID, Err: err})
		if done%p.config.ReportInterval == 0 {
			p.logger.Info("persisting embeddings", zap.Int("done", done), zap.Int("total", total))
			p.emit(Event{Kind: EventProgress, Done: done, Total: total})
		}
	}

	return nil
}

func (p *Pipeline) rollup(ctx context.Context, chunks []models.Chunk, summary *Summary) error {
	documentIDs := distinctDocuments(chunks)
	summary.Documents = len(documentIDs)

	for i, id := range documentIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := p.write(ctx, func(ctx context.Context) error {
			return p.store.PatchDocumentStatus(ctx, id, models.StatusEmbedded)
		})
		if err != nil {
			summary.FailedDocuments = append(summary.FailedDocuments, id)
			p.logger.Error("failed to update document status",
				zap.String("document_id", id),
				zap.Error(err),
			)
		} else {
			summary.DocumentsUpdated++
		}

		p.emit(Event{Kind: EventDocumentUpdated, Done: i + 1, Total: len(documentIDs), ID: id, Err: err})
	}

	return nil
}

// distinctDocuments returns the document ids of chunks in first-seen order.
func distinctDocuments(chunks []models.Chunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	var ids []string
	for _, chunk := range chunks {
		if _, ok := seen[chunk.DocumentID]; ok {
			continue
		}
		seen[chunk.DocumentID] = struct{}{}
		ids = append(ids, chunk.DocumentID)
	}
	return ids
}

func (p *Pipeline) emit(event Event) {
	if p.config.OnProgress != nil {
		p.config.OnProgress(event)
	}
}
