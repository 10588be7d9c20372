package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
)

// Config bounds a single indexing run.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	Retries      int
	BatchTimeout time.Duration
}

// Indexer chunks extracted page text, embeds the chunks in batches, and
// swaps the session's chunk set in the vector store in one operation.
type Indexer struct {
	embedder core.EmbeddingProvider
	store    core.VectorStore
	cfg      Config
	log      *zap.Logger
}

func New(embedder core.EmbeddingProvider, store core.VectorStore, cfg Config, log *zap.Logger) *Indexer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	return &Indexer{embedder: embedder, store: store, cfg: cfg, log: log}
}

// Index builds the session's chunk set and returns the chunk count. The
// store is only written once every batch has embedded: a failed run leaves
// whatever chunk set the session had before.
func (ix *Indexer) Index(ctx context.Context, sessionID string, pages []models.PageText, progress func(percent int)) (int, error) {
	if progress == nil {
		progress = func(int) {}
	}

	pieces := SplitPages(pages, ix.cfg.ChunkSize, ix.cfg.ChunkOverlap)
	if len(pieces) == 0 {
		return 0, core.ErrNoExtractableText
	}

	chunks := make([]models.Chunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += ix.cfg.BatchSize {
		end := start + ix.cfg.BatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Text
		}

		vectors, err := ix.embedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed batch at chunk %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("embed batch at chunk %d: got %d vectors for %d texts", start, len(vectors), len(batch))
		}

		for i, p := range batch {
			seq := start + i
			chunks = append(chunks, models.Chunk{
				ID:        fmt.Sprintf("%s-%d", sessionID, seq),
				SessionID: sessionID,
				Sequence:  seq,
				Page:      p.Page,
				Offset:    p.Offset,
				Text:      p.Text,
				Embedding: vectors[i],
			})
		}
		progress(end * 90 / len(pieces))
	}

	if err := ix.store.Replace(ctx, sessionID, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	progress(100)
	return len(chunks), nil
}

// embedBatch retries transient provider failures with exponential backoff.
func (ix *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(ix.cfg.Retries-1)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		callCtx := ctx
		if ix.cfg.BatchTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, ix.cfg.BatchTimeout)
			defer cancel()
		}
		out, err := ix.embedder.EmbedTexts(callCtx, texts)
		if err != nil {
			if ix.log != nil {
				ix.log.Warn("embedding batch failed",
					zap.Int("attempt", attempt),
					zap.Int("batch_size", len(texts)),
					zap.Error(err))
			}
			return err
		}
		vectors = out
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return vectors, nil
}
