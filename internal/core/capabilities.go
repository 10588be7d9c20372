package core

import (
	"context"

	"github.com/paperlens/paperlens/internal/models"
)

// OCROptions mirror the Tesseract knobs the recognition stage exposes.
type OCROptions struct {
	Language    string
	EngineMode  int
	PageSegMode int
}

// OCR recognizes machine-readable text in a page image (JPEG bytes).
// Implementations must honor ctx deadlines; exceeding one is reported as a
// wrapped ErrOCRUnavailable, never a silent hang.
type OCR interface {
	Recognize(ctx context.Context, image []byte, opts OCROptions) (string, error)
}

// EmbeddingProvider turns text batches into embedding vectors.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// CompletionProvider executes one summarization call against a named model.
// Temperature 0 is passed for deterministic output.
type CompletionProvider interface {
	Complete(ctx context.Context, model, systemPrompt, userPrompt string, maxTokens int, temperature float32) (string, error)
}

// VectorStore persists a session's chunk set and serves similarity queries.
// Replace must be atomic per session: a reader never observes a partially
// written chunk set.
type VectorStore interface {
	Replace(ctx context.Context, sessionID string, chunks []models.Chunk) error
	Query(ctx context.Context, sessionID string, vector []float32, topK int) ([]models.ScoredChunk, error)
	All(ctx context.Context, sessionID string) ([]models.Chunk, error)
	Count(ctx context.Context, sessionID string) (int, error)
	Drop(ctx context.Context, sessionID string) error
}
