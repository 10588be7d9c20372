package models

import (
	"time"
)

// Mode selects the processing pipeline chosen at session creation.
type Mode string

const (
	// ModeRecognition runs the full split -> OCR -> merge pipeline and is the
	// right choice for scanned documents.
	ModeRecognition Mode = "recognition"
	// ModeDirect extracts the embedded text stream without OCR.
	ModeDirect Mode = "direct"
)

// Status is the lifecycle state of a session. Transitions are strictly
// created -> running -> {completed, completed_with_warnings, failed}.
type Status string

const (
	StatusCreated               Status = "created"
	StatusRunning               Status = "running"
	StatusCompleted             Status = "completed"
	StatusCompletedWithWarnings Status = "completed_with_warnings"
	StatusFailed                Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithWarnings, StatusFailed:
		return true
	}
	return false
}

// Session represents one end-to-end processing run for a single uploaded
// document. Mutated only by the orchestrator and the stage functions running
// on the session's own worker.
type Session struct {
	ID           string            `json:"id"`
	FileName     string            `json:"file_name"`
	Mode         Mode              `json:"mode"`
	Status       Status            `json:"status"`
	CurrentStage string            `json:"current_stage,omitempty"`
	WorkDir      string            `json:"-"`
	SourcePath   string            `json:"-"`
	OutputPath   string            `json:"-"`
	PageCount    int               `json:"page_count,omitempty"`
	ChunkCount   int               `json:"chunk_count,omitempty"`
	Progress     map[string]int    `json:"progress"`
	Warnings     []string          `json:"warnings,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// PageUnit is a single page of a decomposed document. Index is 1-based and
// stable; the recognition stage replaces a unit rather than mutating it.
type PageUnit struct {
	Index      int
	Path       string
	Recognized bool
}

// PageText carries the extracted text of one source page into the indexer.
type PageText struct {
	Page    int
	Content string
}

// Chunk is a bounded slice of extracted text used for embedding and
// retrieval. ID is "{session}-{sequence}". Immutable once stored.
type Chunk struct {
	ID        string
	SessionID string
	Sequence  int
	Page      int
	Offset    int
	Text      string
	Embedding []float32
}

// ScoredChunk is a retrieval hit with its relevance score (higher is closer).
type ScoredChunk struct {
	Chunk
	Score float64
}

// ProgressEvent is published on every stage transition and stage progress
// tick. Percent is 0-100 and non-decreasing within a stage. Ephemeral.
type ProgressEvent struct {
	SessionID string    `json:"session_id"`
	Stage     string    `json:"stage"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message,omitempty"`
	Terminal  bool      `json:"terminal,omitempty"`
	Err       string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SummaryResult is the outcome of one summarization request, including
// provenance for which model tier produced it.
type SummaryResult struct {
	Summary           string `json:"summary"`
	ModelTier         string `json:"model_tier"`
	ChunkCount        int    `json:"chunk_count"`
	IntermediateCalls int    `json:"intermediate_calls"`
}
