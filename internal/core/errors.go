package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Failure taxonomy for the processing pipeline. Stage functions wrap these
// with fmt.Errorf("...: %w", err) so callers can branch with errors.Is.
var (
	// ErrInvalidDocument means the source cannot be parsed as a paged
	// document. Fatal, no retry.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrIncompletePageSet means reconstruction was asked to merge a page set
	// with at least one missing index. Fatal.
	ErrIncompletePageSet = errors.New("incomplete page set")

	// ErrNoExtractableText means direct-mode extraction produced an empty or
	// near-empty result; the caller should fall back to recognition mode.
	ErrNoExtractableText = errors.New("no extractable text")

	// ErrOCRUnavailable means the OCR engine could not be reached or timed
	// out. Transient at the unit level.
	ErrOCRUnavailable = errors.New("ocr unavailable")

	// ErrRateLimited is returned by embedding/summarization providers and
	// escalates through retry/tier fallback before becoming fatal.
	ErrRateLimited = errors.New("rate limited")

	// ErrContextTooLarge means a single model call exceeded the tier's
	// context window; the summarizer falls back to a smaller tier.
	ErrContextTooLarge = errors.New("context too large")

	// ErrAlreadyRunning rejects a duplicate StartProcessing call.
	ErrAlreadyRunning = errors.New("session already running")

	// ErrSessionNotFound rejects operations on unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
)

// BatchError aggregates per-unit failures from one batch executor run. The
// run itself is not aborted by individual units; callers inspect Failed to
// decide whether partial results are usable.
type BatchError struct {
	Failed map[int]error // unit index -> failure
}

func (e *BatchError) Error() string {
	idxs := e.Indices()
	parts := make([]string, 0, len(idxs))
	for _, i := range idxs {
		parts = append(parts, fmt.Sprintf("unit %d: %v", i, e.Failed[i]))
	}
	return fmt.Sprintf("%d unit(s) failed: %s", len(idxs), strings.Join(parts, "; "))
}

// Indices returns the failed unit indices in ascending order.
func (e *BatchError) Indices() []int {
	idxs := make([]int, 0, len(e.Failed))
	for i := range e.Failed {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	return idxs
}
