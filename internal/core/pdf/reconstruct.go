package pdf

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
)

// Reconstructor merges processed page units back into one document.
type Reconstructor struct {
	BatchSize int
	// merge appends the given page files to outPath, creating it on first
	// use. Overridable in tests; defaults to pdfcpu.
	merge func(inFiles []string, outPath string) error
}

func NewReconstructor(batchSize int) *Reconstructor {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Reconstructor{
		BatchSize: batchSize,
		merge: func(in []string, out string) error {
			return api.MergeAppendFile(in, out, false, nil)
		},
	}
}

// Reconstruct merges units into outPath in page-index order. Units may
// arrive in any order (recognition batches complete out of sequence); the
// output order is always 1..n. A missing index fails with a wrapped
// core.ErrIncompletePageSet before anything is written.
func (r *Reconstructor) Reconstruct(ctx context.Context, units []models.PageUnit, outPath string, progress func(pct int)) error {
	if len(units) == 0 {
		return fmt.Errorf("%w: no pages", core.ErrIncompletePageSet)
	}

	ordered := make([]models.PageUnit, len(units))
	copy(ordered, units)
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].Index < ordered[b].Index })

	for i, u := range ordered {
		if u.Index != i+1 {
			return fmt.Errorf("%w: expected page %d, have %d", core.ErrIncompletePageSet, i+1, u.Index)
		}
	}

	total := len(ordered)
	for start := 0; start < total; start += r.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + r.BatchSize
		if end > total {
			end = total
		}
		files := make([]string, 0, end-start)
		for _, u := range ordered[start:end] {
			files = append(files, u.Path)
		}
		if err := r.merge(files, outPath); err != nil {
			return fmt.Errorf("merge pages %d-%d: %w", start+1, end, err)
		}
		if progress != nil {
			progress(end * 100 / total)
		}
		runtime.GC()
	}
	return nil
}
