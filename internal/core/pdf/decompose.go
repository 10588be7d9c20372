package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
)

// Decompose splits a source document into single-page files under
// dir/pages, preserving page count and order exactly. The returned units are
// ordered by 1-based page index. An unparseable source fails with a wrapped
// core.ErrInvalidDocument.
func Decompose(ctx context.Context, srcPath, dir string, progress func(pct int)) ([]models.PageUnit, error) {
	n, err := api.PageCountFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidDocument, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: document has no pages", core.ErrInvalidDocument)
	}

	pagesDir := filepath.Join(dir, "pages")
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pages dir: %w", err)
	}

	if err := api.SplitFile(srcPath, pagesDir, 1, nil); err != nil {
		return nil, fmt.Errorf("%w: split: %v", core.ErrInvalidDocument, err)
	}

	// pdfcpu names split output <base>_<page>.pdf; rename to the stable
	// page_%03d.pdf layout the rest of the pipeline expects.
	base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	units := make([]models.PageUnit, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src := filepath.Join(pagesDir, fmt.Sprintf("%s_%d.pdf", base, i))
		dst := filepath.Join(pagesDir, fmt.Sprintf("page_%03d.pdf", i))
		if err := os.Rename(src, dst); err != nil {
			return nil, fmt.Errorf("collect page %d: %w", i, err)
		}
		units = append(units, models.PageUnit{Index: i, Path: dst})
		if progress != nil {
			progress(i * 100 / n)
		}
	}
	return units, nil
}
