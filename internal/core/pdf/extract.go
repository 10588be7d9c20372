package pdf

import (
	"context"
	"fmt"
	"os"
	"strings"

	"code.sajari.com/docconv"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
)

// minExtractableChars is the threshold below which a direct-mode extraction
// counts as "near-empty" and the caller must fall back to recognition mode.
const minExtractableChars = 32

// Extract pulls the embedded text stream out of a text-bearing document
// without OCR. docconv handles the conversion; if it cannot (or returns a
// blob with no page boundaries worth keeping), the MuPDF per-page path is
// used instead. Fails with a wrapped core.ErrNoExtractableText when the
// total text is empty or near-empty.
func Extract(ctx context.Context, path string, progress func(pct int)) ([]models.PageText, error) {
	if progress != nil {
		progress(10)
	}

	pages, err := ExtractPages(ctx, path)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(60)
	}

	if totalChars(pages) < minExtractableChars {
		// MuPDF found nothing; give docconv (pdftotext) one chance before
		// declaring the document image-only.
		pages = docconvPages(path)
	}
	if totalChars(pages) < minExtractableChars {
		return nil, fmt.Errorf("%w: document appears to contain only images", core.ErrNoExtractableText)
	}

	if progress != nil {
		progress(100)
	}
	return pages, nil
}

func docconvPages(path string) []models.PageText {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	res, err := docconv.Convert(f, "application/pdf", false)
	if err != nil || res == nil {
		return nil
	}
	body := strings.TrimSpace(res.Body)
	if body == "" {
		return nil
	}
	return []models.PageText{{Page: 1, Content: body}}
}

func totalChars(pages []models.PageText) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p.Content))
	}
	return n
}
