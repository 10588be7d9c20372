package pdf

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
)

// PageRenderer rasterizes the first page of a single-page document.
type PageRenderer interface {
	Render(ctx context.Context, pdfPath string, dpi float64) (image.Image, error)
}

// FitzRenderer renders pages with MuPDF via go-fitz.
type FitzRenderer struct{}

func (FitzRenderer) Render(ctx context.Context, pdfPath string, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidDocument, err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("%w: empty page file", core.ErrInvalidDocument)
	}
	img, err := doc.ImageDPI(0, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return img, nil
}

// ExtractPages returns the embedded text of every page in native stream
// order. Pages with no text yield empty entries; callers decide whether the
// overall result is usable.
func ExtractPages(ctx context.Context, pdfPath string) ([]models.PageText, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidDocument, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	pages := make([]models.PageText, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		pages = append(pages, models.PageText{Page: i + 1, Content: strings.TrimSpace(text)})
	}
	return pages, nil
}
