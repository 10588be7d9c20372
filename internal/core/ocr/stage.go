package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/core/pdf"
	"github.com/paperlens/paperlens/internal/models"
)

// Config bounds the memory and latency of a single page recognition.
type Config struct {
	DPI          float64
	MaxDimension int
	JPEGQuality  int
	Timeout      time.Duration
	Options      core.OCROptions
}

// Recognizer turns one scanned page into a searchable page: render to a
// raster, clamp, recognize, then rewrite the page with the recognized text
// layered invisibly over the page image.
type Recognizer struct {
	renderer pdf.PageRenderer
	engine   core.OCR
	cfg      Config
}

func NewRecognizer(renderer pdf.PageRenderer, engine core.OCR, cfg Config) *Recognizer {
	return &Recognizer{renderer: renderer, engine: engine, cfg: cfg}
}

// RecognizePage processes a single page unit and returns its searchable
// replacement together with the recognized text. On error the caller keeps
// the original unit; nothing is written unless recognition succeeded.
func (r *Recognizer) RecognizePage(ctx context.Context, unit models.PageUnit) (models.PageUnit, string, error) {
	img, err := r.renderer.Render(ctx, unit.Path, r.cfg.DPI)
	if err != nil {
		return models.PageUnit{}, "", fmt.Errorf("render page %d: %w", unit.Index, err)
	}
	img = clampImage(img, r.cfg.MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: r.cfg.JPEGQuality}); err != nil {
		return models.PageUnit{}, "", fmt.Errorf("encode page %d: %w", unit.Index, err)
	}
	jpegData := buf.Bytes()

	ocrCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ocrCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	text, err := r.engine.Recognize(ocrCtx, jpegData, r.cfg.Options)
	if err != nil {
		return models.PageUnit{}, "", fmt.Errorf("recognize page %d: %w", unit.Index, err)
	}

	bounds := img.Bounds()
	outPath := searchablePath(unit.Path)
	f, err := os.Create(outPath)
	if err != nil {
		return models.PageUnit{}, "", fmt.Errorf("create page %d output: %w", unit.Index, err)
	}
	if err := pdf.WriteSearchablePage(f, jpegData, bounds.Dx(), bounds.Dy(), r.cfg.DPI, text); err != nil {
		f.Close()
		os.Remove(outPath)
		return models.PageUnit{}, "", fmt.Errorf("write page %d: %w", unit.Index, err)
	}
	if err := f.Close(); err != nil {
		return models.PageUnit{}, "", fmt.Errorf("write page %d: %w", unit.Index, err)
	}

	return models.PageUnit{Index: unit.Index, Path: outPath, Recognized: true}, text, nil
}

func searchablePath(pagePath string) string {
	return strings.TrimSuffix(pagePath, ".pdf") + "_ocr.pdf"
}

// clampImage scales the image down so its longest side does not exceed max.
// Images at or under the limit are returned untouched.
func clampImage(img image.Image, max int) image.Image {
	if max <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= max {
		return img
	}
	scale := float64(max) / float64(longest)
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}
