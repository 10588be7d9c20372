package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
)

type fakeRenderer struct {
	img image.Image
	err error
}

func (f fakeRenderer) Render(_ context.Context, _ string, _ float64) (image.Image, error) {
	return f.img, f.err
}

type fakeEngine struct {
	text string
	err  error
	opts core.OCROptions
}

func (f *fakeEngine) Recognize(_ context.Context, _ []byte, opts core.OCROptions) (string, error) {
	f.opts = opts
	return f.text, f.err
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.Black)
	}
	return img
}

func TestRecognizePageWritesSearchableReplacement(t *testing.T) {
	dir := t.TempDir()
	pagePath := filepath.Join(dir, "page_004.pdf")
	require.NoError(t, os.WriteFile(pagePath, []byte("%PDF-1.4 stub"), 0o644))

	engine := &fakeEngine{text: "recognized body"}
	rec := NewRecognizer(fakeRenderer{img: testImage(200, 300)}, engine, Config{
		DPI:         150,
		JPEGQuality: 85,
		Options:     core.OCROptions{Language: "eng", PageSegMode: 6},
	})

	unit, text, err := rec.RecognizePage(context.Background(), models.PageUnit{Index: 4, Path: pagePath})
	require.NoError(t, err)

	assert.Equal(t, 4, unit.Index)
	assert.True(t, unit.Recognized)
	assert.Equal(t, filepath.Join(dir, "page_004_ocr.pdf"), unit.Path)
	assert.Equal(t, "recognized body", text)
	assert.Equal(t, "eng", engine.opts.Language)

	data, err := os.ReadFile(unit.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "%PDF-1.4")
	assert.Contains(t, string(data), "(recognized body) Tj")

	// source page is preserved alongside the searchable copy
	_, err = os.Stat(pagePath)
	assert.NoError(t, err)
}

func TestRecognizePageEngineFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	pagePath := filepath.Join(dir, "page_001.pdf")
	require.NoError(t, os.WriteFile(pagePath, []byte("stub"), 0o644))

	engine := &fakeEngine{err: core.ErrOCRUnavailable}
	rec := NewRecognizer(fakeRenderer{img: testImage(10, 10)}, engine, Config{DPI: 150, JPEGQuality: 85})

	_, _, err := rec.RecognizePage(context.Background(), models.PageUnit{Index: 1, Path: pagePath})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrOCRUnavailable)

	_, err = os.Stat(filepath.Join(dir, "page_001_ocr.pdf"))
	assert.True(t, os.IsNotExist(err))
}

func TestRecognizePageRenderFailure(t *testing.T) {
	rec := NewRecognizer(fakeRenderer{err: errors.New("broken page")}, &fakeEngine{}, Config{DPI: 150})
	_, _, err := rec.RecognizePage(context.Background(), models.PageUnit{Index: 2, Path: "page_002.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render page 2")
}

func TestClampImage(t *testing.T) {
	tests := []struct {
		name       string
		w, h, max  int
		wantW      int
		wantH      int
	}{
		{"under limit untouched", 800, 600, 1500, 800, 600},
		{"wide image clamped", 3000, 1500, 1500, 1500, 750},
		{"tall image clamped", 1000, 2000, 1500, 750, 1500},
		{"zero max disables clamp", 4000, 4000, 0, 4000, 4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := clampImage(testImage(tt.w, tt.h), tt.max)
			b := out.Bounds()
			assert.Equal(t, tt.wantW, b.Dx())
			assert.Equal(t, tt.wantH, b.Dy())
		})
	}
}

func TestRecognizePageTimeout(t *testing.T) {
	slow := ocrFunc(func(ctx context.Context, _ []byte, _ core.OCROptions) (string, error) {
		select {
		case <-ctx.Done():
			return "", core.ErrOCRUnavailable
		case <-time.After(5 * time.Second):
			return "too late", nil
		}
	})
	rec := NewRecognizer(fakeRenderer{img: testImage(10, 10)}, slow, Config{
		DPI: 150, JPEGQuality: 85, Timeout: 20 * time.Millisecond,
	})
	_, _, err := rec.RecognizePage(context.Background(), models.PageUnit{Index: 1, Path: "page_001.pdf"})
	assert.ErrorIs(t, err, core.ErrOCRUnavailable)
}

type ocrFunc func(ctx context.Context, image []byte, opts core.OCROptions) (string, error)

func (f ocrFunc) Recognize(ctx context.Context, image []byte, opts core.OCROptions) (string, error) {
	return f(ctx, image, opts)
}
