package ocr

import (
	"context"
	"fmt"
	"strconv"

	"github.com/otiai10/gosseract/v2"

	"github.com/paperlens/paperlens/internal/core"
)

// TesseractOCR implements core.OCR against a local Tesseract install via
// gosseract. A fresh client is created per call: gosseract clients are not
// safe for the concurrent page batches the executor runs.
type TesseractOCR struct{}

var _ core.OCR = (*TesseractOCR)(nil)

func (TesseractOCR) Recognize(ctx context.Context, image []byte, opts core.OCROptions) (string, error) {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		client := gosseract.NewClient()
		defer client.Close()

		if opts.Language != "" {
			if err := client.SetLanguage(opts.Language); err != nil {
				ch <- result{err: fmt.Errorf("set language: %w", err)}
				return
			}
		}
		if err := client.SetPageSegMode(gosseract.PageSegMode(opts.PageSegMode)); err != nil {
			ch <- result{err: fmt.Errorf("set psm: %w", err)}
			return
		}
		if err := client.SetVariable("tessedit_ocr_engine_mode", strconv.Itoa(opts.EngineMode)); err != nil {
			ch <- result{err: fmt.Errorf("set oem: %w", err)}
			return
		}
		if err := client.SetImageFromBytes(image); err != nil {
			ch <- result{err: fmt.Errorf("set image: %w", err)}
			return
		}
		text, err := client.Text()
		ch <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		// The engine call cannot be interrupted; the goroutine finishes and
		// drops its result. The page is reported as a timed-out unit.
		return "", fmt.Errorf("%w: %v", core.ErrOCRUnavailable, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrOCRUnavailable, res.err)
		}
		return res.text, nil
	}
}
