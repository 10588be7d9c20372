package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/core/batch"
	"github.com/paperlens/paperlens/internal/models"
)

// Stage names, also the keys of Session.Progress.
const (
	StageSplitting   = "splitting"
	StageRecognition = "recognition"
	StageMerging     = "merging"
	StageExtraction  = "extraction"
	StageIndexing    = "indexing"
)

// reportFunc receives stage progress from inside a pipeline run.
type reportFunc func(stage string, percent int, message string)

// PageRecognizer recognizes one page and returns its searchable replacement.
type PageRecognizer interface {
	RecognizePage(ctx context.Context, unit models.PageUnit) (models.PageUnit, string, error)
}

// Merger reassembles page units into a single output document.
type Merger interface {
	Reconstruct(ctx context.Context, units []models.PageUnit, outPath string, progress func(percent int)) error
}

// ChunkIndexer chunks, embeds, and stores page text for a session.
type ChunkIndexer interface {
	Index(ctx context.Context, sessionID string, pages []models.PageText, progress func(percent int)) (int, error)
}

// decomposeFunc splits a document into one file per page.
type decomposeFunc func(ctx context.Context, srcPath, dir string, progress func(percent int)) ([]models.PageUnit, error)

// extractFunc pulls the embedded text of a document.
type extractFunc func(ctx context.Context, path string, progress func(percent int)) ([]models.PageText, error)

// PipelineConfig sizes the recognition batches. OCRAttempts bounds the
// per-page retries of transient engine failures (default 2 attempts).
type PipelineConfig struct {
	OCRBatchSize int
	OCRAttempts  int
	ReclaimEvery int
}

// Pipeline runs a session's processing stages. One instance is shared by
// all sessions; per-run state lives on the stack of Run.
type Pipeline struct {
	decompose  decomposeFunc
	recognizer PageRecognizer
	merger     Merger
	extract    extractFunc
	indexer    ChunkIndexer
	cfg        PipelineConfig
	log        *zap.Logger
}

func NewPipeline(
	decompose decomposeFunc,
	recognizer PageRecognizer,
	merger Merger,
	extract extractFunc,
	idx ChunkIndexer,
	cfg PipelineConfig,
	log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		decompose:  decompose,
		recognizer: recognizer,
		merger:     merger,
		extract:    extract,
		indexer:    idx,
		cfg:        cfg,
		log:        log,
	}
}

// Result is what a finished pipeline run hands back to the orchestrator.
type Result struct {
	PageCount  int
	ChunkCount int
	Warnings   []string
}

// Run executes the pipeline for the session's mode.
func (p *Pipeline) Run(ctx context.Context, sess *models.Session, report reportFunc) (*Result, error) {
	switch sess.Mode {
	case models.ModeRecognition:
		return p.runRecognition(ctx, sess, report)
	case models.ModeDirect:
		return p.runDirect(ctx, sess, report)
	default:
		return nil, fmt.Errorf("unknown processing mode %q", sess.Mode)
	}
}

func (p *Pipeline) runRecognition(ctx context.Context, sess *models.Session, report reportFunc) (*Result, error) {
	report(StageSplitting, 0, "decomposing document")
	units, err := p.decompose(ctx, sess.SourcePath, sess.WorkDir, func(pct int) {
		report(StageSplitting, pct, "")
	})
	if err != nil {
		return nil, fmt.Errorf("splitting: %w", err)
	}
	res := &Result{PageCount: len(units)}

	report(StageRecognition, 0, fmt.Sprintf("recognizing %d pages", len(units)))
	var (
		mu    sync.Mutex
		texts = make(map[int]string, len(units))
	)
	err = batch.Run(ctx, len(units), batch.Options{
		BatchSize:    p.cfg.OCRBatchSize,
		ReclaimEvery: p.cfg.ReclaimEvery,
		Progress:     func(pct int) { report(StageRecognition, pct, "") },
	}, func(ctx context.Context, i int) error {
		replaced, text, err := p.recognizePage(ctx, units[i])
		if err != nil {
			return err
		}
		mu.Lock()
		units[i] = replaced
		texts[replaced.Index] = text
		mu.Unlock()
		return nil
	})
	if err != nil {
		var be *core.BatchError
		if !errors.As(err, &be) {
			return nil, fmt.Errorf("recognition: %w", err)
		}
		// Failed pages keep their pre-recognition form and carry no text.
		for _, i := range be.Indices() {
			page := units[i].Index
			res.Warnings = append(res.Warnings, fmt.Sprintf("page %d not recognized: %v", page, be.Failed[i]))
			if p.log != nil {
				p.log.Warn("page recognition failed",
					zap.String("session_id", sess.ID),
					zap.Int("page", page),
					zap.Error(be.Failed[i]))
			}
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("recognition produced no text on any page: %w", core.ErrNoExtractableText)
	}

	report(StageMerging, 0, "reassembling document")
	if err := p.merger.Reconstruct(ctx, units, sess.OutputPath, func(pct int) {
		report(StageMerging, pct, "")
	}); err != nil {
		return nil, fmt.Errorf("merging: %w", err)
	}

	report(StageIndexing, 0, "indexing recognized text")
	count, err := p.indexer.Index(ctx, sess.ID, pageTexts(texts), func(pct int) {
		report(StageIndexing, pct, "")
	})
	if err != nil {
		return nil, fmt.Errorf("indexing: %w", err)
	}
	res.ChunkCount = count
	return res, nil
}

// recognizePage retries a transient engine failure up to the configured
// attempt bound. Anything else (render errors, bad pages) fails the unit on
// the first try.
func (p *Pipeline) recognizePage(ctx context.Context, unit models.PageUnit) (models.PageUnit, string, error) {
	attempts := p.cfg.OCRAttempts
	if attempts < 1 {
		attempts = 2
	}
	var (
		replaced models.PageUnit
		text     string
		err      error
	)
	for a := 0; a < attempts; a++ {
		replaced, text, err = p.recognizer.RecognizePage(ctx, unit)
		if err == nil || !errors.Is(err, core.ErrOCRUnavailable) || ctx.Err() != nil {
			break
		}
		if p.log != nil {
			p.log.Warn("retrying page after transient engine failure",
				zap.Int("page", unit.Index),
				zap.Int("attempt", a+1),
				zap.Error(err))
		}
	}
	return replaced, text, err
}

func (p *Pipeline) runDirect(ctx context.Context, sess *models.Session, report reportFunc) (*Result, error) {
	report(StageExtraction, 0, "extracting embedded text")
	pages, err := p.extract(ctx, sess.SourcePath, func(pct int) {
		report(StageExtraction, pct, "")
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}
	res := &Result{PageCount: len(pages)}

	// Direct mode keeps the source document as the deliverable.
	if err := copyFile(sess.SourcePath, sess.OutputPath); err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}

	report(StageIndexing, 0, "indexing extracted text")
	count, err := p.indexer.Index(ctx, sess.ID, pages, func(pct int) {
		report(StageIndexing, pct, "")
	})
	if err != nil {
		return nil, fmt.Errorf("indexing: %w", err)
	}
	res.ChunkCount = count
	return res, nil
}

// pageTexts flattens the recognition results back into page order.
func pageTexts(texts map[int]string) []models.PageText {
	pages := make([]int, 0, len(texts))
	for p := range texts {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	out := make([]models.PageText, 0, len(pages))
	for _, p := range pages {
		out = append(out, models.PageText{Page: p, Content: texts[p]})
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
