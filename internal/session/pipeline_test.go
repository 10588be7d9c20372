package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
)

type fakeRecognizer struct {
	failPages map[int]error
}

func (f *fakeRecognizer) RecognizePage(_ context.Context, unit models.PageUnit) (models.PageUnit, string, error) {
	if err, ok := f.failPages[unit.Index]; ok {
		return models.PageUnit{}, "", err
	}
	out := unit
	out.Path = unit.Path + "_ocr"
	out.Recognized = true
	return out, fmt.Sprintf("text of page %d", unit.Index), nil
}

type fakeMerger struct {
	units []models.PageUnit
	err   error
}

func (f *fakeMerger) Reconstruct(_ context.Context, units []models.PageUnit, _ string, progress func(int)) error {
	f.units = append([]models.PageUnit(nil), units...)
	if progress != nil {
		progress(100)
	}
	return f.err
}

type fakeIndexer struct {
	sessionID string
	pages     []models.PageText
	count     int
	err       error
}

func (f *fakeIndexer) Index(_ context.Context, sessionID string, pages []models.PageText, progress func(int)) (int, error) {
	f.sessionID = sessionID
	f.pages = pages
	if progress != nil {
		progress(100)
	}
	return f.count, f.err
}

func fakeDecompose(n int) decomposeFunc {
	return func(_ context.Context, _ string, dir string, progress func(int)) ([]models.PageUnit, error) {
		units := make([]models.PageUnit, n)
		for i := range units {
			units[i] = models.PageUnit{Index: i + 1, Path: filepath.Join(dir, fmt.Sprintf("page_%03d.pdf", i+1))}
		}
		if progress != nil {
			progress(100)
		}
		return units, nil
	}
}

func recognitionSession(t *testing.T) *models.Session {
	t.Helper()
	dir := t.TempDir()
	return &models.Session{
		ID:         "sess",
		Mode:       models.ModeRecognition,
		WorkDir:    dir,
		SourcePath: filepath.Join(dir, "source.pdf"),
		OutputPath: filepath.Join(dir, "out.pdf"),
	}
}

func collectReports() (reportFunc, *map[string][]int) {
	seen := make(map[string][]int)
	return func(stage string, percent int, _ string) {
		seen[stage] = append(seen[stage], percent)
	}, &seen
}

func TestRecognitionPipelineHappyPath(t *testing.T) {
	merger := &fakeMerger{}
	idx := &fakeIndexer{count: 9}
	p := NewPipeline(fakeDecompose(3), &fakeRecognizer{}, merger, nil, idx,
		PipelineConfig{OCRBatchSize: 2}, nil)

	report, seen := collectReports()
	res, err := p.Run(context.Background(), recognitionSession(t), report)
	require.NoError(t, err)

	assert.Equal(t, 3, res.PageCount)
	assert.Equal(t, 9, res.ChunkCount)
	assert.Empty(t, res.Warnings)

	// all merged units are the recognized replacements
	require.Len(t, merger.units, 3)
	for _, u := range merger.units {
		assert.True(t, u.Recognized)
	}

	// indexed text arrives in page order
	assert.Equal(t, "sess", idx.sessionID)
	require.Len(t, idx.pages, 3)
	for i, pg := range idx.pages {
		assert.Equal(t, i+1, pg.Page)
		assert.Equal(t, fmt.Sprintf("text of page %d", i+1), pg.Content)
	}

	for _, stage := range []string{StageSplitting, StageRecognition, StageMerging, StageIndexing} {
		assert.NotEmpty(t, (*seen)[stage], stage)
	}
}

func TestRecognitionPipelinePartialFailureKeepsOriginalPage(t *testing.T) {
	merger := &fakeMerger{}
	idx := &fakeIndexer{count: 4}
	rec := &fakeRecognizer{failPages: map[int]error{2: core.ErrOCRUnavailable}}
	p := NewPipeline(fakeDecompose(3), rec, merger, nil, idx, PipelineConfig{}, nil)

	report, _ := collectReports()
	res, err := p.Run(context.Background(), recognitionSession(t), report)
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "page 2")

	// page 2 ships in its pre-recognition form
	require.Len(t, merger.units, 3)
	assert.False(t, merger.units[1].Recognized)
	assert.True(t, merger.units[0].Recognized)
	assert.True(t, merger.units[2].Recognized)

	// and contributes no text to the index
	require.Len(t, idx.pages, 2)
	assert.Equal(t, 1, idx.pages[0].Page)
	assert.Equal(t, 3, idx.pages[1].Page)
}

// flakyRecognizer fails a page with a transient engine error a fixed number
// of times before succeeding, counting every attempt.
type flakyRecognizer struct {
	mu       sync.Mutex
	failures map[int]int // page index -> remaining transient failures
	attempts map[int]int
	err      error
}

func (f *flakyRecognizer) RecognizePage(_ context.Context, unit models.PageUnit) (models.PageUnit, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts == nil {
		f.attempts = make(map[int]int)
	}
	f.attempts[unit.Index]++
	if f.failures[unit.Index] > 0 {
		f.failures[unit.Index]--
		return models.PageUnit{}, "", f.err
	}
	out := unit
	out.Recognized = true
	return out, fmt.Sprintf("text of page %d", unit.Index), nil
}

func TestRecognitionRetriesTransientEngineFailure(t *testing.T) {
	rec := &flakyRecognizer{
		failures: map[int]int{2: 1},
		err:      fmt.Errorf("recognize page 2: %w", core.ErrOCRUnavailable),
	}
	merger := &fakeMerger{}
	idx := &fakeIndexer{count: 3}
	p := NewPipeline(fakeDecompose(3), rec, merger, nil, idx,
		PipelineConfig{OCRAttempts: 2}, nil)

	report, _ := collectReports()
	res, err := p.Run(context.Background(), recognitionSession(t), report)
	require.NoError(t, err)

	// the page recovered on its second attempt: no warning, full index
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 2, rec.attempts[2])
	assert.Equal(t, 1, rec.attempts[1])
	require.Len(t, idx.pages, 3)
	for _, u := range merger.units {
		assert.True(t, u.Recognized)
	}
}

func TestRecognitionRetryBoundIsRespected(t *testing.T) {
	rec := &flakyRecognizer{
		failures: map[int]int{1: 10},
		err:      fmt.Errorf("recognize page 1: %w", core.ErrOCRUnavailable),
	}
	p := NewPipeline(fakeDecompose(2), rec, &fakeMerger{}, nil, &fakeIndexer{count: 1},
		PipelineConfig{OCRAttempts: 3}, nil)

	report, _ := collectReports()
	res, err := p.Run(context.Background(), recognitionSession(t), report)
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "page 1")
	assert.Equal(t, 3, rec.attempts[1])
}

func TestRecognitionDoesNotRetryPermanentFailure(t *testing.T) {
	rec := &flakyRecognizer{
		failures: map[int]int{1: 10},
		err:      errors.New("render page 1: broken page object"),
	}
	p := NewPipeline(fakeDecompose(1), rec, &fakeMerger{}, nil, &fakeIndexer{}, PipelineConfig{OCRAttempts: 3}, nil)

	report, _ := collectReports()
	_, err := p.Run(context.Background(), recognitionSession(t), report)
	require.Error(t, err)
	assert.Equal(t, 1, rec.attempts[1])
}

func TestRecognitionPipelineAllPagesFailed(t *testing.T) {
	rec := &fakeRecognizer{failPages: map[int]error{
		1: core.ErrOCRUnavailable, 2: core.ErrOCRUnavailable,
	}}
	p := NewPipeline(fakeDecompose(2), rec, &fakeMerger{}, nil, &fakeIndexer{}, PipelineConfig{}, nil)

	report, _ := collectReports()
	_, err := p.Run(context.Background(), recognitionSession(t), report)
	assert.ErrorIs(t, err, core.ErrNoExtractableText)
}

func TestDirectPipelineExtractsAndIndexes(t *testing.T) {
	dir := t.TempDir()
	sess := &models.Session{
		ID:         "sess",
		Mode:       models.ModeDirect,
		SourcePath: filepath.Join(dir, "source.pdf"),
		OutputPath: filepath.Join(dir, "out.pdf"),
	}
	require.NoError(t, os.WriteFile(sess.SourcePath, []byte("%PDF source"), 0o644))

	extract := func(_ context.Context, _ string, progress func(int)) ([]models.PageText, error) {
		progress(100)
		return []models.PageText{{Page: 1, Content: "embedded text"}}, nil
	}
	idx := &fakeIndexer{count: 2}
	p := NewPipeline(nil, nil, nil, extract, idx, PipelineConfig{}, nil)

	report, seen := collectReports()
	res, err := p.Run(context.Background(), sess, report)
	require.NoError(t, err)

	assert.Equal(t, 1, res.PageCount)
	assert.Equal(t, 2, res.ChunkCount)
	assert.NotEmpty(t, (*seen)[StageExtraction])

	// direct mode delivers the source document unchanged
	data, err := os.ReadFile(sess.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF source", string(data))
}

func TestDirectPipelineNoTextIsFatal(t *testing.T) {
	extract := func(_ context.Context, _ string, _ func(int)) ([]models.PageText, error) {
		return nil, core.ErrNoExtractableText
	}
	p := NewPipeline(nil, nil, nil, extract, &fakeIndexer{}, PipelineConfig{}, nil)

	sess := &models.Session{ID: "s", Mode: models.ModeDirect}
	report, _ := collectReports()
	_, err := p.Run(context.Background(), sess, report)
	assert.ErrorIs(t, err, core.ErrNoExtractableText)
}

func TestPipelineMergeFailureIsFatal(t *testing.T) {
	merger := &fakeMerger{err: errors.New("merge blew up")}
	p := NewPipeline(fakeDecompose(1), &fakeRecognizer{}, merger, nil, &fakeIndexer{}, PipelineConfig{}, nil)

	report, _ := collectReports()
	_, err := p.Run(context.Background(), recognitionSession(t), report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merging")
}
