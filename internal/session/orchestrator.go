package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
)

// runner is the pipeline seam; tests substitute a scripted one.
type runner interface {
	Run(ctx context.Context, sess *models.Session, report reportFunc) (*Result, error)
}

// Orchestrator owns session lifecycle: creation, the single worker per
// session, progress fan-out, and cleanup on expiry or deletion.
type Orchestrator struct {
	store    *Store
	bus      *Bus
	pipeline runner
	vectors  core.VectorStore
	workRoot string
	outRoot  string
	log      *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewOrchestrator(pipeline runner, vectors core.VectorStore, workRoot, outRoot string, ttl time.Duration, log *zap.Logger) *Orchestrator {
	o := &Orchestrator{
		bus:      NewBus(log),
		pipeline: pipeline,
		vectors:  vectors,
		workRoot: workRoot,
		outRoot:  outRoot,
		log:      log,
		cancels:  make(map[string]context.CancelFunc),
	}
	o.store = NewStore(ttl, o.cleanup, log)
	return o
}

// Create registers a session and stages the uploaded document in its
// private workdir. Processing does not start until Start is called.
func (o *Orchestrator) Create(_ context.Context, fileName string, mode models.Mode, src io.Reader) (*models.Session, error) {
	switch mode {
	case models.ModeRecognition, models.ModeDirect:
	default:
		return nil, fmt.Errorf("unknown processing mode %q", mode)
	}

	id := uuid.NewString()
	workDir := filepath.Join(o.workRoot, id)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	srcPath := filepath.Join(workDir, "source.pdf")
	f, err := os.Create(srcPath)
	if err != nil {
		os.RemoveAll(workDir)
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.RemoveAll(workDir)
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.RemoveAll(workDir)
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	now := time.Now().UTC()
	sess := &models.Session{
		ID:         id,
		FileName:   fileName,
		Mode:       mode,
		Status:     models.StatusCreated,
		WorkDir:    workDir,
		SourcePath: srcPath,
		OutputPath: filepath.Join(o.outRoot, id+".pdf"),
		Progress:   make(map[string]int),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	o.store.Put(sess)

	if o.log != nil {
		o.log.Info("session created",
			zap.String("session_id", id),
			zap.String("file", fileName),
			zap.String("mode", string(mode)))
	}
	return o.store.Get(id)
}

// Start launches the session's worker. Calling it twice, or on a finished
// session, returns ErrAlreadyRunning; the first run is never disturbed.
func (o *Orchestrator) Start(id string) error {
	var startErr error
	sess, err := o.store.Update(id, func(s *models.Session) {
		if s.Status != models.StatusCreated {
			startErr = core.ErrAlreadyRunning
			return
		}
		s.Status = models.StatusRunning
	})
	if err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[id] = cancel
	o.mu.Unlock()

	go o.run(ctx, sess)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, sess *models.Session) {
	defer func() {
		o.mu.Lock()
		if cancel, ok := o.cancels[sess.ID]; ok {
			cancel()
			delete(o.cancels, sess.ID)
		}
		o.mu.Unlock()
	}()

	var (
		stageMu   sync.Mutex
		lastStage string
	)
	report := func(stage string, percent int, message string) {
		stageMu.Lock()
		lastStage = stage
		stageMu.Unlock()
		o.store.Update(sess.ID, func(s *models.Session) {
			s.CurrentStage = stage
			if percent > s.Progress[stage] {
				s.Progress[stage] = percent
			}
		})
		o.bus.Publish(models.ProgressEvent{
			SessionID: sess.ID,
			Stage:     stage,
			Percent:   percent,
			Message:   message,
		})
	}

	res, err := o.pipeline.Run(ctx, sess, report)
	if err != nil {
		o.store.Update(sess.ID, func(s *models.Session) {
			s.Status = models.StatusFailed
			s.Error = err.Error()
		})
		stageMu.Lock()
		failedStage := lastStage
		stageMu.Unlock()
		o.bus.Publish(models.ProgressEvent{
			SessionID: sess.ID,
			Stage:     failedStage,
			Terminal:  true,
			Err:       err.Error(),
		})
		o.bus.CloseSession(sess.ID)

		// A failed run may have stored a partial chunk set before dying.
		dropCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if dropErr := o.vectors.Drop(dropCtx, sess.ID); dropErr != nil && o.log != nil {
			o.log.Warn("post-failure chunk cleanup failed",
				zap.String("session_id", sess.ID), zap.Error(dropErr))
		}
		if o.log != nil {
			o.log.Error("session failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
		return
	}

	status := models.StatusCompleted
	if len(res.Warnings) > 0 {
		status = models.StatusCompletedWithWarnings
	}
	o.store.Update(sess.ID, func(s *models.Session) {
		s.Status = status
		s.PageCount = res.PageCount
		s.ChunkCount = res.ChunkCount
		s.Warnings = res.Warnings
	})
	o.bus.Publish(models.ProgressEvent{
		SessionID: sess.ID,
		Stage:     StageIndexing,
		Percent:   100,
		Terminal:  true,
		Message:   string(status),
	})
	o.bus.CloseSession(sess.ID)

	if o.log != nil {
		o.log.Info("session finished",
			zap.String("session_id", sess.ID),
			zap.String("status", string(status)),
			zap.Int("pages", res.PageCount),
			zap.Int("chunks", res.ChunkCount),
			zap.Int("warnings", len(res.Warnings)))
	}
}

// Get returns a snapshot of the session.
func (o *Orchestrator) Get(id string) (*models.Session, error) {
	return o.store.Get(id)
}

// List returns snapshots of every registered session.
func (o *Orchestrator) List() []*models.Session {
	return o.store.List()
}

// Subscribe attaches a progress listener to an existing session. A session
// that already finished gets its terminal event replayed and the channel
// closed, so late subscribers never hang waiting for a bus that has shut.
func (o *Orchestrator) Subscribe(id string) (<-chan models.ProgressEvent, func(), error) {
	sess, err := o.store.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if sess.Status.Terminal() {
		return replayTerminal(sess), func() {}, nil
	}

	ch, cancel := o.bus.Subscribe(id)

	// The worker may have finished between the status check and the
	// subscription; its CloseSession would then never reach this channel.
	again, err := o.store.Get(id)
	if err == nil && !again.Status.Terminal() {
		return ch, cancel, nil
	}
	cancel()
	if err != nil {
		return nil, nil, err
	}
	return replayTerminal(again), func() {}, nil
}

// replayTerminal hands a late subscriber the session's final event on an
// already-closed channel.
func replayTerminal(sess *models.Session) <-chan models.ProgressEvent {
	ch := make(chan models.ProgressEvent, 1)
	ev := models.ProgressEvent{
		SessionID: sess.ID,
		Stage:     sess.CurrentStage,
		Percent:   100,
		Terminal:  true,
		Message:   string(sess.Status),
		Timestamp: time.Now().UTC(),
	}
	if sess.Status == models.StatusFailed {
		ev.Percent = sess.Progress[sess.CurrentStage]
		ev.Err = sess.Error
	}
	ch <- ev
	close(ch)
	return ch
}

// Delete cancels any in-flight work and removes the session and all its
// artifacts immediately.
func (o *Orchestrator) Delete(id string) error {
	o.mu.Lock()
	if cancel, ok := o.cancels[id]; ok {
		cancel()
	}
	o.mu.Unlock()

	o.bus.CloseSession(id)
	return o.store.Delete(id)
}

// cleanup runs on eviction and deletion: workdir, merged output, chunks.
func (o *Orchestrator) cleanup(sess *models.Session) {
	if sess.WorkDir != "" {
		if err := os.RemoveAll(sess.WorkDir); err != nil && o.log != nil {
			o.log.Warn("workdir cleanup failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	if sess.OutputPath != "" {
		if err := os.Remove(sess.OutputPath); err != nil && !os.IsNotExist(err) && o.log != nil {
			o.log.Warn("output cleanup failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.vectors.Drop(ctx, sess.ID); err != nil && o.log != nil {
		o.log.Warn("chunk cleanup failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
}
