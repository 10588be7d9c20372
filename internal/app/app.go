package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/paperlens/paperlens/internal/api/handlers"
	"github.com/paperlens/paperlens/internal/config"
	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/core/indexer"
	"github.com/paperlens/paperlens/internal/core/llm"
	"github.com/paperlens/paperlens/internal/core/ocr"
	"github.com/paperlens/paperlens/internal/core/pdf"
	"github.com/paperlens/paperlens/internal/core/summarizer"
	"github.com/paperlens/paperlens/internal/core/vectorstore"
	"github.com/paperlens/paperlens/internal/session"
)

type App struct {
	Orchestrator *session.Orchestrator
	Server       *Server

	log      *zap.Logger
	embedder *llm.GeminiEmbedder
	llm      *llm.GeminiLLM
	pgStore  *vectorstore.PostgresStore
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	for _, dir := range []string{cfg.WorkFolder, cfg.ProcessedFolder} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	app := &App{log: log}

	// Postgres/pgvector when configured, in-memory otherwise.
	var vectors core.VectorStore
	if cfg.DatabaseURL != "" {
		pg, err := vectorstore.NewPostgresStore(appCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("vector store: %w", err)
		}
		app.pgStore = pg
		vectors = pg
		log.Info("pgvector store initialized")
	} else {
		vectors = vectorstore.NewMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory vector store")
	}

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	app.embedder = embedder

	completions, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the completion provider: %w", err)
	}
	app.llm = completions

	recognizer := ocr.NewRecognizer(&pdf.FitzRenderer{}, ocr.TesseractOCR{}, ocr.Config{
		DPI:          float64(cfg.OCRDPI),
		MaxDimension: cfg.OCRMaxDimension,
		JPEGQuality:  cfg.OCRJPEGQuality,
		Timeout:      cfg.OCRTimeout,
		Options: core.OCROptions{
			Language:    cfg.TesseractLang,
			EngineMode:  cfg.TesseractOEM,
			PageSegMode: cfg.TesseractPSM,
		},
	})

	idx := indexer.New(embedder, vectors, indexer.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.VectorBatchSize,
		Retries:      cfg.EmbedRetries,
		BatchTimeout: cfg.EmbedTimeout,
	}, log)

	pipeline := session.NewPipeline(
		pdf.Decompose,
		recognizer,
		pdf.NewReconstructor(cfg.MergeBatchSize),
		pdf.Extract,
		idx,
		session.PipelineConfig{
			OCRBatchSize: cfg.OCRBatchSize,
			OCRAttempts:  cfg.OCRAttempts,
			ReclaimEvery: cfg.ReclaimEvery,
		},
		log,
	)

	orc := session.NewOrchestrator(pipeline, vectors, cfg.WorkFolder, cfg.ProcessedFolder, cfg.SessionTTL, log)
	app.Orchestrator = orc

	sum := summarizer.New(embedder, completions, vectors, summarizer.Config{
		Tiers:     cfg.SummaryTiers,
		TopK:      cfg.SummaryTopK,
		GroupSize: cfg.SummaryGroupSize,
		Timeout:   cfg.SummaryTimeout,
	}, log)

	sessionHandler := handlers.NewSessionHandler(orc, cfg, log)
	queryHandler := handlers.NewQueryHandler(orc, embedder, vectors, sum, log)
	app.Server = NewServer(cfg, sessionHandler, queryHandler, log)

	return app, nil
}

func (a *App) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.pgStore != nil {
		_ = a.pgStore.Close()
	}
}
