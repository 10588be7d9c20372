package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/core/summarizer"
	"github.com/paperlens/paperlens/internal/models"
	"github.com/paperlens/paperlens/internal/session"
)

type QueryHandler struct {
	orc        *session.Orchestrator
	embedder   core.EmbeddingProvider
	store      core.VectorStore
	summarizer *summarizer.Summarizer
	log        *zap.Logger
}

func NewQueryHandler(orc *session.Orchestrator, embedder core.EmbeddingProvider, store core.VectorStore, sum *summarizer.Summarizer, log *zap.Logger) *QueryHandler {
	return &QueryHandler{orc: orc, embedder: embedder, store: store, summarizer: sum, log: log}
}

type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type SearchHit struct {
	ChunkID string  `json:"chunk_id"`
	Page    int     `json:"page"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// Search runs semantic retrieval over a processed session's chunks.
func (h *QueryHandler) Search(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := h.processedSession(w, id)
	if !ok {
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	vecs, err := h.embedder.EmbedTexts(r.Context(), []string{req.Query})
	if err != nil || len(vecs) == 0 {
		h.log.Error("query embedding failed", zap.String("session_id", id), zap.Error(err))
		http.Error(w, "embedding provider unavailable", http.StatusBadGateway)
		return
	}

	scored, err := h.store.Query(r.Context(), sess.ID, vecs[0], req.TopK)
	if err != nil {
		h.log.Error("chunk query failed", zap.String("session_id", id), zap.Error(err))
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	hits := make([]SearchHit, 0, len(scored))
	for _, sc := range scored {
		hits = append(hits, SearchHit{ChunkID: sc.ID, Page: sc.Page, Text: sc.Text, Score: sc.Score})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"session_id": id, "results": hits})
}

type SummarizeRequest struct {
	Focus  string `json:"focus"`
	Prompt string `json:"prompt"`
}

// Summarize produces a document summary for a processed session. Focus
// narrows the input to matching chunks; prompt overrides the default
// editorial instruction.
func (h *QueryHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := h.processedSession(w, id)
	if !ok {
		return
	}

	var req SummarizeRequest
	if r.Body != nil {
		// an empty body means a plain whole-document summary
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	res, err := h.summarizer.Summarize(r.Context(), sess.ID, req.Focus, req.Prompt)
	if err != nil {
		h.log.Error("summarization failed", zap.String("session_id", id), zap.Error(err))
		switch {
		case errors.Is(err, core.ErrNoExtractableText):
			http.Error(w, "session has no indexed content", http.StatusConflict)
		case errors.Is(err, core.ErrRateLimited):
			http.Error(w, "summary models are overloaded, try again later", http.StatusServiceUnavailable)
		default:
			http.Error(w, "summarization failed", http.StatusBadGateway)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// processedSession loads the session and rejects requests against sessions
// that have not finished indexing.
func (h *QueryHandler) processedSession(w http.ResponseWriter, id string) (*models.Session, bool) {
	sess, err := h.orc.Get(id)
	if err != nil {
		writeSessionError(w, err)
		return nil, false
	}
	switch sess.Status {
	case models.StatusCompleted, models.StatusCompletedWithWarnings:
		return sess, true
	default:
		http.Error(w, "session has not finished processing", http.StatusConflict)
		return nil, false
	}
}
