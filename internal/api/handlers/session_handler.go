package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/paperlens/paperlens/internal/config"
	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
	"github.com/paperlens/paperlens/internal/session"
)

type SessionHandler struct {
	orc *session.Orchestrator
	cfg *config.Config
	log *zap.Logger
}

func NewSessionHandler(orc *session.Orchestrator, cfg *config.Config, log *zap.Logger) *SessionHandler {
	return &SessionHandler{orc: orc, cfg: cfg, log: log}
}

// UploadDocument accepts a PDF and registers a session for it. Processing
// is a separate call so clients can subscribe to events before it starts.
func (h *SessionHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		http.Error(w, "upload too large or malformed", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	cleanName := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(cleanName), ".pdf") {
		http.Error(w, "only PDF documents are accepted", http.StatusUnsupportedMediaType)
		return
	}

	// cheap magic check before committing a workdir
	var magic [5]byte
	if n, _ := file.Read(magic[:]); n < 5 || string(magic[:]) != "%PDF-" {
		http.Error(w, "file is not a PDF document", http.StatusUnsupportedMediaType)
		return
	}
	if _, err := file.Seek(0, 0); err != nil {
		http.Error(w, "upload not seekable", http.StatusInternalServerError)
		return
	}

	mode := models.Mode(r.FormValue("mode"))
	if mode == "" {
		mode = models.ModeRecognition
	}

	sess, err := h.orc.Create(r.Context(), cleanName, mode, file)
	if err != nil {
		h.log.Error("session create failed", zap.String("file", cleanName), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sess)
}

// StartProcessing launches the session's pipeline.
func (h *SessionHandler) StartProcessing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.orc.Start(id); err != nil {
		writeSessionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"session_id": id, "status": string(models.StatusRunning)})
}

// GetStatus returns the session snapshot with per-stage progress.
func (h *SessionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := h.orc.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess)
}

// Events streams progress events over SSE until the session finishes or
// the client goes away.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ch, cancel, err := h.orc.Subscribe(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				fmt.Fprint(w, "event: done\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			fmt.Fprint(w, "data: ")
			if err := enc.Encode(ev); err != nil {
				return
			}
			fmt.Fprint(w, "\n")
			flusher.Flush()
		}
	}
}

// Download serves the processed document of a finished session.
func (h *SessionHandler) Download(w http.ResponseWriter, r *http.Request) {
	sess, err := h.orc.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	switch sess.Status {
	case models.StatusCompleted, models.StatusCompletedWithWarnings:
	default:
		http.Error(w, fmt.Sprintf("session is %s, nothing to download", sess.Status), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sess.FileName))
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, sess.OutputPath)
}

// DeleteSession removes the session and every artifact it produced.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.orc.Delete(chi.URLParam(r, "id")); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSessions reports every session currently in the registry.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.orc.List())
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
	case errors.Is(err, core.ErrAlreadyRunning):
		http.Error(w, "session already started", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
