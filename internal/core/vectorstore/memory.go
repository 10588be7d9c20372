package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
)

// MemoryStore is a brute-force cosine-similarity store keyed by session.
// It backs single-node deployments that run without Postgres, and the tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]models.Chunk
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]models.Chunk)}
}

func (s *MemoryStore) Replace(_ context.Context, sessionID string, chunks []models.Chunk) error {
	cp := make([]models.Chunk, len(chunks))
	copy(cp, chunks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = cp
	return nil
}

func (s *MemoryStore) Query(_ context.Context, sessionID string, vector []float32, topK int) ([]models.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 {
		topK = 5
	}
	chunks := s.sessions[sessionID]

	scored := make([]models.ScoredChunk, 0, len(chunks))
	for _, ch := range chunks {
		scored = append(scored, models.ScoredChunk{Chunk: ch, Score: cosine(ch.Embedding, vector)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

func (s *MemoryStore) All(_ context.Context, sessionID string) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.sessions[sessionID]
	out := make([]models.Chunk, len(chunks))
	copy(out, chunks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID]), nil
}

func (s *MemoryStore) Drop(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ core.VectorStore = (*MemoryStore)(nil)
