package summarizer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperlens/paperlens/internal/config"
	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/core/vectorstore"
	"github.com/paperlens/paperlens/internal/models"
)

type llmCall struct {
	model       string
	system      string
	user        string
	maxTokens   int
	temperature float32
}

type fakeLLM struct {
	calls []llmCall
	// failModels return an error every time they are asked
	failModels map[string]error
}

func (f *fakeLLM) Complete(_ context.Context, model, systemPrompt, userPrompt string, maxTokens int, temperature float32) (string, error) {
	f.calls = append(f.calls, llmCall{model, systemPrompt, userPrompt, maxTokens, temperature})
	if err, ok := f.failModels[model]; ok {
		return "", err
	}
	return fmt.Sprintf("summary-by-%s", model), nil
}

type fixedEmbedder struct{ vec []float32 }

func (f fixedEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func testTiers() []config.ModelTier {
	return []config.ModelTier{
		{Model: "primary", MaxTokens: 2000, ContextTokens: 128000},
		{Model: "secondary", MaxTokens: 1500, ContextTokens: 32768},
		{Model: "tertiary", MaxTokens: 1000, ContextTokens: 16384},
	}
}

func seedStore(t *testing.T, n int) *vectorstore.MemoryStore {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:        fmt.Sprintf("s-%d", i),
			SessionID: "s",
			Sequence:  i,
			Page:      i + 1,
			Text:      fmt.Sprintf("chunk %d content", i),
			Embedding: []float32{float32(i), 1},
		}
	}
	require.NoError(t, store.Replace(context.Background(), "s", chunks))
	return store
}

func TestSummarizeSmallDocumentSingleCall(t *testing.T) {
	llm := &fakeLLM{}
	s := New(fixedEmbedder{}, llm, seedStore(t, 2), Config{Tiers: testTiers()}, nil)

	res, err := s.Summarize(context.Background(), "s", "", "")
	require.NoError(t, err)

	assert.Equal(t, "summary-by-primary", res.Summary)
	assert.Equal(t, "primary", res.ModelTier)
	assert.Equal(t, 2, res.ChunkCount)
	assert.Zero(t, res.IntermediateCalls)
	require.Len(t, llm.calls, 1)
	assert.Contains(t, llm.calls[0].user, "chunk 0 content")
	assert.Contains(t, llm.calls[0].user, "chunk 1 content")
}

func TestSummarizeLargeDocumentMapReduce(t *testing.T) {
	llm := &fakeLLM{}
	s := New(fixedEmbedder{}, llm, seedStore(t, 7), Config{Tiers: testTiers(), GroupSize: 3}, nil)

	res, err := s.Summarize(context.Background(), "s", "", "")
	require.NoError(t, err)

	// 7 chunks -> groups of 3,3,1 -> 3 intermediate summaries -> final call
	assert.Equal(t, 3, res.IntermediateCalls)
	assert.Equal(t, 7, res.ChunkCount)
	require.Len(t, llm.calls, 4)
	final := llm.calls[3]
	assert.Contains(t, final.user, "summary-by-primary")
	assert.NotContains(t, final.user, "chunk 0 content")
}

func TestSummarizeGroupSizeOfOneIsNormalized(t *testing.T) {
	llm := &fakeLLM{}
	s := New(fixedEmbedder{}, llm, seedStore(t, 7), Config{Tiers: testTiers(), GroupSize: 1}, nil)

	// groups of one never shrink the working set, so the size falls back
	// to the default and the reduce terminates
	res, err := s.Summarize(context.Background(), "s", "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.IntermediateCalls)
	require.Len(t, llm.calls, 4)
}

func TestSummarizeEveryCallIsDeterministic(t *testing.T) {
	llm := &fakeLLM{}
	s := New(fixedEmbedder{}, llm, seedStore(t, 7), Config{Tiers: testTiers(), GroupSize: 3}, nil)

	_, err := s.Summarize(context.Background(), "s", "", "")
	require.NoError(t, err)
	for _, call := range llm.calls {
		assert.Zero(t, call.temperature)
	}
}

func TestSummarizeTierFallback(t *testing.T) {
	llm := &fakeLLM{failModels: map[string]error{"primary": core.ErrContextTooLarge}}
	s := New(fixedEmbedder{}, llm, seedStore(t, 2), Config{Tiers: testTiers()}, nil)

	res, err := s.Summarize(context.Background(), "s", "", "")
	require.NoError(t, err)
	assert.Equal(t, "secondary", res.ModelTier)
	assert.Equal(t, "summary-by-secondary", res.Summary)
	require.Len(t, llm.calls, 2)
}

func TestSummarizeAllTiersFail(t *testing.T) {
	llm := &fakeLLM{failModels: map[string]error{
		"primary":   core.ErrRateLimited,
		"secondary": core.ErrContextTooLarge,
		"tertiary":  core.ErrRateLimited,
	}}
	s := New(fixedEmbedder{}, llm, seedStore(t, 2), Config{Tiers: testTiers()}, nil)

	_, err := s.Summarize(context.Background(), "s", "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRateLimited)
	assert.ErrorIs(t, err, core.ErrContextTooLarge)
}

func TestSummarizeFocusNarrowsRetrieval(t *testing.T) {
	llm := &fakeLLM{}
	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.Replace(context.Background(), "s", []models.Chunk{
		{ID: "s-0", Sequence: 0, Text: "about cats", Embedding: []float32{1, 0}},
		{ID: "s-1", Sequence: 1, Text: "about dogs", Embedding: []float32{0, 1}},
	}))
	s := New(fixedEmbedder{vec: []float32{1, 0}}, llm, store, Config{Tiers: testTiers(), TopK: 1}, nil)

	res, err := s.Summarize(context.Background(), "s", "feline behavior", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunkCount)
	require.Len(t, llm.calls, 1)
	assert.Contains(t, llm.calls[0].user, "about cats")
	assert.NotContains(t, llm.calls[0].user, "about dogs")
}

func TestSummarizeCustomPromptReplacesDefault(t *testing.T) {
	llm := &fakeLLM{}
	s := New(fixedEmbedder{}, llm, seedStore(t, 1), Config{Tiers: testTiers()}, nil)

	_, err := s.Summarize(context.Background(), "s", "", "Write in bullet points.")
	require.NoError(t, err)
	require.Len(t, llm.calls, 1)
	assert.Equal(t, "Write in bullet points.", llm.calls[0].system)
}

func TestSummarizeEmptyIndexFails(t *testing.T) {
	s := New(fixedEmbedder{}, &fakeLLM{}, vectorstore.NewMemoryStore(), Config{Tiers: testTiers()}, nil)
	_, err := s.Summarize(context.Background(), "missing", "", "")
	assert.ErrorIs(t, err, core.ErrNoExtractableText)
}

func TestTruncateToTokens(t *testing.T) {
	long := strings.Repeat("abcd", 3000) // 12000 chars = 3000 tokens
	assert.Equal(t, long, truncateToTokens(long, 3000))

	cut := truncateToTokens(long, 100)
	assert.Equal(t, 400, len([]rune(cut)))
	assert.LessOrEqual(t, approxTokens(cut), 100)
}

func TestContentBudgetFloor(t *testing.T) {
	assert.Equal(t, 1024, contentBudget(config.ModelTier{MaxTokens: 1000, ContextTokens: 1500}))
	assert.Equal(t, 125000, contentBudget(config.ModelTier{MaxTokens: 2000, ContextTokens: 128000}))
}
