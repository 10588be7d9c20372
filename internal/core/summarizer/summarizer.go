package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paperlens/paperlens/internal/config"
	"github.com/paperlens/paperlens/internal/core"
	"github.com/paperlens/paperlens/internal/models"
)

const defaultSystemPrompt = `You are an experienced editor preparing a briefing on a document.
Write a clear, faithful summary of the provided material. Preserve the
document's structure where it helps, keep concrete facts and figures, and
do not invent content that is not present in the text.`

const reducePrompt = `You are condensing part of a larger document.
Summarize the following section faithfully and concisely. Keep names,
numbers, and conclusions; drop repetition and boilerplate.`

// Config controls retrieval width and the reduce fan-in.
type Config struct {
	Tiers     []config.ModelTier
	TopK      int
	GroupSize int
	Timeout   time.Duration
}

// Summarizer produces document summaries over a session's indexed chunks.
// Large documents are reduced hierarchically; every model call walks the
// tier chain so a rate-limited or overloaded primary degrades instead of
// failing the request.
type Summarizer struct {
	embedder core.EmbeddingProvider
	llm      core.CompletionProvider
	store    core.VectorStore
	cfg      Config
	log      *zap.Logger
}

func New(embedder core.EmbeddingProvider, llm core.CompletionProvider, store core.VectorStore, cfg Config, log *zap.Logger) *Summarizer {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	// a group size under 2 would never shrink the working set
	if cfg.GroupSize < 2 {
		cfg.GroupSize = 3
	}
	return &Summarizer{embedder: embedder, llm: llm, store: store, cfg: cfg, log: log}
}

// Summarize builds a summary for the session. A non-empty focus narrows the
// input to the chunks most similar to it; otherwise the whole document is
// summarized in reading order. A non-empty prompt replaces the default
// editorial instruction for the final call.
func (s *Summarizer) Summarize(ctx context.Context, sessionID, focus, prompt string) (*models.SummaryResult, error) {
	if len(s.cfg.Tiers) == 0 {
		return nil, errors.New("no summary models configured")
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	texts, err := s.retrieve(ctx, sessionID, focus)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("session %s has no indexed content: %w", sessionID, core.ErrNoExtractableText)
	}
	chunkCount := len(texts)

	systemPrompt := defaultSystemPrompt
	if prompt != "" {
		systemPrompt = prompt
	}

	// Reduce rounds shrink the working set until one final call can hold it.
	intermediate := 0
	for len(texts) > s.cfg.GroupSize {
		reduced := make([]string, 0, (len(texts)+s.cfg.GroupSize-1)/s.cfg.GroupSize)
		for start := 0; start < len(texts); start += s.cfg.GroupSize {
			end := start + s.cfg.GroupSize
			if end > len(texts) {
				end = len(texts)
			}
			part, _, err := s.completeTiers(ctx, reducePrompt, strings.Join(texts[start:end], "\n\n"))
			if err != nil {
				return nil, fmt.Errorf("reduce round: %w", err)
			}
			intermediate++
			reduced = append(reduced, part)
		}
		texts = reduced
	}

	summary, tier, err := s.completeTiers(ctx, systemPrompt, strings.Join(texts, "\n\n"))
	if err != nil {
		return nil, err
	}

	return &models.SummaryResult{
		Summary:           summary,
		ModelTier:         tier,
		ChunkCount:        chunkCount,
		IntermediateCalls: intermediate,
	}, nil
}

func (s *Summarizer) retrieve(ctx context.Context, sessionID, focus string) ([]string, error) {
	if focus == "" {
		chunks, err := s.store.All(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("load chunks: %w", err)
		}
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
		}
		return texts, nil
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{focus})
	if err != nil {
		return nil, fmt.Errorf("embed focus: %w", err)
	}
	if len(vecs) == 0 {
		return nil, errors.New("embed focus: empty response")
	}
	scored, err := s.store.Query(ctx, sessionID, vecs[0], s.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	texts := make([]string, len(scored))
	for i, sc := range scored {
		texts[i] = sc.Text
	}
	return texts, nil
}

// completeTiers tries each configured tier in order and returns the first
// success along with the model that produced it. Content is truncated to
// each tier's window before the attempt, so a smaller fallback model still
// gets a well-formed prompt.
func (s *Summarizer) completeTiers(ctx context.Context, systemPrompt, content string) (string, string, error) {
	var errs []error
	for _, tier := range s.cfg.Tiers {
		truncated := truncateToTokens(content, contentBudget(tier))
		out, err := s.llm.Complete(ctx, tier.Model, systemPrompt, truncated, tier.MaxTokens, 0)
		if err != nil {
			if s.log != nil {
				s.log.Warn("summary model failed, trying next tier",
					zap.String("model", tier.Model),
					zap.Error(err))
			}
			errs = append(errs, fmt.Errorf("%s: %w", tier.Model, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return out, tier.Model, nil
	}
	return "", "", fmt.Errorf("all summary models failed: %w", errors.Join(errs...))
}

// contentBudget leaves room for the instruction scaffolding and the reply.
func contentBudget(tier config.ModelTier) int {
	budget := tier.ContextTokens - tier.MaxTokens - 1000
	if budget < 1024 {
		budget = 1024
	}
	return budget
}

// approxTokens estimates tokens at ~4 chars per token.
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// truncateToTokens cuts s so its estimate fits the budget. The estimator is
// linear in rune count, so the largest fitting prefix is budget*4 runes.
func truncateToTokens(s string, budget int) string {
	if approxTokens(s) <= budget {
		return s
	}
	runes := []rune(s)
	return string(runes[:budget*4])
}
