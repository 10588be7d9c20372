package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/paperlens/paperlens/internal/core"
)

type GeminiLLM struct {
	client *genai.Client
}

func NewGeminiLLM(ctx context.Context, apiKey string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiLLM{client: cl}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Complete runs a single generation against the named model. The model is
// chosen per call so tier fallback can walk the chain on one client.
func (g *GeminiLLM) Complete(ctx context.Context, model, systemPrompt, userPrompt string, maxTokens int, temperature float32) (string, error) {
	m := g.client.GenerativeModel(model)
	m.SetTemperature(temperature)
	if maxTokens > 0 {
		m.SetMaxOutputTokens(int32(maxTokens))
	}
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", classify(err))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

// classify maps API errors onto the sentinels the fallback logic keys on.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", core.ErrRateLimited, err)
		case http.StatusBadRequest:
			if strings.Contains(strings.ToLower(apiErr.Message), "token") {
				return fmt.Errorf("%w: %v", core.ErrContextTooLarge, err)
			}
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "quota") {
		return fmt.Errorf("%w: %v", core.ErrRateLimited, err)
	}
	if strings.Contains(msg, "exceeds the maximum number of tokens") || strings.Contains(msg, "context length") {
		return fmt.Errorf("%w: %v", core.ErrContextTooLarge, err)
	}
	return err
}

var _ core.CompletionProvider = (*GeminiLLM)(nil)
