// Package generate wraps the text-generation service used by SUMMARY.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jun/drivechat/internal/apperr"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	DefaultModel   = "gemini-2.5-flash"
	DefaultTimeout = 60 * time.Second
)

var (
	// ErrEmpty is returned when the service answers without any text.
	ErrEmpty = errors.New("generation returned no text")

	// ErrNotConfigured is returned by Unconfigured.
	ErrNotConfigured = errors.New("text generation is not configured")
)

// Generator produces text from an instruction and the content it applies to.
type Generator interface {
	Generate(ctx context.Context, instruction, content string) (string, error)
}

// contentModel is the part of *genai.Models used here.
type contentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIClient implements Generator with the Gemini API.
type GenAIClient struct {
	models  contentModel
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// NewGenAIClient creates a client for apiKey. Empty model and zero
// timeout take the defaults.
func NewGenAIClient(ctx context.Context, apiKey, model string, timeout time.Duration, log *zap.Logger) (*GenAIClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGenAIClient(client.Models, model, timeout, log), nil
}

func newGenAIClient(models contentModel, model string, timeout time.Duration, log *zap.Logger) *GenAIClient {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GenAIClient{models: models, model: model, timeout: timeout, log: log}
}

// Generate makes exactly one call. Any failure, including a timeout, is a
// GenerationFailed error.
func (c *GenAIClient) Generate(ctx context.Context, instruction, content string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := instruction + "\n\n--- Content ---\n" + content
	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		c.log.Warn("generation failed", zap.String("model", c.model), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", apperr.New(apperr.KindGenerationFailed, "generate", "", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", apperr.New(apperr.KindGenerationFailed, "generate", "", ErrEmpty)
	}
	c.log.Info("generated text", zap.String("model", c.model), zap.Int("prompt_chars", len(prompt)), zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// Unconfigured fails every call. It stands in when no API key is set.
type Unconfigured struct{}

func (Unconfigured) Generate(ctx context.Context, instruction, content string) (string, error) {
	return "", apperr.New(apperr.KindGenerationFailed, "generate", "", ErrNotConfigured)
}
