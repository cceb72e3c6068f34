// Package content produces the storage-format body that is published above
// the diagram.
package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"archpub/internal/config"
	"archpub/internal/llm"
	"archpub/internal/metrics"
	"archpub/internal/storage"
	"archpub/internal/tracing"
	"archpub/pkg/logger"
)

// ErrEmptyCompletion is returned when a model answers with only whitespace.
var ErrEmptyCompletion = errors.New("generator returned an empty body")

// Generator produces a page body.
type Generator interface {
	Generate(ctx context.Context) (string, error)
	Name() string
}

// Static returns a fixed body.
type Static struct {
	Body   string
	Format string
}

func (s Static) Name() string { return config.GeneratorStatic }

func (s Static) Generate(ctx context.Context) (string, error) {
	body := s.Body
	if body == "" {
		body = config.DefaultStaticBody
	}
	metrics.GenerationsTotal.WithLabelValues(s.Name(), metrics.Status(nil)).Inc()
	return render(body, s.Format), nil
}

// Generated asks a chat model for the body using prompts read from disk.
type Generated struct {
	name        string
	client      llm.ChatClient
	promptPaths []string
	format      string
	logger      *logger.Logger
}

func NewGenerated(name string, client llm.ChatClient, promptPaths []string, format string, log *logger.Logger) *Generated {
	return &Generated{
		name:        name,
		client:      client,
		promptPaths: promptPaths,
		format:      format,
		logger:      log,
	}
}

func (g *Generated) Name() string { return g.name }

func (g *Generated) Generate(ctx context.Context) (body string, err error) {
	ctx, span := tracing.StartSpan(ctx, "content.generate")
	span.SetAttributes(
		attribute.String("generator", g.name),
		attribute.String("model", g.client.Model()),
	)
	started := time.Now()
	defer func() {
		metrics.GenerationsTotal.WithLabelValues(g.name, metrics.Status(err)).Inc()
		metrics.GenerationDuration.WithLabelValues(g.name).Observe(time.Since(started).Seconds())
		tracing.RecordError(span, err)
		span.End()
	}()

	prompt, err := LoadPrompt(g.promptPaths...)
	if err != nil {
		return "", err
	}

	if g.logger != nil {
		g.logger.Debug("Requesting %s completion (model %s, prompt %d bytes)", g.name, g.client.Model(), len(prompt))
	}

	out, err := g.client.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", g.name, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyCompletion
	}

	return render(out, g.format), nil
}

// LoadPrompt reads each file, trims it and joins the parts with a newline.
func LoadPrompt(paths ...string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("no prompt files configured")
	}

	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file %s: %w", p, err)
		}
		parts = append(parts, strings.TrimSpace(string(data)))
	}
	return strings.Join(parts, "\n"), nil
}

func render(body, format string) string {
	if format == config.FormatMarkdown {
		return storage.FromMarkdown(body)
	}
	return body
}

// New builds the generator selected by cfg.Content.Generator.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (Generator, error) {
	switch cfg.Content.Generator {
	case config.GeneratorStatic, "":
		return Static{Body: cfg.Content.Static, Format: cfg.Content.Format}, nil
	case config.GeneratorOpenAI:
		client := llm.NewOpenAIClient(cfg.OpenAI)
		return NewGenerated(config.GeneratorOpenAI, client, cfg.PromptPaths(), cfg.Content.Format, log), nil
	case config.GeneratorGemini:
		client, err := llm.NewGeminiClient(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		return NewGenerated(config.GeneratorGemini, client, cfg.PromptPaths(), cfg.Content.Format, log), nil
	default:
		return nil, fmt.Errorf("unknown content generator %q", cfg.Content.Generator)
	}
}
