package diagram

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"archpub/internal/config"
	"archpub/internal/images"
	"archpub/internal/metrics"
	"archpub/internal/tracing"
	"archpub/pkg/logger"
)

const puppeteerConfig = `{"args": ["--no-sandbox", "--disable-setuid-sandbox"]}`

// Renderer turns a Topology into an image file using the Mermaid CLI.
type Renderer struct {
	config *config.DiagramConfig
	images *images.Processor
	logger *logger.Logger
}

func NewRenderer(cfg *config.DiagramConfig, imgs *images.Processor, log *logger.Logger) *Renderer {
	return &Renderer{
		config: cfg,
		images: imgs,
		logger: log,
	}
}

// CheckDependencies validates that the Mermaid CLI is available
func (r *Renderer) CheckDependencies() error {
	if _, err := exec.LookPath(r.config.CLIPath); err != nil {
		return fmt.Errorf("mermaid CLI '%s' not found in PATH", r.config.CLIPath)
	}
	return nil
}

// Render writes topo to outPath and returns the verified image metadata.
func (r *Renderer) Render(ctx context.Context, topo *Topology, outPath string) (info *images.Info, err error) {
	ctx, span := tracing.StartSpan(ctx, "diagram.render")
	span.SetAttributes(
		attribute.String("diagram.output", outPath),
		attribute.Int("diagram.nodes", topo.NodeCount()),
		attribute.Int("diagram.edges", len(topo.Edges)),
	)
	defer func() {
		metrics.DiagramRenders.WithLabelValues(metrics.Status(err)).Inc()
		tracing.RecordError(span, err)
		span.End()
	}()

	if err := topo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}

	source := topo.Mermaid()
	if err := ValidateContent(source); err != nil {
		return nil, err
	}

	if err := r.CheckDependencies(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	inputFile, err := writeTemp("archpub-diagram-*.mmd", source)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp input file: %w", err)
	}
	defer os.Remove(inputFile)

	configFile, err := writeTemp("archpub-puppeteer-*.json", puppeteerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create puppeteer config: %w", err)
	}
	defer os.Remove(configFile)

	if err := r.execute(ctx, r.buildArgs(inputFile, outPath, configFile)); err != nil {
		return nil, err
	}

	info, err = r.images.Inspect(outPath)
	if err != nil {
		return nil, fmt.Errorf("rendered diagram is not a valid image: %w", err)
	}

	if r.logger != nil {
		r.logger.Debug("Rendered %s (%dx%d, %d bytes)", outPath, info.Width, info.Height, info.Size)
	}
	return info, nil
}

func (r *Renderer) buildArgs(inputFile, outputFile, configFile string) []string {
	args := []string{
		"-i", inputFile,
		"-o", outputFile,
		"-p", configFile,
	}

	if r.config.Theme != "" && r.config.Theme != "default" {
		args = append(args, "-t", r.config.Theme)
	}
	if r.config.Background != "" {
		args = append(args, "-b", r.config.Background)
	}
	if r.config.Width > 0 {
		args = append(args, "-w", strconv.Itoa(r.config.Width))
	}
	if r.config.Height > 0 {
		args = append(args, "-H", strconv.Itoa(r.config.Height))
	}
	if r.config.Scale > 0 {
		args = append(args, "-s", fmt.Sprintf("%.1f", r.config.Scale))
	}
	return args
}

func (r *Renderer) execute(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, r.config.CLIPath, args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if r.logger != nil {
		r.logger.Debug("Executing mermaid CLI: %s %s", r.config.CLIPath, strings.Join(args, " "))
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mermaid CLI failed: %w\nStdout: %s\nStderr: %s", err, stdout.String(), stderr.String())
	}
	return nil
}

func writeTemp(pattern, content string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// ValidateContent performs basic validation on mermaid diagram content
func ValidateContent(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("mermaid diagram content cannot be empty")
	}

	// Skip a leading frontmatter block
	if strings.HasPrefix(content, "---") {
		rest := strings.TrimPrefix(content, "---")
		if end := strings.Index(rest, "\n---"); end >= 0 {
			content = strings.TrimSpace(rest[end+len("\n---"):])
		}
	}

	validStarters := []string{
		"graph",
		"flowchart",
		"sequenceDiagram",
		"classDiagram",
		"stateDiagram",
		"erDiagram",
		"C4Context",
		"C4Container",
		"architecture-beta",
	}

	lower := strings.ToLower(content)
	for _, starter := range validStarters {
		if strings.HasPrefix(lower, strings.ToLower(starter)) {
			return nil
		}
	}

	// Allow directives and comments
	if strings.HasPrefix(content, "%%") {
		return nil
	}

	return fmt.Errorf("content does not appear to be a valid mermaid diagram")
}
