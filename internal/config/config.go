package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath        = "config.yaml"
	DefaultTitle       = "Automated Confluence Page"
	DefaultDiagramPath = "images/architecture_diagram.png"
	DefaultStaticBody  = "<p>This is a sample Confluence page created using Go.</p>\n<p>Below is an image:</p>"

	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o"
	DefaultGeminiModel   = "gemini-2.0-flash"

	GeneratorStatic = "static"
	GeneratorOpenAI = "openai"
	GeneratorGemini = "gemini"

	FormatStorage  = "storage"
	FormatMarkdown = "markdown"

	EmbedAppend       = "append"
	EmbedSkipExisting = "skip-existing"
)

type Config struct {
	Confluence ConfluenceConfig `yaml:"confluence"`
	Page       PageConfig       `yaml:"page"`
	Content    ContentConfig    `yaml:"content"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Publish    PublishConfig    `yaml:"publish"`
	Diagram    DiagramConfig    `yaml:"diagram"`
	Images     ImageConfig      `yaml:"images"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// baseDir anchors relative paths (prompt files) to the config file location.
	baseDir string
}

type ConfluenceConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	APIToken string `yaml:"api_token"`
	SpaceKey string `yaml:"space_key"`
}

type PageConfig struct {
	Title string `yaml:"title"`
}

type ContentConfig struct {
	Generator   string   `yaml:"generator"`
	Format      string   `yaml:"format"`
	Static      string   `yaml:"static,omitempty"`
	PromptFiles []string `yaml:"prompt_files,omitempty"`
}

type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key,omitempty"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model"`
}

type PublishConfig struct {
	SettleTimeout time.Duration `yaml:"settle_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	EmbedPolicy   string        `yaml:"embed_policy"`
}

type DiagramConfig struct {
	Output     string  `yaml:"output"`
	CLIPath    string  `yaml:"cli_path"`
	Theme      string  `yaml:"theme"`
	Background string  `yaml:"background"`
	Width      int     `yaml:"width,omitempty"`
	Height     int     `yaml:"height,omitempty"`
	Scale      float64 `yaml:"scale,omitempty"`
}

type ImageConfig struct {
	MaxFileSize      int64    `yaml:"max_file_size"`
	SupportedFormats []string `yaml:"supported_formats"`
}

type TelemetryConfig struct {
	MetricsFile    string  `yaml:"metrics_file,omitempty"`
	TracingEnabled bool    `yaml:"tracing_enabled"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint,omitempty"`
	SampleRate     float64 `yaml:"sample_rate,omitempty"`
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Read parses the config file if present, applies environment overrides and
// fills defaults. No validation is performed.
func Read(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		config.baseDir = filepath.Dir(path)
	case errors.Is(err, os.ErrNotExist):
		// Environment-only operation.
		config.baseDir = "."
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.applyEnv()
	config.setDefaults()

	return &config, nil
}

// ReadRaw parses only what is in the file: no environment overrides and no
// defaults. A missing file yields an empty config.
func ReadRaw(path string) (*Config, error) {
	var config Config
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		config.baseDir = filepath.Dir(path)
		return &config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.baseDir = filepath.Dir(path)
	return &config, nil
}

// LoadForPublish validates Confluence settings plus whatever the selected
// content generator needs.
func LoadForPublish(path, generator string) (*Config, error) {
	config, err := Read(path)
	if err != nil {
		return nil, err
	}
	if generator != "" {
		config.Content.Generator = generator
	}
	if err := config.validateForPublish(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// LoadForPages validates connection settings only, for read-only commands
// that take the space from a flag.
func LoadForPages(path string) (*Config, error) {
	config, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := config.validateConfluence(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// LoadForDiagram needs no Confluence credentials.
func LoadForDiagram(path string) (*Config, error) {
	config, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := config.validateDiagram(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// ResolvePath resolves p against the directory of the loaded config file.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	base := c.baseDir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, p)
}

// PromptPaths returns the configured prompt files resolved against the
// config directory.
func (c *Config) PromptPaths() []string {
	paths := make([]string, 0, len(c.Content.PromptFiles))
	for _, p := range c.Content.PromptFiles {
		paths = append(paths, c.ResolvePath(p))
	}
	return paths
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"CONFLUENCE_URL", &c.Confluence.BaseURL},
		{"CONFLUENCE_USERNAME", &c.Confluence.Username},
		{"CONFLUENCE_API_TOKEN", &c.Confluence.APIToken},
		{"CONFLUENCE_SPACE_KEY", &c.Confluence.SpaceKey},
		{"OPENAI_API_KEY", &c.OpenAI.APIKey},
		{"GEMINI_API_KEY", &c.Gemini.APIKey},
		{"ARCHPUB_METRICS_FILE", &c.Telemetry.MetricsFile},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}

	if os.Getenv("OTEL_ENABLED") == "true" || c.Telemetry.OTLPEndpoint != "" {
		c.Telemetry.TracingEnabled = true
	}
}

func (c *Config) setDefaults() {
	c.Confluence.BaseURL = strings.TrimRight(c.Confluence.BaseURL, "/")

	if c.Page.Title == "" {
		c.Page.Title = DefaultTitle
	}

	if c.Content.Generator == "" {
		c.Content.Generator = GeneratorStatic
	}
	if c.Content.Format == "" {
		c.Content.Format = FormatStorage
	}
	if c.Content.Static == "" {
		c.Content.Static = DefaultStaticBody
	}
	if len(c.Content.PromptFiles) == 0 {
		c.Content.PromptFiles = []string{"prompts/instructions.txt", "prompts/context.txt"}
	}

	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = DefaultOpenAIBaseURL
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = DefaultOpenAIModel
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = DefaultGeminiModel
	}

	if c.Publish.SettleTimeout == 0 {
		c.Publish.SettleTimeout = 30 * time.Second
	}
	if c.Publish.PollInterval == 0 {
		c.Publish.PollInterval = time.Second
	}
	if c.Publish.EmbedPolicy == "" {
		c.Publish.EmbedPolicy = EmbedAppend
	}

	if c.Diagram.Output == "" {
		c.Diagram.Output = DefaultDiagramPath
	}
	if c.Diagram.CLIPath == "" {
		c.Diagram.CLIPath = "mmdc"
	}
	if c.Diagram.Theme == "" {
		c.Diagram.Theme = "default"
	}
	if c.Diagram.Background == "" {
		c.Diagram.Background = "white"
	}
	if c.Diagram.Scale == 0 {
		c.Diagram.Scale = 2
	}

	if c.Images.MaxFileSize == 0 {
		c.Images.MaxFileSize = 25 * 1024 * 1024
	}
	if len(c.Images.SupportedFormats) == 0 {
		c.Images.SupportedFormats = []string{"png", "jpg", "jpeg", "gif", "bmp", "tiff", "webp"}
	}

	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 1.0
	}
}

// validateConfluence checks connection settings only (space may come from a flag).
func (c *Config) validateConfluence() error {
	if c.Confluence.BaseURL == "" {
		return fmt.Errorf("confluence.base_url is required")
	}
	if c.Confluence.Username == "" {
		return fmt.Errorf("confluence.username is required")
	}
	if c.Confluence.APIToken == "" {
		return fmt.Errorf("confluence.api_token is required")
	}
	return nil
}

func (c *Config) validateForPublish() error {
	if err := c.validateConfluence(); err != nil {
		return err
	}

	switch c.Content.Generator {
	case GeneratorStatic:
	case GeneratorOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai.api_key is required for the openai generator (or set OPENAI_API_KEY)")
		}
	case GeneratorGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini.api_key is required for the gemini generator (or set GEMINI_API_KEY)")
		}
	default:
		return fmt.Errorf("content.generator must be 'static', 'openai', or 'gemini'")
	}

	if c.Content.Format != FormatStorage && c.Content.Format != FormatMarkdown {
		return fmt.Errorf("content.format must be 'storage' or 'markdown'")
	}

	if c.Publish.EmbedPolicy != EmbedAppend && c.Publish.EmbedPolicy != EmbedSkipExisting {
		return fmt.Errorf("publish.embed_policy must be 'append' or 'skip-existing'")
	}
	if c.Publish.SettleTimeout < 0 || c.Publish.PollInterval <= 0 {
		return fmt.Errorf("publish.settle_timeout and publish.poll_interval must be positive")
	}

	return nil
}

func (c *Config) validateDiagram() error {
	if c.Diagram.CLIPath == "" {
		return fmt.Errorf("diagram.cli_path is required")
	}
	ext := strings.ToLower(filepath.Ext(c.Diagram.Output))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return fmt.Errorf("diagram.output must be a raster image (.png, .jpg), got '%s'", c.Diagram.Output)
	}
	if c.Diagram.Scale < 0 {
		return fmt.Errorf("diagram.scale must not be negative")
	}
	return nil
}

// Set assigns a value by dotted key, e.g. "confluence.base_url".
func (c *Config) Set(key, value string) error {
	strFields := map[string]*string{
		"confluence.base_url":     &c.Confluence.BaseURL,
		"confluence.username":     &c.Confluence.Username,
		"confluence.api_token":    &c.Confluence.APIToken,
		"confluence.space_key":    &c.Confluence.SpaceKey,
		"page.title":              &c.Page.Title,
		"content.generator":       &c.Content.Generator,
		"content.format":          &c.Content.Format,
		"content.static":          &c.Content.Static,
		"openai.api_key":          &c.OpenAI.APIKey,
		"openai.base_url":         &c.OpenAI.BaseURL,
		"openai.model":            &c.OpenAI.Model,
		"gemini.api_key":          &c.Gemini.APIKey,
		"gemini.model":            &c.Gemini.Model,
		"publish.embed_policy":    &c.Publish.EmbedPolicy,
		"diagram.output":          &c.Diagram.Output,
		"diagram.cli_path":        &c.Diagram.CLIPath,
		"diagram.theme":           &c.Diagram.Theme,
		"diagram.background":      &c.Diagram.Background,
		"telemetry.metrics_file":  &c.Telemetry.MetricsFile,
		"telemetry.otlp_endpoint": &c.Telemetry.OTLPEndpoint,
	}
	if target, ok := strFields[key]; ok {
		*target = value
		return nil
	}

	switch key {
	case "content.prompt_files":
		var files []string
		for _, f := range strings.Split(value, ",") {
			if f = strings.TrimSpace(f); f != "" {
				files = append(files, f)
			}
		}
		c.Content.PromptFiles = files
	case "publish.settle_timeout", "publish.poll_interval", "openai.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		switch key {
		case "publish.settle_timeout":
			c.Publish.SettleTimeout = d
		case "publish.poll_interval":
			c.Publish.PollInterval = d
		default:
			c.OpenAI.Timeout = d
		}
	case "diagram.scale":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for %s: %w", key, err)
		}
		c.Diagram.Scale = f
	case "telemetry.tracing_enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid bool for %s: %w", key, err)
		}
		c.Telemetry.TracingEnabled = b
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// Save writes the config as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	// Contains credentials.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
