package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"CONFLUENCE_URL", "CONFLUENCE_USERNAME", "CONFLUENCE_API_TOKEN", "CONFLUENCE_SPACE_KEY",
	"OPENAI_API_KEY", "GEMINI_API_KEY", "ARCHPUB_METRICS_FILE", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// clearEnv blanks every variable Read consults so host settings don't leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadValidatesConnection(t *testing.T) {
	tests := []struct {
		name        string
		configData  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			configData: `
confluence:
  base_url: "https://example.atlassian.net/wiki/"
  username: "test@example.com"
  api_token: "test_token"
  space_key: "DOCS"
page:
  title: "Architecture"
`,
			expectError: false,
		},
		{
			name: "missing base_url",
			configData: `
confluence:
  username: "test@example.com"
  api_token: "test_token"
  space_key: "DOCS"
`,
			expectError: true,
			errorMsg:    "confluence.base_url is required",
		},
		{
			name: "missing username",
			configData: `
confluence:
  base_url: "https://example.atlassian.net"
  api_token: "test_token"
  space_key: "DOCS"
`,
			expectError: true,
			errorMsg:    "confluence.username is required",
		},
		{
			name: "missing api_token",
			configData: `
confluence:
  base_url: "https://example.atlassian.net"
  username: "test@example.com"
  space_key: "DOCS"
`,
			expectError: true,
			errorMsg:    "confluence.api_token is required",
		},
		{
			name:        "invalid yaml",
			configData:  "confluence: [unclosed",
			expectError: true,
			errorMsg:    "failed to parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := writeConfig(t, tt.configData)

			config, err := LoadForPages(path)

			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if config.Confluence.BaseURL != "https://example.atlassian.net/wiki" {
				t.Errorf("Expected trailing slash to be trimmed, got '%s'", config.Confluence.BaseURL)
			}
			if config.Page.Title != "Architecture" {
				t.Errorf("Expected title 'Architecture', got '%s'", config.Page.Title)
			}
		})
	}
}

func TestReadWithoutFileUsesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFLUENCE_URL", "https://env.atlassian.net")
	t.Setenv("CONFLUENCE_USERNAME", "env-user")
	t.Setenv("CONFLUENCE_API_TOKEN", "env-token")
	t.Setenv("CONFLUENCE_SPACE_KEY", "ENV")

	config, err := LoadForPages(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if config.Confluence.BaseURL != "https://env.atlassian.net" {
		t.Errorf("Expected env base URL, got '%s'", config.Confluence.BaseURL)
	}
	if config.Confluence.SpaceKey != "ENV" {
		t.Errorf("Expected env space key, got '%s'", config.Confluence.SpaceKey)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
confluence:
  base_url: "https://file.atlassian.net"
  username: "file-user"
  api_token: "file-token"
  space_key: "FILE"
`)
	t.Setenv("CONFLUENCE_SPACE_KEY", "OVERRIDE")

	config, err := LoadForPages(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if config.Confluence.SpaceKey != "OVERRIDE" {
		t.Errorf("Expected space key from env, got '%s'", config.Confluence.SpaceKey)
	}
	if config.Confluence.Username != "file-user" {
		t.Errorf("Expected username from file, got '%s'", config.Confluence.Username)
	}
}

func TestSetDefaults(t *testing.T) {
	config := &Config{}
	config.setDefaults()

	if config.Page.Title != DefaultTitle {
		t.Errorf("Expected default title, got '%s'", config.Page.Title)
	}
	if config.Content.Generator != GeneratorStatic {
		t.Errorf("Expected static generator, got '%s'", config.Content.Generator)
	}
	if config.Publish.SettleTimeout != 30*time.Second {
		t.Errorf("Expected 30s settle timeout, got %v", config.Publish.SettleTimeout)
	}
	if config.Publish.EmbedPolicy != EmbedAppend {
		t.Errorf("Expected append embed policy, got '%s'", config.Publish.EmbedPolicy)
	}
	if config.Diagram.Output != DefaultDiagramPath {
		t.Errorf("Expected diagram output '%s', got '%s'", DefaultDiagramPath, config.Diagram.Output)
	}
	if config.OpenAI.Model != "gpt-4o" {
		t.Errorf("Expected gpt-4o model, got '%s'", config.OpenAI.Model)
	}
}

func TestSetDefaultsPartial(t *testing.T) {
	config := &Config{
		Publish: PublishConfig{SettleTimeout: 5 * time.Second, EmbedPolicy: EmbedSkipExisting},
		Diagram: DiagramConfig{CLIPath: "/opt/mmdc"},
	}
	config.setDefaults()

	if config.Publish.SettleTimeout != 5*time.Second {
		t.Errorf("Expected settle timeout to be preserved, got %v", config.Publish.SettleTimeout)
	}
	if config.Publish.EmbedPolicy != EmbedSkipExisting {
		t.Errorf("Expected embed policy to be preserved, got '%s'", config.Publish.EmbedPolicy)
	}
	if config.Diagram.CLIPath != "/opt/mmdc" {
		t.Errorf("Expected CLI path to be preserved, got '%s'", config.Diagram.CLIPath)
	}
	if config.Publish.PollInterval != time.Second {
		t.Errorf("Expected default poll interval, got %v", config.Publish.PollInterval)
	}
}

func TestLoadForPublish(t *testing.T) {
	base := `
confluence:
  base_url: "https://example.atlassian.net"
  username: "u"
  api_token: "t"
`
	tests := []struct {
		name        string
		extra       string
		generator   string
		env         map[string]string
		expectError bool
		errorMsg    string
	}{
		{name: "static needs no keys", generator: "static"},
		{name: "space key optional", generator: ""},
		{
			name:        "openai without key",
			generator:   "openai",
			expectError: true,
			errorMsg:    "openai.api_key is required",
		},
		{
			name:      "openai key from env",
			generator: "openai",
			env:       map[string]string{"OPENAI_API_KEY": "sk-test"},
		},
		{
			name:        "gemini without key",
			generator:   "gemini",
			expectError: true,
			errorMsg:    "gemini.api_key is required",
		},
		{
			name:        "unknown generator",
			generator:   "claude",
			expectError: true,
			errorMsg:    "content.generator must be",
		},
		{
			name:        "bad embed policy",
			extra:       "publish:\n  embed_policy: dedupe\n",
			expectError: true,
			errorMsg:    "publish.embed_policy must be",
		},
		{
			name:        "bad format",
			extra:       "content:\n  format: html\n",
			expectError: true,
			errorMsg:    "content.format must be",
		},
		{
			name:  "duration parsing",
			extra: "publish:\n  settle_timeout: 45s\n  poll_interval: 250ms\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, base+tt.extra)

			config, err := LoadForPublish(path, tt.generator)

			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if tt.name == "duration parsing" {
				if config.Publish.SettleTimeout != 45*time.Second || config.Publish.PollInterval != 250*time.Millisecond {
					t.Errorf("Unexpected durations: %v / %v", config.Publish.SettleTimeout, config.Publish.PollInterval)
				}
			}
		})
	}
}

func TestLoadForDiagram(t *testing.T) {
	tests := []struct {
		name        string
		configData  string
		expectError bool
		errorMsg    string
	}{
		{name: "defaults", configData: ""},
		{
			name:        "svg output rejected",
			configData:  "diagram:\n  output: images/out.svg\n",
			expectError: true,
			errorMsg:    "diagram.output must be a raster image",
		},
		{
			name:       "jpeg output",
			configData: "diagram:\n  output: out/arch.jpg\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := writeConfig(t, tt.configData)

			_, err := LoadForDiagram(path)
			if tt.expectError {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Fatalf("Expected error containing '%s', got %v", tt.errorMsg, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
		})
	}
}

func TestPromptPathsResolveAgainstConfigDir(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
content:
  prompt_files: ["prompts/a.txt", "/abs/b.txt"]
`)

	config, err := Read(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	paths := config.PromptPaths()
	if len(paths) != 2 {
		t.Fatalf("Expected 2 prompt paths, got %d", len(paths))
	}
	if paths[0] != filepath.Join(filepath.Dir(path), "prompts", "a.txt") {
		t.Errorf("Expected relative prompt resolved against config dir, got '%s'", paths[0])
	}
	if paths[1] != "/abs/b.txt" {
		t.Errorf("Expected absolute path unchanged, got '%s'", paths[1])
	}
}

func TestTracingEnabledFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTEL_ENABLED", "true")

	config, err := Read(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !config.Telemetry.TracingEnabled {
		t.Error("Expected tracing to be enabled")
	}
}

func TestSetAndSave(t *testing.T) {
	clearEnv(t)
	config := &Config{}

	sets := map[string]string{
		"confluence.base_url":    "https://example.atlassian.net",
		"confluence.space_key":   "DOCS",
		"publish.settle_timeout": "10s",
		"content.prompt_files":   "a.txt, b.txt",
		"diagram.scale":          "1.5",
	}
	for k, v := range sets {
		if err := config.Set(k, v); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}

	if err := config.Set("nope.field", "x"); err == nil {
		t.Error("Expected unknown key error")
	}
	if err := config.Set("publish.poll_interval", "soon"); err == nil {
		t.Error("Expected duration parse error")
	}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := config.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if loaded.Confluence.SpaceKey != "DOCS" {
		t.Errorf("Expected space key DOCS, got '%s'", loaded.Confluence.SpaceKey)
	}
	if loaded.Publish.SettleTimeout != 10*time.Second {
		t.Errorf("Expected 10s, got %v", loaded.Publish.SettleTimeout)
	}
	if len(loaded.Content.PromptFiles) != 2 || loaded.Content.PromptFiles[1] != "b.txt" {
		t.Errorf("Unexpected prompt files %v", loaded.Content.PromptFiles)
	}
	if loaded.Diagram.Scale != 1.5 {
		t.Errorf("Expected scale 1.5, got %v", loaded.Diagram.Scale)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	if err := LoadDotEnv(filepath.Join(dir, ".env")); err != nil {
		t.Fatalf("Missing .env should not fail: %v", err)
	}

	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("CONFLUENCE_SPACE_KEY=DOTENV\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set, even to "".
	os.Unsetenv("CONFLUENCE_SPACE_KEY")
	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := os.Getenv("CONFLUENCE_SPACE_KEY"); got != "DOTENV" {
		t.Errorf("Expected DOTENV, got '%s'", got)
	}
}

func TestReadRawIgnoresEnvironmentAndDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFLUENCE_API_TOKEN", "env-token")

	path := writeConfig(t, "confluence:\n  base_url: https://file.atlassian.net\n")
	config, err := ReadRaw(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if config.Confluence.APIToken != "" {
		t.Errorf("Expected token from environment to be ignored, got '%s'", config.Confluence.APIToken)
	}
	if config.Page.Title != "" || config.Publish.SettleTimeout != 0 {
		t.Errorf("Expected no defaults, got title '%s' settle %s", config.Page.Title, config.Publish.SettleTimeout)
	}

	missing, err := ReadRaw(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected missing file to yield empty config, got %v", err)
	}
	if missing.Confluence.BaseURL != "" {
		t.Errorf("Expected empty config, got %+v", missing.Confluence)
	}

	if _, err := ReadRaw(writeConfig(t, "confluence: [")); err == nil {
		t.Error("Expected parse error for malformed YAML")
	}
}

func TestLoadForPages(t *testing.T) {
	clearEnv(t)

	config, err := LoadForPages(writeConfig(t, "confluence:\n  base_url: https://x\n  username: u\n  api_token: t\n"))
	if err != nil {
		t.Fatalf("Expected space key to be optional, got %v", err)
	}
	if config.Page.Title != DefaultTitle {
		t.Errorf("Expected default title, got '%s'", config.Page.Title)
	}

	_, err = LoadForPages(writeConfig(t, "confluence:\n  base_url: https://x\n"))
	if err == nil || !strings.Contains(err.Error(), "confluence.username is required") {
		t.Errorf("Expected missing username error, got %v", err)
	}
}
