package commands

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"archpub/internal/confluence"
	"archpub/pkg/logger"
)

const testConfigYAML = `confluence:
  base_url: https://example.atlassian.net/wiki
  username: u
  api_token: t
  space_key: DOCS
publish:
  settle_timeout: 2s
  poll_interval: 10ms
`

// runCmdForTest executes the root command with args and captures its output.
// Flag values are reset first because cobra keeps them on the singleton.
func runCmdForTest(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()
	resetFlags(rootCmd)
	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	rootCmd.SetOut(outBuf)
	rootCmd.SetErr(errBuf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		finishRun(nil)
	})
	err = rootCmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeConfig(t *testing.T, dir string, data string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(data), 0600); err != nil {
		t.Fatalf("failed writing config: %v", err)
	}
	return p
}

func writeTestPNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode image: %v", err)
	}
	return p
}

// useMockClient swaps the client factory for the duration of the test.
func useMockClient(t *testing.T, mock *confluence.MockClient) {
	t.Helper()
	orig := newConfluenceClient
	newConfluenceClient = func(baseURL, user, token string, log *logger.Logger) confluence.ConfluenceClient {
		return mock
	}
	t.Cleanup(func() { newConfluenceClient = orig })
}

// clearConfluenceEnv keeps the developer's environment out of loaded configs.
func clearConfluenceEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CONFLUENCE_URL", "CONFLUENCE_USERNAME", "CONFLUENCE_API_TOKEN", "CONFLUENCE_SPACE_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "ARCHPUB_METRICS_FILE", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_ENABLED"} {
		t.Setenv(k, "")
	}
}
