package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"archpub/internal/config"
	"archpub/internal/metrics"
	"archpub/internal/tracing"
	"archpub/pkg/logger"
)

var (
	configFile string
	verbose    bool
)

// osExit is replaced in tests.
var osExit = os.Exit

// run holds per-invocation state set up before a command runs.
var run struct {
	id          string
	command     string
	metricsFile string
	shutdown    func(context.Context) error
}

// usageError is returned for argument mistakes; it is printed as-is.
type usageError struct {
	usage string
}

func (e *usageError) Error() string { return e.usage }

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "archpub",
	Short: "Publish an architecture diagram and its description to Confluence",
	Long: `Archpub renders the system architecture diagram, produces a page body (static
or generated by an LLM) and publishes both to a Confluence page. Publishing is
idempotent: the page is created once and updated afterwards, and the diagram is
attached only if it is not already present.`,
	Example: `  archpub diagram                                   # Render images/architecture_diagram.png
  archpub publish images/architecture_diagram.png   # Create or update the page
  archpub publish --content openai diagram.png      # Generate the body with OpenAI
  archpub get-page --title "Automated Confluence Page" --format markdown`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupRun,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	finishRun(err)
	if err != nil {
		var uErr *usageError
		if errors.As(err, &uErr) {
			fmt.Fprintln(os.Stderr, uErr.usage)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		osExit(1)
	}
}

func setupRun(cmd *cobra.Command, args []string) error {
	run.id = uuid.NewString()
	run.command = cmd.Name()
	run.metricsFile = ""
	run.shutdown = nil

	if standalone(cmd) {
		return nil
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	// Telemetry settings come from a relaxed read; commands validate their own needs.
	cfg, err := config.Read(configFile)
	if err != nil {
		return err
	}
	run.metricsFile = cfg.Telemetry.MetricsFile

	shutdown, err := tracing.Setup(commandContext(cmd), cfg.Telemetry)
	if err != nil {
		return err
	}
	run.shutdown = shutdown
	return nil
}

// standalone reports whether cmd runs without the config file, .env or
// telemetry, so a broken config cannot stop it.
func standalone(cmd *cobra.Command) bool {
	switch cmd {
	case versionCmd:
		return true
	case diagramCmd:
		return diagramPrint
	}
	return cmd.Name() == "help"
}

func finishRun(err error) {
	if run.command == "" {
		return
	}
	metrics.MarkRun(run.command, err)

	log := newLogger()
	defer log.Sync()

	if run.metricsFile != "" {
		if werr := metrics.WriteTextfile(run.metricsFile); werr != nil {
			log.Warn("Failed to write metrics file %s: %v", run.metricsFile, werr)
		}
	}
	if run.shutdown != nil {
		if serr := run.shutdown(context.Background()); serr != nil {
			log.Warn("Tracing shutdown failed: %v", serr)
		}
	}
	run.command = ""
	run.metricsFile = ""
	run.shutdown = nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// newLogger returns the command logger tagged with the run ID.
func newLogger() *logger.Logger {
	log := logger.New(verbose)
	if run.id != "" {
		log = log.With("run_id", run.id)
	}
	return log
}

func init() {
	// Global persistent flags available to all subcommands
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultPath, "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}
