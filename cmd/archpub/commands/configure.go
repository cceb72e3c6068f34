package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"archpub/internal/config"
)

var (
	configureSets           []string
	configureYes            bool
	configurePrint          bool
	configureNonInteractive bool
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the archpub config file from prompts or --set pairs",
	Long: `Create or edit the archpub configuration file (config.yaml unless --config says otherwise).

Without flags every section is prompted for; publishing and diagram settings
are only asked about on request. --set applies dotted key=value pairs before
any prompt, and together with --non-interactive and --yes it scripts the whole
file. The result is validated as publish would load it before it is written.

Values that only come from the environment or .env are never written.`,
	Example: `  archpub configure
  archpub configure --non-interactive --yes \
      --set confluence.base_url=https://example.atlassian.net/wiki \
      --set confluence.username=me@example.com --set confluence.space_key=DOCS
  archpub configure --non-interactive --print --set content.generator=gemini`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
	configureCmd.Flags().StringArrayVar(&configureSets, "set", nil, "key=value using a dotted key, e.g. publish.embed_policy=skip-existing (repeatable)")
	configureCmd.Flags().BoolVar(&configureYes, "yes", false, "Save without asking for confirmation")
	configureCmd.Flags().BoolVar(&configurePrint, "print", false, "Print the resulting YAML instead of saving it")
	configureCmd.Flags().BoolVar(&configureNonInteractive, "non-interactive", false, "Skip all prompts; only --set is applied")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	cfg, err := config.ReadRaw(configFile)
	if err != nil {
		return err
	}

	if err := applySetOperations(cfg, configureSets); err != nil {
		return err
	}

	interactive := !configureNonInteractive
	if interactive {
		if err := interactiveEdit(cmd, cfg, fileExists(configFile)); err != nil {
			return err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if configurePrint {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		cmd.Print(string(data))
		return nil
	}

	if interactive && !configureYes {
		save := true
		if err := survey.AskOne(&survey.Confirm{Message: "Write " + configFile + "?", Default: true}, &save); err != nil {
			return err
		}
		if !save {
			cmd.Println("Nothing written.")
			return nil
		}
	}

	if err := cfg.Save(configFile); err != nil {
		return err
	}
	cmd.Printf("Configuration saved to %s\n", configFile)
	return nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func applySetOperations(cfg *config.Config, sets []string) error {
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --set value '%s' (expected key=value)", kv)
		}
		if err := cfg.Set(strings.TrimSpace(key), value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// validateConfig checks the candidate the same way publish would load it,
// without touching the target file.
func validateConfig(c *config.Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	candidate := filepath.Join(os.TempDir(), "archpub-validate-"+uuid.NewString()+".yaml")
	if err := os.WriteFile(candidate, data, 0o600); err != nil {
		return err
	}
	defer os.Remove(candidate)

	if _, err := config.LoadForPublish(candidate, ""); err != nil {
		return err
	}
	_, err = config.LoadForDiagram(candidate)
	return err
}

// Interactive editing -------------------------------------------------------

// configSection is one block of prompts. Optional sections are only entered
// after a confirmation.
type configSection struct {
	title    string
	optional bool
	prompt   func(cfg *config.Config) error
}

var configSections = []configSection{
	{title: "Confluence connection", prompt: promptConfluence},
	{title: "Page body", prompt: promptContent},
	{title: "Publishing", optional: true, prompt: promptPublish},
	{title: "Diagram rendering", optional: true, prompt: promptDiagram},
}

func interactiveEdit(cmd *cobra.Command, cfg *config.Config, existed bool) error {
	cmd.Println("archpub configuration. Press Enter to keep the value shown.")
	if existed {
		cmd.Printf("Editing %s.\n", configFile)
	}

	for _, section := range configSections {
		if section.optional {
			enter := false
			if err := survey.AskOne(&survey.Confirm{Message: "Change " + strings.ToLower(section.title) + " settings?"}, &enter); err != nil {
				return err
			}
			if !enter {
				continue
			}
		}
		cmd.Printf("\n%s\n", section.title)
		if err := section.prompt(cfg); err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(section.title), err)
		}
	}
	return nil
}

func promptConfluence(cfg *config.Config) error {
	var answers struct {
		URL   string `survey:"url"`
		User  string `survey:"user"`
		Token string `survey:"token"`
		Space string `survey:"space"`
		Title string `survey:"title"`
	}
	err := survey.Ask([]*survey.Question{
		{Name: "url", Prompt: &survey.Input{Message: "Wiki base URL (https://<site>.atlassian.net/wiki)", Default: cfg.Confluence.BaseURL}, Validate: survey.Required},
		{Name: "user", Prompt: &survey.Input{Message: "Account email", Default: cfg.Confluence.Username}, Validate: survey.Required},
		{Name: "token", Prompt: &survey.Password{Message: "API token (blank keeps the current one or CONFLUENCE_API_TOKEN)"}},
		{Name: "space", Prompt: &survey.Input{Message: "Space key", Default: cfg.Confluence.SpaceKey}},
		{Name: "title", Prompt: &survey.Input{Message: "Page title", Default: firstNonEmpty(cfg.Page.Title, config.DefaultTitle)}},
	}, &answers)
	if err != nil {
		return err
	}

	cfg.Confluence.BaseURL = strings.TrimRight(answers.URL, "/")
	cfg.Confluence.Username = answers.User
	if answers.Token != "" {
		cfg.Confluence.APIToken = answers.Token
	}
	cfg.Confluence.SpaceKey = answers.Space
	cfg.Page.Title = answers.Title
	return nil
}

func promptContent(cfg *config.Config) error {
	var answers struct {
		Generator string `survey:"generator"`
		Format    string `survey:"format"`
	}
	err := survey.Ask([]*survey.Question{
		{Name: "generator", Prompt: &survey.Select{
			Message: "Generator",
			Options: []string{config.GeneratorStatic, config.GeneratorOpenAI, config.GeneratorGemini},
			Default: firstNonEmpty(cfg.Content.Generator, config.GeneratorStatic),
		}},
		{Name: "format", Prompt: &survey.Select{
			Message: "Generated text is",
			Options: []string{config.FormatStorage, config.FormatMarkdown},
			Default: firstNonEmpty(cfg.Content.Format, config.FormatStorage),
		}},
	}, &answers)
	if err != nil {
		return err
	}
	cfg.Content.Generator = answers.Generator
	cfg.Content.Format = answers.Format

	if answers.Generator == config.GeneratorStatic {
		return nil
	}

	var prompts, key string
	if err := survey.AskOne(&survey.Input{
		Message: "Prompt files, comma separated, relative to the config file",
		Default: firstNonEmpty(strings.Join(cfg.Content.PromptFiles, ","), "prompts/instructions.txt,prompts/context.txt"),
	}, &prompts); err != nil {
		return err
	}
	if err := cfg.Set("content.prompt_files", prompts); err != nil {
		return err
	}

	if err := survey.AskOne(&survey.Password{Message: answers.Generator + " API key (blank reads it from the environment)"}, &key); err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	return cfg.Set(answers.Generator+".api_key", key)
}

func promptPublish(cfg *config.Config) error {
	var answers struct {
		Settle string `survey:"settle"`
		Embed  string `survey:"embed"`
	}
	err := survey.Ask([]*survey.Question{
		{Name: "settle", Prompt: &survey.Input{Message: "Wait for attachment up to", Default: durationOr(cfg.Publish.SettleTimeout.String(), "30s")}},
		{Name: "embed", Prompt: &survey.Select{
			Message: "When the body already shows the image",
			Options: []string{config.EmbedAppend, config.EmbedSkipExisting},
			Default: firstNonEmpty(cfg.Publish.EmbedPolicy, config.EmbedAppend),
		}},
	}, &answers)
	if err != nil {
		return err
	}
	cfg.Publish.EmbedPolicy = answers.Embed
	return cfg.Set("publish.settle_timeout", answers.Settle)
}

func promptDiagram(cfg *config.Config) error {
	var answers struct {
		Output string `survey:"output"`
		Mmdc   string `survey:"mmdc"`
		Theme  string `survey:"theme"`
		Scale  string `survey:"scale"`
	}
	err := survey.Ask([]*survey.Question{
		{Name: "output", Prompt: &survey.Input{Message: "Write PNG to", Default: firstNonEmpty(cfg.Diagram.Output, config.DefaultDiagramPath)}},
		{Name: "mmdc", Prompt: &survey.Input{Message: "mmdc executable", Default: firstNonEmpty(cfg.Diagram.CLIPath, "mmdc")}},
		{Name: "theme", Prompt: &survey.Select{
			Message: "Mermaid theme",
			Options: []string{"default", "neutral", "forest", "dark"},
			Default: firstNonEmpty(cfg.Diagram.Theme, "default"),
		}},
		{Name: "scale", Prompt: &survey.Input{Message: "Scale factor", Default: floatToStringOr(cfg.Diagram.Scale, 2.0)}},
	}, &answers)
	if err != nil {
		return err
	}
	cfg.Diagram.Output = answers.Output
	cfg.Diagram.CLIPath = answers.Mmdc
	cfg.Diagram.Theme = answers.Theme
	return cfg.Set("diagram.scale", answers.Scale)
}

// Utility helpers -----------------------------------------------------------

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func durationOr(v, fallback string) string {
	if v == "" || v == "0s" {
		return fallback
	}
	return v
}

func floatToStringOr(v float64, fallback float64) string {
	if v == 0 {
		return fmt.Sprintf("%.2f", fallback)
	}
	return fmt.Sprintf("%.2f", v)
}
