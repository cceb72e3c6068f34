package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"archpub/internal/config"
	"archpub/internal/content"
	"archpub/internal/images"
	"archpub/internal/publish"
	"archpub/internal/storage"
)

const publishUsage = "Usage: archpub publish <image_path>"

var (
	publishTitle         string
	publishSpace         string
	publishGenerator     string
	publishPrompts       []string
	publishDryRun        bool
	publishSettleTimeout time.Duration
	publishEmbedPolicy   string
)

// publishCmd creates or updates the page and attaches the diagram to it
var publishCmd = &cobra.Command{
	Use:   "publish <image_path>",
	Short: "Create or update the Confluence page and embed an image",
	Long: `Publish a page body and an image to Confluence.

The page is looked up by title in the target space. If it exists its body is
replaced, otherwise it is created. The image is uploaded as an attachment
unless an attachment with the same filename is already on the page. Once the
attachment is listed by Confluence the body is updated again with an inline
reference to it.

The body comes from one of three generators:
  static  fixed template from content.static (default)
  openai  chat completion using the configured prompt files
  gemini  Gemini completion using the configured prompt files`,
	Example: `  archpub publish images/architecture_diagram.png
  archpub publish --space DOCS --title "System Architecture" diagram.png
  archpub publish --content gemini --prompt prompts/instructions.txt diagram.png
  archpub publish --dry-run diagram.png`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return &usageError{usage: publishUsage}
		}
		return nil
	},
	RunE: runPublish,
}

func runPublish(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return &usageError{usage: publishUsage}
	}
	imagePath := args[0]
	ctx := commandContext(cmd)
	log := newLogger()

	cfg, err := config.LoadForPublish(configFile, publishGenerator)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyPublishFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.Confluence.SpaceKey == "" {
		return fmt.Errorf("space flag or confluence.space_key required for publish command")
	}

	gen, err := content.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.Debug("Generating page body with %s generator", gen.Name())
	body, err := gen.Generate(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate content: %w", err)
	}

	client := newConfluenceClient(cfg.Confluence.BaseURL, cfg.Confluence.Username, cfg.Confluence.APIToken, log)
	publisher := publish.New(client, images.NewProcessor(&cfg.Images, log), publish.Options{
		DryRun:        publishDryRun,
		EmbedPolicy:   cfg.Publish.EmbedPolicy,
		SettleTimeout: cfg.Publish.SettleTimeout,
		PollInterval:  cfg.Publish.PollInterval,
	}, log)

	result, err := publisher.Publish(ctx, publish.Request{
		SpaceKey:  cfg.Confluence.SpaceKey,
		Title:     cfg.Page.Title,
		Content:   body,
		ImagePath: imagePath,
	})
	if err != nil {
		if result != nil {
			log.Error("Publishing '%s' stopped after %s", cfg.Page.Title, result.State)
		}
		return err
	}

	printPublishResult(cmd, cfg, result)
	return nil
}

func applyPublishFlags(cmd *cobra.Command, cfg *config.Config) error {
	if publishTitle != "" {
		cfg.Page.Title = publishTitle
	}
	if publishSpace != "" {
		cfg.Confluence.SpaceKey = publishSpace
	}
	if len(publishPrompts) > 0 {
		// Flag paths are relative to the working directory, not the config file.
		var files []string
		for _, p := range publishPrompts {
			abs, err := filepath.Abs(p)
			if err != nil {
				return fmt.Errorf("invalid prompt path %s: %w", p, err)
			}
			files = append(files, abs)
		}
		cfg.Content.PromptFiles = files
	}
	if cmd.Flags().Changed("settle-timeout") {
		if publishSettleTimeout < 0 {
			return fmt.Errorf("settle-timeout must not be negative")
		}
		cfg.Publish.SettleTimeout = publishSettleTimeout
	}
	if publishEmbedPolicy != "" {
		switch publishEmbedPolicy {
		case config.EmbedAppend, config.EmbedSkipExisting:
			cfg.Publish.EmbedPolicy = publishEmbedPolicy
		default:
			return fmt.Errorf("embed-policy must be '%s' or '%s'", config.EmbedAppend, config.EmbedSkipExisting)
		}
	}
	return nil
}

func printPublishResult(cmd *cobra.Command, cfg *config.Config, result *publish.Result) {
	out := cmd.OutOrStdout()
	prefix := ""
	if result.DryRun {
		prefix = "[dry-run] "
	}

	action := "Updated"
	if result.Created {
		action = "Created"
	}
	if result.PageID != "" {
		fmt.Fprintf(out, "%s%s page '%s' (ID: %s) in space '%s'\n", prefix, action, cfg.Page.Title, result.PageID, cfg.Confluence.SpaceKey)
	} else {
		fmt.Fprintf(out, "%s%s page '%s' in space '%s'\n", prefix, action, cfg.Page.Title, cfg.Confluence.SpaceKey)
	}

	if result.AttachmentUploaded {
		fmt.Fprintf(out, "%sUploaded attachment '%s'\n", prefix, result.Filename)
	} else {
		fmt.Fprintf(out, "%sAttachment '%s' already present, upload skipped\n", prefix, result.Filename)
	}
	fmt.Fprintf(out, "%sFinal state: %s\n", prefix, result.State)

	if result.DryRun {
		fmt.Fprintf(out, "\n%sPage body preview:\n%s\n", prefix, storage.ToMarkdown(result.Body))
	}
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().StringVarP(&publishTitle, "title", "t", "", "Page title (default from page.title, \""+config.DefaultTitle+"\")")
	publishCmd.Flags().StringVarP(&publishSpace, "space", "s", "", "Confluence space key (overrides confluence.space_key)")
	publishCmd.Flags().StringVar(&publishGenerator, "content", "", "Body generator: static|openai|gemini (default from content.generator)")
	publishCmd.Flags().StringArrayVar(&publishPrompts, "prompt", nil, "Prompt file for LLM generators (repeatable, replaces content.prompt_files)")
	publishCmd.Flags().BoolVar(&publishDryRun, "dry-run", false, "Resolve remote state and print planned actions without writing")
	publishCmd.Flags().DurationVar(&publishSettleTimeout, "settle-timeout", 0, "Maximum time to wait for the attachment to be listed (default from publish.settle_timeout)")
	publishCmd.Flags().StringVar(&publishEmbedPolicy, "embed-policy", "", "append|skip-existing (default from publish.embed_policy)")
}
