package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"archpub/internal/config"
)

var (
	attachmentsSpace string
	attachmentsPage  string
	attachmentsURLs  bool
)

// attachmentsCmd lists the files attached to a page
var attachmentsCmd = &cobra.Command{
	Use:   "attachments",
	Short: "List the attachments of a Confluence page",
	Long: `List the attachments of a Confluence page with their media type and size.

The page is resolved the same way as get-page. With --urls the download
URL of every attachment is printed as well.`,
	Example: `  archpub attachments
  archpub attachments --title "System Architecture" --urls
  archpub attachments --space DOCS --title 123456789`,
	RunE: runAttachments,
}

func runAttachments(cmd *cobra.Command, args []string) error {
	log := newLogger()
	ctx := commandContext(cmd)

	cfg, err := config.LoadForPages(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	space := firstNonEmpty(attachmentsSpace, cfg.Confluence.SpaceKey)
	if space == "" {
		return fmt.Errorf("space flag or confluence.space_key required for attachments command")
	}

	client := newConfluenceClient(cfg.Confluence.BaseURL, cfg.Confluence.Username, cfg.Confluence.APIToken, log)

	page, err := resolvePage(ctx, client, space, firstNonEmpty(attachmentsPage, cfg.Page.Title), log)
	if err != nil {
		return err
	}

	attachments, err := client.ListAttachments(ctx, page.ID)
	if err != nil {
		return fmt.Errorf("failed to list attachments: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📄 %s (ID: %s)\n\n", page.Title, page.ID)
	if len(attachments) == 0 {
		fmt.Fprintln(out, "No attachments")
		return nil
	}

	for i, att := range attachments {
		branch := "├── "
		if i == len(attachments)-1 {
			branch = "└── "
		}
		fmt.Fprintf(out, "%s📎 %s (ID: %s, %s, %s)\n", branch, att.Title, att.ID, firstNonEmpty(att.Metadata.MediaType, "unknown"), formatBytes(att.Extensions.FileSize))

		if attachmentsURLs {
			fmt.Fprintf(out, "      %s\n", client.DownloadURL(att))
		}
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(attachmentsCmd)

	attachmentsCmd.Flags().StringVarP(&attachmentsSpace, "space", "s", "", "Confluence space key (default from confluence.space_key)")
	attachmentsCmd.Flags().StringVarP(&attachmentsPage, "title", "t", "", "Page title or ID (default from page.title)")
	attachmentsCmd.Flags().BoolVar(&attachmentsURLs, "urls", false, "Print the download URL of each attachment")
}
