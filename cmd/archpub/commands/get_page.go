package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"archpub/internal/config"
	"archpub/internal/confluence"
	"archpub/internal/storage"
	"archpub/pkg/logger"
)

var (
	getPageSpace     string
	getPageIDOrTitle string
	getPageFormat    string
)

// getPageCmd prints a published page so the result of publish can be checked
var getPageCmd = &cobra.Command{
	Use:   "get-page",
	Short: "Return the contents of a Confluence page",
	Long: `Fetch the storage-format content of a Confluence page by ID or title.

The space defaults to confluence.space_key and the page to page.title, so
running get-page with no flags shows the page publish writes to.
With --format markdown the body is converted for reading in a terminal and
embedded images are shown as markdown image links.`,
	Example: `  archpub get-page
  archpub get-page --space DOCS --title 123456789
  archpub get-page --title "System Architecture" --format markdown`,
	RunE: runGetPage,
}

func runGetPage(cmd *cobra.Command, args []string) error {
	switch getPageFormat {
	case "", config.FormatStorage, config.FormatMarkdown:
	default:
		return fmt.Errorf("unsupported format: %s", getPageFormat)
	}

	log := newLogger()

	cfg, err := config.LoadForPages(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	space := firstNonEmpty(getPageSpace, cfg.Confluence.SpaceKey)
	if space == "" {
		return fmt.Errorf("space flag or confluence.space_key required for get-page command")
	}
	target := firstNonEmpty(getPageIDOrTitle, cfg.Page.Title)

	client := newConfluenceClient(cfg.Confluence.BaseURL, cfg.Confluence.Username, cfg.Confluence.APIToken, log)

	page, err := resolvePage(commandContext(cmd), client, space, target, log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s (ID: %s)\n\n", page.Title, page.ID)
	fmt.Fprintln(out, generatePageOutput(page, getPageFormat))
	return nil
}

// resolvePage looks up a page by ID when the input is numeric and falls back
// to a title lookup in space.
func resolvePage(ctx context.Context, client confluence.ConfluenceClient, space, idOrTitle string, log *logger.Logger) (*confluence.Page, error) {
	if isNumeric(idOrTitle) {
		page, err := client.GetPage(ctx, idOrTitle)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Debug("failed to get page by ID: %v", err)
	}

	page, err := client.FindPageByTitle(ctx, space, idOrTitle)
	if err != nil {
		return nil, fmt.Errorf("failed to find page by title: %w", err)
	}
	if page == nil {
		return nil, fmt.Errorf("page '%s' not found in space '%s': %w", idOrTitle, space, confluence.ErrPageNotFound)
	}
	return page, nil
}

// generatePageOutput returns the page body in the requested format, without
// the title header.
func generatePageOutput(page *confluence.Page, format string) string {
	if format == config.FormatMarkdown {
		return storage.ToMarkdown(page.Body.Storage.Value)
	}
	return page.Body.Storage.Value
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

func init() {
	rootCmd.AddCommand(getPageCmd)

	getPageCmd.Flags().StringVarP(&getPageSpace, "space", "s", "", "Confluence space key (default from confluence.space_key)")
	getPageCmd.Flags().StringVarP(&getPageIDOrTitle, "title", "t", "", "Page title or ID to fetch (default from page.title)")
	getPageCmd.Flags().StringVarP(&getPageFormat, "format", "f", config.FormatStorage, "Output format: storage|markdown")
}
