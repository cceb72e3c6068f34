package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"archpub/internal/config"
	"archpub/internal/diagram"
	"archpub/internal/images"
)

var (
	diagramOut   string
	diagramPrint bool
)

// diagramCmd renders the embedded architecture topology
var diagramCmd = &cobra.Command{
	Use:   "diagram",
	Short: "Render the architecture diagram to an image",
	Long: `Render the built-in architecture topology (Frontend, Backend, Database and
Microservices clusters) to a PNG or JPEG using the Mermaid CLI (mmdc).

The output directory is created if needed. Use --print to emit the Mermaid
source instead of rendering; this does not require mmdc.`,
	Example: `  archpub diagram
  archpub diagram --out docs/arch.png
  archpub diagram --print > arch.mmd`,
	RunE: runDiagram,
}

func runDiagram(cmd *cobra.Command, args []string) error {
	topo := diagram.ArchitectureTopology()

	if diagramPrint {
		if err := topo.Validate(); err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), topo.Mermaid())
		return nil
	}

	log := newLogger()

	cfg, err := config.LoadForDiagram(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cfg.Diagram.Output
	if diagramOut != "" {
		ext := strings.ToLower(filepath.Ext(diagramOut))
		if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
			return fmt.Errorf("output must be a .png or .jpg file: %s", diagramOut)
		}
		out = diagramOut
	}

	renderer := diagram.NewRenderer(&cfg.Diagram, images.NewProcessor(&cfg.Images, log), log)
	info, err := renderer.Render(commandContext(cmd), topo, out)
	if err != nil {
		return fmt.Errorf("failed to render diagram: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Diagram written to %s (%dx%d, %d bytes)\n", info.Path, info.Width, info.Height, info.Size)
	return nil
}

func init() {
	rootCmd.AddCommand(diagramCmd)

	diagramCmd.Flags().StringVarP(&diagramOut, "out", "o", "", "Output image path (default from diagram.output, "+config.DefaultDiagramPath+")")
	diagramCmd.Flags().BoolVar(&diagramPrint, "print", false, "Print the Mermaid source instead of rendering")
}
