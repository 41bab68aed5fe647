package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/statetree/internal/diagram"
	"github.com/rendis/statetree/internal/loader"
)

var diagramCmd = &cobra.Command{
	Use:   "diagram FILE",
	Short: "Render a tree definition as a diagram",
	Long:  `Outputs ASCII art, a Mermaid flowchart (graph TD), SVG, PNG or the JSON diagram model.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		def, err := loader.LoadFile(args[0])
		if err != nil {
			return err
		}
		compiler, err := loader.NewDefaultCompiler(logger)
		if err != nil {
			return err
		}
		tree, err := compiler.Compile(def)
		if err != nil {
			return err
		}
		model, err := diagram.Build(tree, diagram.WithTitle(def.Name), diagram.WithDefinition(def))
		if err != nil {
			return err
		}

		data, err := renderDiagram(model, format)
		if err != nil {
			return err
		}
		if output == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return os.WriteFile(output, data, 0o644)
	},
}

func init() {
	rootCmd.AddCommand(diagramCmd)
	diagramCmd.Flags().StringP("format", "f", "ascii", "ascii, mermaid, svg, png or json")
	diagramCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
}

func renderDiagram(model *diagram.DiagramModel, format string) ([]byte, error) {
	switch format {
	case "", "ascii":
		return []byte(diagram.RenderASCII(model)), nil
	case "mermaid":
		return []byte(diagram.RenderMermaid(model)), nil
	case "svg":
		return diagram.RenderSVG(model)
	case "png":
		return diagram.RenderImage(model)
	case "json":
		return json.MarshalIndent(model, "", "  ")
	default:
		return nil, fmt.Errorf("unknown diagram format %q", format)
	}
}
