// gen-diagrams generates sample diagram outputs for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/statetree/internal/diagram"
	"github.com/rendis/statetree/internal/loader"
	"github.com/rendis/statetree/pkg/statetree"
)

func main() {
	// The guard example mid-fight: enemy visible, healthy, first swing done.
	def, err := loader.LoadFile(filepath.Join("examples", "guard", "tree.yaml"))
	if err != nil {
		fail("load", err)
	}
	compiler, err := loader.NewDefaultCompiler(nil)
	if err != nil {
		fail("compiler", err)
	}
	tree, err := compiler.Compile(def)
	if err != nil {
		fail("compile", err)
	}

	bb := loader.Blackboard(def, map[string]any{"enemy_visible": true})
	runner := statetree.NewRunner(statetree.WithTickPolicy(statetree.TickPolicyQueueOnCompletion))
	if err := runner.Activate(tree, bb); err != nil {
		fail("activate", err)
	}
	runner.Tick()

	model, err := diagram.Build(tree,
		diagram.WithTitle(def.Name),
		diagram.WithDefinition(def),
		diagram.WithOverlay(diagram.OverlayFromRunner(runner)),
	)
	if err != nil {
		fail("build", err)
	}

	outDir := filepath.Join("docs", "assets")
	os.MkdirAll(outDir, 0o755)

	ascii := diagram.RenderASCII(model)
	os.WriteFile(filepath.Join(outDir, "diagram-ascii.txt"), []byte(ascii), 0o644)
	fmt.Println("=== ASCII ===")
	fmt.Println(ascii)

	mermaid := diagram.RenderMermaid(model)
	os.WriteFile(filepath.Join(outDir, "diagram-mermaid.md"), []byte("```mermaid\n"+mermaid+"\n```\n"), 0o644)
	fmt.Println("=== Mermaid ===")
	fmt.Println(mermaid)

	for name, render := range map[string]func(*diagram.DiagramModel) ([]byte, error){
		"diagram-sample.png": diagram.RenderImage,
		"diagram-sample.svg": diagram.RenderSVG,
	} {
		data, err := render(model)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			continue
		}
		path := filepath.Join(outDir, name)
		os.WriteFile(path, data, 0o644)
		fmt.Printf("Written: %s (%d bytes)\n", path, len(data))
	}
}

func fail(stage string, err error) {
	fmt.Fprintf(os.Stderr, "%s error: %v\n", stage, err)
	os.Exit(1)
}
