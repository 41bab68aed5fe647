package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rendis/statetree/internal/loader"
	"github.com/rendis/statetree/internal/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Check tree definitions for errors and warnings",
	Long: `Parses each YAML or JSON definition and runs structural, semantic and
reachability checks. Exits non-zero when any file has errors.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		compiler, err := loader.NewDefaultCompiler(logger)
		if err != nil {
			return err
		}
		v, err := validation.NewTreeValidator(compiler.Tasks, compiler.Expressions)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			def, err := loader.LoadFile(path)
			if err != nil {
				fmt.Fprintf(out, "%s: %v\n", path, err)
				failed++
				continue
			}
			result := v.Validate(def)
			for _, e := range result.Errors {
				fmt.Fprintf(out, "%s: error %s [%s] %s\n", path, e.Path, e.Code, e.Message)
			}
			for _, w := range result.Warnings {
				fmt.Fprintf(out, "%s: warning %s [%s] %s\n", path, w.Path, w.Code, w.Message)
			}
			if !result.Valid() {
				failed++
				continue
			}
			fmt.Fprintf(out, "%s: tree %q is valid\n", path, def.Name)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d definitions failed validation", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
