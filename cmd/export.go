package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gnolang/gmatch/export"
)

func newExportCmd(o *options) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export [grammar file]",
		Short: "Export the compiled grammar as a tree or graph",
		Long: fmt.Sprintf(`Renders the compiled grammar in one of these formats: %s.
Example) gmatch export --format dot -o grammar.dot grammar.ebnf`, strings.Join(export.Formats(), ", ")),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := o.loadConfig(cmd)
				if err != nil {
					return err
				}
				path = cfg.GrammarPath()
			}
			if path == "" {
				return fmt.Errorf("no grammar given: pass a file or set grammar in %s", o.cfgFile)
			}

			g, err := o.loadGrammar(cmd, path)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			if err := export.Write(&buf, g, export.Format(format)); err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", path, output)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(export.FormatText), "Output format")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: standard output)")
	return cmd
}
