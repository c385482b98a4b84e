package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCompileCmd(o *options) *cobra.Command {
	var printGrammar bool

	cmd := &cobra.Command{
		Use:   "compile [grammar files...]",
		Short: "Check that grammars compile",
		Long: `Compiles each grammar file and reports its rules. Without arguments the grammar
named in the configuration file is compiled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cfg, err := o.loadConfig(cmd)
				if err != nil {
					return err
				}
				if cfg.Grammar == "" {
					return fmt.Errorf("no grammar given: pass a file or set grammar in %s", o.cfgFile)
				}
				args = []string{cfg.GrammarPath()}
			}

			failed := false
			out := cmd.OutOrStdout()
			for _, path := range args {
				g, err := o.loadGrammar(cmd, path)
				if errors.Is(err, ErrFailed) {
					failed = true
					continue
				}
				if err != nil {
					return err
				}

				if printGrammar {
					fmt.Fprint(out, g)
					continue
				}
				rules := g.Rules()
				fmt.Fprintf(out, "%s: %d rules, %d nodes", path, len(rules), g.Len())
				if len(rules) > 0 {
					fmt.Fprintf(out, " (%s)", strings.Join(rules, ", "))
				}
				fmt.Fprintln(out)
			}
			if failed {
				return ErrFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&printGrammar, "print", "p", false, "Print the grammar in canonical form")
	return cmd
}
