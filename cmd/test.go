package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/gmatch/formatter"
	"github.com/gnolang/gmatch/process"
)

func newTestCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run the test cases of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, grammarPath, err := o.matchConfig(cmd)
			if err != nil {
				return err
			}
			if len(cfg.Cases) == 0 {
				return fmt.Errorf("no test cases in %s (run gmatch init for an example)", o.cfgFile)
			}

			g, err := o.loadGrammar(cmd, grammarPath)
			if err != nil {
				return err
			}
			m, err := o.newMatcher(g, cfg, false)
			if err != nil {
				return err
			}

			ctx, cancel := o.context()
			defer cancel()

			results, err := process.Cases(ctx, m, cfg)
			if err != nil {
				o.logger.Error("Test run interrupted", zap.Error(err))
			}
			if ferr := formatter.Cases(cmd.OutOrStdout(), results); ferr != nil {
				return ferr
			}
			if err != nil {
				return err
			}
			if failed := countFailed(results); failed > 0 {
				return ErrFailed
			}
			return nil
		},
	}
	o.addMatchFlags(cmd)
	// cases carry their own expectation
	_ = cmd.Flags().MarkHidden("full")
	return cmd
}

func countFailed(results []process.CaseResult) int {
	n := 0
	for _, r := range results {
		if !r.Passed {
			n++
		}
	}
	return n
}
