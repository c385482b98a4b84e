package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/gmatch/formatter"
	"github.com/gnolang/gmatch/match"
	"github.com/gnolang/gmatch/process"
)

const stdinName = "<stdin>"

type matchFlags struct {
	input      string
	extensions []string
	workers    int
	jsonOutput bool
	outPath    string
	progress   bool
	trace      bool
}

func newMatchCmd(o *options) *cobra.Command {
	var mf matchFlags

	cmd := &cobra.Command{
		Use:   "match [paths...]",
		Short: "Match files against a grammar",
		Long: `Matches every file, or every file below a directory, against the grammar.
Without paths the text given with --input, or else standard input, is matched.
Exits with a non-zero status when any input does not pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, grammarPath, err := o.matchConfig(cmd)
			if err != nil {
				return err
			}
			g, err := o.loadGrammar(cmd, grammarPath)
			if err != nil {
				return err
			}
			m, err := o.newMatcher(g, cfg, mf.trace)
			if err != nil {
				return err
			}

			ctx, cancel := o.context()
			defer cancel()

			reports, err := runMatch(ctx, cmd, o.logger, m, args, cfg.Full, mf)
			if err != nil {
				return err
			}
			if err := printReports(cmd.OutOrStdout(), reports, mf); err != nil {
				return err
			}
			for _, r := range reports {
				if !r.Passed {
					return ErrFailed
				}
			}
			return nil
		},
	}

	o.addMatchFlags(cmd)
	f := cmd.Flags()
	f.StringVarP(&mf.input, "input", "i", "", "Match this text instead of files")
	f.StringSliceVar(&mf.extensions, "ext", nil, "Only match files with these extensions inside directories (e.g. .txt)")
	f.IntVar(&mf.workers, "workers", 0, "Number of files matched concurrently (0 means one per CPU)")
	f.BoolVar(&mf.jsonOutput, "json", false, "Output reports in JSON format")
	f.StringVarP(&mf.outPath, "output", "o", "", "Output path (when using JSON)")
	f.BoolVar(&mf.progress, "progress", false, "Show a progress bar while matching directories")
	f.BoolVar(&mf.trace, "trace", false, "Log every matched node (needs --verbose)")
	return cmd
}

func runMatch(ctx context.Context, cmd *cobra.Command, logger *zap.Logger, m *match.Matcher, paths []string, full bool, mf matchFlags) ([]process.Report, error) {
	if len(paths) > 0 {
		opts := process.Options{Extensions: mf.extensions, Workers: mf.workers}
		if mf.progress {
			opts.Progress = cmd.ErrOrStderr()
		}
		return process.Files(ctx, logger, process.NewEvaluator(m, full), paths, opts)
	}

	name, input := "<input>", mf.input
	if !cmd.Flags().Changed("input") {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		name, input = stdinName, string(data)
	}

	r, err := process.Input(ctx, m, input, full)
	if err != nil {
		r.Err = err
	}
	r.Path = name
	return []process.Report{r}, nil
}

// jsonReport is the JSON form of a process.Report.
type jsonReport struct {
	Path     string `json:"path"`
	Accepted bool   `json:"accepted"`
	End      int    `json:"end"`
	Full     bool   `json:"full"`
	Passed   bool   `json:"passed"`
	Line     int    `json:"line,omitempty"`
	Col      int    `json:"col,omitempty"`
	Steps    int    `json:"steps"`
	Error    string `json:"error,omitempty"`
}

func toJSONReports(reports []process.Report) []jsonReport {
	out := make([]jsonReport, 0, len(reports))
	for _, r := range reports {
		jr := jsonReport{
			Path:     r.Path,
			Accepted: r.Result.Accepted,
			End:      r.Result.End,
			Full:     r.Full,
			Passed:   r.Passed,
			Line:     r.Line,
			Col:      r.Col,
			Steps:    r.Result.Stats.Steps,
		}
		if r.Err != nil {
			jr.Error = r.Err.Error()
		}
		out = append(out, jr)
	}
	return out
}

func printReports(w io.Writer, reports []process.Report, mf matchFlags) error {
	if !mf.jsonOutput {
		return formatter.Reports(w, reports)
	}

	d, err := json.MarshalIndent(toJSONReports(reports), "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling reports to JSON: %w", err)
	}
	d = append(d, '\n')
	if mf.outPath == "" {
		_, err = w.Write(d)
		return err
	}
	return os.WriteFile(mf.outPath, d, 0o644)
}
