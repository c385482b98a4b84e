package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/gmatch/config"
	"github.com/gnolang/gmatch/formatter"
	"github.com/gnolang/gmatch/grammar"
	"github.com/gnolang/gmatch/internal/reload"
	"github.com/gnolang/gmatch/process"
)

func newWatchCmd(o *options) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [input files...]",
		Short: "Recompile the grammar on change and rematch the inputs",
		Long: `Watches the grammar file and the given input files. Whenever one of them changes the
grammar is recompiled if needed and every input is matched again. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, grammarPath, err := o.matchConfig(cmd)
			if err != nil {
				return err
			}

			// report the first compile error with a snippet
			if _, err := o.loadGrammar(cmd, grammarPath); err != nil {
				return err
			}
			r, err := reload.New(grammarPath, o.compileGrammar, o.logger)
			if err != nil {
				return err
			}
			r.SetDebounce(debounce)
			if err := r.Track(args...); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cmd, o, r, cfg, args)
		},
	}
	o.addMatchFlags(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", reload.DefaultDebounce, "Wait this long after a change before reloading")
	return cmd
}

func watch(ctx context.Context, cmd *cobra.Command, o *options, r *reload.Reloader, cfg config.Config, inputs []string) error {
	if err := r.Start(); err != nil {
		return err
	}
	defer r.Stop()
	return rematchLoop(ctx, cmd, o, r.Graph(), r.Events(), cfg, inputs)
}

// rematchLoop matches the inputs against g, then again for every successful reload event.
// Failed reloads print the compile error and keep the previous results.
func rematchLoop(ctx context.Context, cmd *cobra.Command, o *options, g *grammar.Graph, events <-chan reload.Event, cfg config.Config, inputs []string) error {
	out := cmd.OutOrStdout()
	rematch := func(g *grammar.Graph) {
		if len(inputs) == 0 {
			fmt.Fprintf(out, "%s: %d rules\n", g.Name(), len(g.Rules()))
			return
		}
		m, err := o.newMatcher(g, cfg, false)
		if err != nil {
			o.logger.Error("Error creating matcher", zap.Error(err))
			return
		}
		reports, err := process.Files(ctx, o.logger, process.NewEvaluator(m, cfg.Full), inputs, process.Options{})
		if err != nil && ctx.Err() == nil {
			o.logger.Error("Error matching inputs", zap.Error(err))
		}
		if err := formatter.Reports(out, reports); err != nil {
			o.logger.Error("Error writing reports", zap.Error(err))
		}
	}

	rematch(g)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				src, _ := os.ReadFile(ev.Path)
				_ = formatter.CompileError(cmd.ErrOrStderr(), string(src), ev.Err)
				continue
			}
			fmt.Fprintf(out, "-- %s changed\n", ev.Path)
			rematch(ev.Graph)
		}
	}
}
