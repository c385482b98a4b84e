package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/gmatch/config"
	"github.com/gnolang/gmatch/formatter"
	"github.com/gnolang/gmatch/grammar"
	"github.com/gnolang/gmatch/internal/cache"
	"github.com/gnolang/gmatch/match"
)

const defaultTimeout = 5 * time.Minute

// ErrFailed is returned when a command ran but reported failures, such as inputs that did
// not pass or a grammar that did not compile. The details have already been printed.
var ErrFailed = errors.New("gmatch: failures reported")

// options holds the global flags and what is derived from them.
type options struct {
	cfgFile  string
	timeout  time.Duration
	verbose  bool
	cacheDir string

	// grammar and matcher flags shared by match, watch and test
	grammarFile string
	start       string
	maxSteps    int
	memoize     bool
	full        bool

	logger *zap.Logger
}

// NewRootCmd builds the gmatch command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}

	rootCmd := &cobra.Command{
		Use:           "gmatch",
		Short:         "gmatch - compile EBNF grammars and match text against them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(o.verbose)
			if err != nil {
				return err
			}
			o.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = o.logger.Sync()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&o.cfgFile, "config", config.DefaultPath, "Path to the project configuration file")
	pf.DurationVar(&o.timeout, "timeout", defaultTimeout, "Set a timeout for the command")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "Enable verbose logging")
	pf.StringVar(&o.cacheDir, "cache-dir", "", "Cache compiled grammars in this directory")

	rootCmd.AddCommand(
		newInitCmd(o),
		newCompileCmd(o),
		newMatchCmd(o),
		newTestCmd(o),
		newExportCmd(o),
		newWatchCmd(o),
	)
	return rootCmd
}

// Execute runs the gmatch command line.
func Execute() error {
	return NewRootCmd().Execute()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func (o *options) addMatchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.grammarFile, "grammar", "g", "", "Grammar file (default: the one named in the configuration)")
	f.StringVar(&o.start, "start", "", "Rule to match from (default: "+grammar.RootName+")")
	f.IntVar(&o.maxSteps, "max-steps", 0, "Abort a match after this many steps (0 means unlimited)")
	f.BoolVar(&o.memoize, "memo", false, "Memoize results per rule and position")
	f.BoolVar(&o.full, "full", false, "Require the whole input to match")
}

// loadConfig reads the configuration file. A missing file is only an error when --config was
// given explicitly; otherwise an empty configuration is used.
func (o *options) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.cfgFile)
	if err == nil {
		if cfg.Timeout > 0 && !cmd.Flags().Changed("timeout") {
			o.timeout = cfg.Timeout
		}
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		o.logger.Debug("No configuration file", zap.String("path", o.cfgFile))
		return config.Config{}, nil
	}
	return cfg, err
}

// matchConfig merges the configuration with the command line flags, flags winning.
func (o *options) matchConfig(cmd *cobra.Command) (config.Config, string, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return cfg, "", err
	}

	f := cmd.Flags()
	if f.Changed("start") {
		cfg.Start = o.start
	}
	if f.Changed("max-steps") {
		cfg.MaxSteps = o.maxSteps
	}
	if f.Changed("memo") {
		cfg.Memoize = o.memoize
	}
	if f.Changed("full") {
		cfg.Full = o.full
	}
	if err := cfg.Validate(); err != nil {
		return cfg, "", err
	}

	path := o.grammarFile
	if path == "" {
		path = cfg.GrammarPath()
	}
	if path == "" {
		return cfg, "", fmt.Errorf("no grammar given: use --grammar or set grammar in %s", o.cfgFile)
	}
	return cfg, path, nil
}

// compileGrammar compiles path, through the cache when one is configured.
func (o *options) compileGrammar(path string) (*grammar.Graph, error) {
	if o.cacheDir != "" {
		c, err := cache.New(o.cacheDir, o.logger)
		if err != nil {
			return nil, err
		}
		return c.Compile(path)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return grammar.CompileNamed(path, string(src))
}

// loadGrammar compiles path and prints grammar errors with a source snippet.
func (o *options) loadGrammar(cmd *cobra.Command, path string) (*grammar.Graph, error) {
	g, err := o.compileGrammar(path)
	if err == nil {
		o.logger.Debug("Compiled grammar", zap.String("path", path), zap.Int("rules", len(g.Rules())), zap.Int("nodes", g.Len()))
		return g, nil
	}
	if !isGrammarError(err) {
		return nil, err
	}

	src, rerr := os.ReadFile(path)
	if rerr != nil {
		return nil, err
	}
	if ferr := formatter.CompileError(cmd.ErrOrStderr(), string(src), err); ferr != nil {
		return nil, ferr
	}
	return nil, ErrFailed
}

func isGrammarError(err error) bool {
	var (
		cerr *grammar.CompileError
		perr *grammar.PatternError
	)
	return errors.As(err, &cerr) || errors.As(err, &perr)
}

func (o *options) newMatcher(g *grammar.Graph, cfg config.Config, trace bool) (*match.Matcher, error) {
	opts := match.Options{
		Start:    cfg.Start,
		MaxSteps: cfg.MaxSteps,
		Memoize:  cfg.Memoize,
	}
	if trace {
		opts.Logger = o.logger
	}
	return match.New(g, opts)
}

func (o *options) context() (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), o.timeout)
}
