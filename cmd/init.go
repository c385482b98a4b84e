package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/gmatch/config"
)

// sampleGrammar accepts greetings such as "hello, world".
const sampleGrammar = `Greeting ::= Salute, ",", Name ;
Salute   ::= "hello" | "hi" ;
Name     ::= "world" | "there" ;
`

func newInitCmd(o *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file and a sample grammar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := initProject(o.cfgFile, force)
			if err != nil {
				o.logger.Error("Error initializing project", zap.Error(err))
				return err
			}
			for _, path := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing configuration file")
	return cmd
}

// initProject writes the default configuration to cfgPath and, when it does not exist yet,
// the sample grammar next to it. It returns the files it wrote.
func initProject(cfgPath string, force bool) ([]string, error) {
	if cfgPath == "" {
		cfgPath = config.DefaultPath
	}
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return nil, fmt.Errorf("%s already exists, use --force to overwrite", cfgPath)
	}

	cfg := config.Default()
	if err := config.Write(cfgPath, cfg); err != nil {
		return nil, err
	}
	created := []string{cfgPath}

	grammarPath := filepath.Join(filepath.Dir(cfgPath), cfg.Grammar)
	_, err := os.Stat(grammarPath)
	switch {
	case err == nil:
		return created, nil
	case !errors.Is(err, fs.ErrNotExist):
		return created, err
	}
	if err := os.WriteFile(grammarPath, []byte(sampleGrammar), 0o644); err != nil {
		return created, err
	}
	return append(created, grammarPath), nil
}
