// Package cli implements the sqlkit command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/rzpsarthak13/sqlkit/pkg/sqlkit"
)

// Opener opens a client for cfg.
type Opener func(cfg *sqlkit.Config) (*sqlkit.Client, error)

type app struct {
	configPath string
	verbose    bool
	open       Opener
	out        io.Writer
}

// NewRootCommand builds the sqlkit command tree. A nil open uses sqlkit.Open.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = func(cfg *sqlkit.Config) (*sqlkit.Client, error) { return sqlkit.Open(cfg) }
	}
	a := &app{open: open}

	root := &cobra.Command{
		Use:           "sqlkit",
		Short:         "MySQL schema cache and DDL tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.out = cmd.OutOrStdout()
			if !a.verbose {
				log.SetOutput(io.Discard)
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (.yaml, .yml or .json)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log every statement")

	root.AddCommand(a.dbCommand(), a.tableNameCommand())
	return root
}

// withClient loads the config, points it at database when given, and runs fn
// with a client that is closed afterwards.
func (a *app) withClient(ctx context.Context, database string, fn func(ctx context.Context, c *sqlkit.Client) error) error {
	cfg, err := sqlkit.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if database != "" {
		cfg.Database.Name = database
	}
	if a.verbose {
		cfg.Database.LogQueries = true
	}

	c, err := a.open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", cfg.Database.Name, err)
	}
	defer c.Close()
	return fn(ctx, c)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
