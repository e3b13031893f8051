package cli

import (
	"context"
	"fmt"

	"github.com/go-openapi/inflect"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rzpsarthak13/sqlkit/internal/schemacache"
	"github.com/rzpsarthak13/sqlkit/pkg/sqlkit"
)

// maxParallel bounds the databases introspected at once by "db schema".
const maxParallel = 4

func (a *app) dbCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database schema, DDL and collation commands",
	}
	cmd.AddCommand(a.schemaCommand(), a.ddlCommand(), a.buildCommand(), a.collateCommand())
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func (a *app) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [database...]",
		Short: "Rebuild the cached column layout of one or more databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{""}
			}
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxParallel)
			results := make([]string, len(args))
			for i, name := range args {
				g.Go(func() error {
					return a.withClient(ctx, name, func(ctx context.Context, c *sqlkit.Client) error {
						s, err := c.Conn().BuildSchema(ctx, true)
						if err != nil {
							return fmt.Errorf("failed to build schema of %s: %w", c.Conn().Name(), err)
						}
						results[i] = fmt.Sprintf("Schema of %s: %d %s\n", s.Database, len(s.Tables),
							plural("table", len(s.Tables)))
						return nil
					})
				})
			}
			err := g.Wait()
			for _, r := range results {
				a.printf("%s", r)
			}
			return err
		},
	}
}

func (a *app) ddlCommand() *cobra.Command {
	var copyTo string
	cmd := &cobra.Command{
		Use:   "ddl [database]",
		Short: "Store the table definitions of a database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), firstArg(args), func(ctx context.Context, c *sqlkit.Client) error {
				key := ""
				if copyTo != "" {
					key = schemacache.DDLKey(copyTo)
				}
				key, err := c.Conn().BuildDDL(ctx, key)
				if err != nil {
					return err
				}
				a.printf("DDL of %s stored as %s\n", c.Conn().Name(), key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&copyTo, "copy", "", "store the definitions for this database name instead")
	return cmd
}

func (a *app) buildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "build [database]",
		Short: "Create the tables of a database from its stored DDL",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), firstArg(args), func(ctx context.Context, c *sqlkit.Client) error {
				ok, err := c.Conn().Build(ctx)
				if err != nil {
					return err
				}
				if !ok {
					a.printf("No DDL stored for %s\n", c.Conn().Name())
					return nil
				}
				a.printf("Built %s\n", c.Conn().Name())
				return nil
			})
		},
	}
}

func (a *app) collateCommand() *cobra.Command {
	var charset, collation string
	cmd := &cobra.Command{
		Use:   "collate [database]",
		Short: "Convert a database and its tables to a charset and collation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), firstArg(args), func(ctx context.Context, c *sqlkit.Client) error {
				if err := c.Conn().Collate(ctx, charset, collation); err != nil {
					return err
				}
				a.printf("Collated %s\n", c.Conn().Name())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&charset, "charset", "", "character set (default: configured)")
	cmd.Flags().StringVar(&collation, "collation", "", "collation (default: configured)")
	return cmd
}

// tableNameCommand prints the table a model name maps to.
func (a *app) tableNameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "table-name <Model>...",
		Short: "Print the table name derived from model names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				a.printf("%s\t%s\n", name, inflect.Pluralize(inflect.Underscore(name)))
			}
			return nil
		},
	}
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return inflect.Pluralize(word)
}
