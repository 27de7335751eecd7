// Package commands implements the elm command line.
package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/folkelib/elm/driver"
	"github.com/folkelib/elm/internal/config"
	"github.com/folkelib/elm/internal/debug"
	"github.com/folkelib/elm/internal/ui"
	"github.com/folkelib/elm/internal/version"
	"github.com/folkelib/elm/mapping"
)

// app carries the configuration shared by every command.
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "elm",
		Short: "Schema and query tooling for elm mappings",
		Long: `elm works from a YAML mapping descriptor (elm.yaml by default).

Examples:

  elm schema create               # print CREATE statements
  elm schema sync --yes           # bring the database in line with the mapping
  elm db tables                   # list live tables
  elm query compile --type Book --where 'Author.Name == "Le Guin"'
  elm describe                    # render the mapping as markdown
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("dialect", "", "database dialect: mysql, postgres, sqlserver or sqlite")
	flags.String("dsn", "", "connection string (defaults to $DATABASE_URL)")
	flags.StringP("mapping", "m", "", "mapping descriptor file")
	flags.String("naming", "", "naming strategy: default or snake_plural")
	flags.Bool("debug", false, "log executed statements")

	root.AddCommand(
		newSchemaCmd(a),
		newDBCmd(a),
		newQueryCmd(a),
		newDescribeCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// Execute is the main entry point for the CLI
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		ui.PrintError("%v", err)
	}
	return err
}

func (a *app) load(cmd *cobra.Command) error {
	v, err := config.New()
	if err != nil {
		return err
	}
	for _, name := range []string{"dialect", "dsn", "mapping", "naming", "debug"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(name, f); err != nil {
				return err
			}
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	debug.Init(cfg.Debug)

	if cfg.Requires != "" {
		ok, err := version.Get().Satisfies(cfg.Requires)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("configuration requires elm %s, this is %s", cfg.Requires, version.Version)
		}
	}
	a.v, a.cfg = v, cfg
	return nil
}

func (a *app) driver() (driver.Driver, error) {
	return driver.ForName(a.cfg.Dialect)
}

// mappings loads the descriptor and returns its table mappings.
func (a *app) mappings() (*mapping.Mapper, []*mapping.TypeMapping, error) {
	m, err := a.cfg.Mapper()
	if err != nil {
		return nil, nil, err
	}
	tms, err := config.Mappings(m)
	if err != nil {
		return nil, nil, err
	}
	return m, tms, nil
}

// open connects to the configured database.
func (a *app) open(ctx context.Context) (driver.Driver, *sql.DB, error) {
	drv, err := a.driver()
	if err != nil {
		return nil, nil, err
	}
	if a.cfg.DSN == "" {
		return nil, nil, fmt.Errorf("no connection string: set dsn in .elm.yaml, ELM_DSN or DATABASE_URL")
	}
	db, err := drv.Open(a.cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect: %w", err)
	}
	return drv, db, nil
}
