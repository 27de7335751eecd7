package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/folkelib/elm/internal/ui"
	"github.com/folkelib/elm/migrate/introspect"
)

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the live database",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "tables",
			Short: "List tables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.tables(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "columns <table>",
			Short: "List the columns of a table",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.columns(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}

func (a *app) tables(ctx context.Context) error {
	drv, db, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tables, err := drv.TableDefinitions(ctx, db)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		ui.PrintInfo("No tables")
		return nil
	}
	rows := make([][]string, len(tables))
	for i, t := range tables {
		rows[i] = []string{t.Schema, t.Name}
	}
	return ui.PrintTable([]string{"Schema", "Table"}, rows)
}

// findTable matches "name" or "schema.name" case-insensitively.
func findTable(tables []introspect.TableDefinition, name string) (introspect.TableDefinition, bool) {
	schema, table := "", name
	if i := strings.LastIndex(name, "."); i >= 0 {
		schema, table = name[:i], name[i+1:]
	}
	for _, t := range tables {
		if strings.EqualFold(t.Name, table) && (schema == "" || strings.EqualFold(t.Schema, schema)) {
			return t, true
		}
	}
	return introspect.TableDefinition{}, false
}

func (a *app) columns(ctx context.Context, name string) error {
	drv, db, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tables, err := drv.TableDefinitions(ctx, db)
	if err != nil {
		return err
	}
	t, ok := findTable(tables, name)
	if !ok {
		return fmt.Errorf("table %s not found", name)
	}
	cols, err := drv.ColumnDefinitions(ctx, db, t.Schema, t.Name)
	if err != nil {
		return err
	}

	rows := make([][]string, len(cols))
	for i, c := range cols {
		def := ""
		if c.Default != nil {
			def = *c.Default
		}
		var flags []string
		if c.PrimaryKey {
			flags = append(flags, "primary key")
		}
		if c.AutoIncrement {
			flags = append(flags, "auto")
		}
		rows[i] = []string{c.Name, c.Type, yesNo(c.Nullable), def, strings.Join(flags, ", ")}
	}
	return ui.PrintTable([]string{"Column", "Type", "Nullable", "Default", "Key"}, rows)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
