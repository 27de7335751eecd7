package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/folkelib/elm/internal/ui"
	"github.com/folkelib/elm/internal/watch"
	"github.com/folkelib/elm/migrate/diff"
)

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create or synchronize tables from the mapping",
	}
	cmd.AddCommand(newSchemaCreateCmd(a), newSchemaSyncCmd(a))
	return cmd
}

func newSchemaCreateCmd(a *app) *cobra.Command {
	var watchMode bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Print the statements creating every mapped table",
		Long: `Print CREATE TABLE, CREATE INDEX and foreign key statements for the
mapping in the configured dialect. Nothing is executed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !watchMode {
				return a.printCreate()
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watchCreate(ctx)
		},
	}
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "reprint whenever the mapping file changes")
	return cmd
}

func (a *app) printCreate() error {
	drv, err := a.driver()
	if err != nil {
		return err
	}
	_, tms, err := a.mappings()
	if err != nil {
		return err
	}
	plans, err := diff.New(drv, nil).PlanCreateAll(tms...)
	if err != nil {
		return err
	}
	for _, p := range plans {
		for _, c := range p.Changes {
			ui.PrintStatement(c.SQL, true)
		}
		for _, w := range p.Warnings {
			ui.PrintWarning("%s: %s", p.Table, w)
		}
	}
	return nil
}

func (a *app) watchCreate(ctx context.Context) error {
	w, err := watch.New(a.cfg.MappingPath, func() error {
		ui.PrintSection(fmt.Sprintf("%s (%s)", a.cfg.MappingPath, a.cfg.Dialect))
		if err := a.printCreate(); err != nil {
			ui.PrintError("%v", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	ui.PrintInfo("Watching %s for changes... (Press Ctrl+C to stop)", a.cfg.MappingPath)
	return w.Run(ctx)
}

func newSchemaSyncCmd(a *app) *cobra.Command {
	var yes, dryRun bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Create missing tables and add or alter columns to match the mapping",
		Long: `Compare the mapping with the live database and apply the difference.
Tables and columns are never dropped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.sync(cmd.Context(), yes, dryRun)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "apply without asking")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan only")
	return cmd
}

// confirm asks before applying; replaced in tests.
var confirm = func(message string) (bool, error) {
	ok := false
	err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok)
	return ok, err
}

func (a *app) sync(ctx context.Context, yes, dryRun bool) error {
	_, tms, err := a.mappings()
	if err != nil {
		return err
	}
	drv, db, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	s := diff.New(drv, db)
	plans, err := s.PlanAll(ctx, tms...)
	if err != nil {
		return err
	}

	total, unsafe := 0, 0
	for _, p := range plans {
		for _, w := range p.Warnings {
			ui.PrintWarning("%s: %s", p.Table, w)
		}
		for _, c := range p.Changes {
			ui.PrintStatement(c.SQL, c.IsSafe)
			total++
			if !c.IsSafe {
				unsafe++
			}
		}
	}
	if total == 0 {
		ui.PrintSuccess("Database is in sync with %s", a.cfg.MappingPath)
		return nil
	}
	if dryRun {
		return nil
	}

	if !yes {
		msg := fmt.Sprintf("Apply %d statement(s)?", total)
		if unsafe > 0 {
			msg = fmt.Sprintf("Apply %d statement(s), %d altering existing columns?", total, unsafe)
		}
		ok, err := confirm(msg)
		if err != nil {
			return err
		}
		if !ok {
			ui.PrintInfo("Nothing applied")
			return nil
		}
	}

	if err := s.Apply(ctx, plans...); err != nil {
		return err
	}
	ui.PrintSuccess("Applied %d statement(s)", total)
	return nil
}
