package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/folkelib/elm/internal/config"
	"github.com/folkelib/elm/internal/ui"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or save the effective configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			Run: func(*cobra.Command, []string) {
				a.showConfig()
			},
		},
		&cobra.Command{
			Use:   "save",
			Short: "Write the effective configuration to ~/.config/elm/.elm.yaml",
			Long: `Write dialect, mapping, naming and debug to ~/.config/elm/.elm.yaml.
The connection string is not saved.`,
			Args: cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				file, err := config.Save(a.cfg)
				if err != nil {
					return fmt.Errorf("failed to save config: %w", err)
				}
				ui.PrintSuccess("Saved %s", file)
				return nil
			},
		},
	)
	return cmd
}

func (a *app) showConfig() {
	source := a.v.ConfigFileUsed()
	if source == "" {
		source = "defaults"
	}
	dsn := "(not set)"
	if a.cfg.DSN != "" {
		dsn = "(set)"
	}
	ui.PrintHeader("elm configuration", source)
	ui.PrintList([]string{
		"dialect: " + a.cfg.Dialect,
		"dsn: " + dsn,
		"mapping: " + a.cfg.MappingPath,
		"naming: " + a.cfg.Naming,
		fmt.Sprintf("debug: %t", a.cfg.Debug),
	})
}
