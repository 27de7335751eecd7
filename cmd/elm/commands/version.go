package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/folkelib/elm/internal/ui"
	"github.com/folkelib/elm/internal/version"
)

func newVersionCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// No configuration needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(*cobra.Command, []string) {
			info := version.Get()
			if full {
				fmt.Fprintln(ui.Out, info.FullString())
				return
			}
			fmt.Fprintln(ui.Out, info.String())
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "include build details")
	return cmd
}
