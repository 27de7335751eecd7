package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/folkelib/elm/driver"
	"github.com/folkelib/elm/internal/ui"
	"github.com/folkelib/elm/mapping"
)

func newDescribeCmd(a *app) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Show how each mapped type maps to tables and columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			drv, err := a.driver()
			if err != nil {
				return err
			}
			_, tms, err := a.mappings()
			if err != nil {
				return err
			}
			md := describe(drv, tms)
			if raw {
				fmt.Fprint(ui.Out, md)
				return nil
			}
			return ui.PrintMarkdown(md)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown source")
	return cmd
}

// describe renders the mappings as a markdown document.
func describe(drv driver.Driver, tms []*mapping.TypeMapping) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Mapping (%s)\n", drv.Name())
	for _, tm := range tms {
		fmt.Fprintf(&b, "\n## %s\n\nTable `%s`", tm.Name, tm.QualifiedName())
		if tm.Key != nil {
			fmt.Fprintf(&b, ", key `%s`", tm.Key.Name)
		}
		b.WriteString("\n\n| Property | Column | Type | Null | Notes |\n|---|---|---|---|---|\n")
		for _, p := range tm.Columns() {
			var notes []string
			if p.IsKey {
				notes = append(notes, "key")
			}
			if p.IsAutomatic {
				notes = append(notes, "auto")
			}
			if p.IsReference() {
				notes = append(notes, "→ "+p.Reference.Name)
			}
			if p.Index != "" {
				notes = append(notes, "index "+p.Index)
			}
			if p.OnDelete != mapping.ActionNone {
				notes = append(notes, "on delete "+strings.ToLower(string(p.OnDelete)))
			}
			null := "no"
			if p.Nullable {
				null = "yes"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				p.Name, p.ColumnName, drv.SQLType(p, p.IsReference()), null, strings.Join(notes, ", "))
		}
		if len(tm.Collections) > 0 {
			names := make([]string, 0, len(tm.Collections))
			for name := range tm.Collections {
				names = append(names, name)
			}
			sort.Strings(names)
			b.WriteString("\nCollections:\n\n")
			for _, name := range names {
				c := tm.Collections[name]
				fmt.Fprintf(&b, "- `%s`: %s by `%s`\n", name, c.Element.Name, c.ForeignKey.Name)
			}
		}
	}
	return b.String()
}
