package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/folkelib/elm/internal/ui"
	"github.com/folkelib/elm/query/builder"
	"github.com/folkelib/elm/query/exprparse"
	"github.com/folkelib/elm/query/sqlgen"
)

type compileOptions struct {
	typeName string
	where    string
	orderBy  string
	desc     bool
	limit    string
}

func newQueryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Work with queries over the mapping",
	}

	var opts compileOptions
	compile := &cobra.Command{
		Use:   "compile",
		Short: "Print the SQL and parameters of a query",
		Example: `  elm query compile --type Poco --where 'Name == "Two"'
  elm query compile --type Book --where 'Author.Name.StartsWith("Le")' --order-by Title --limit 0,10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := a.compile(opts)
			if err != nil {
				return err
			}
			ui.PrintStatement(q.SQL, true)
			ui.PrintArgs(q.Args)
			return nil
		},
	}
	f := compile.Flags()
	f.StringVarP(&opts.typeName, "type", "t", "", "mapped type to select")
	f.StringVarP(&opts.where, "where", "w", "", "filter expression")
	f.StringVar(&opts.orderBy, "order-by", "", "member path to sort by")
	f.BoolVar(&opts.desc, "desc", false, "sort descending")
	f.StringVar(&opts.limit, "limit", "", "offset,count")
	_ = compile.MarkFlagRequired("type")

	cmd.AddCommand(compile)
	return cmd
}

func parseLimit(s string) (offset, count int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid limit %q, want offset,count", s)
	}
	if offset, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return 0, 0, fmt.Errorf("invalid limit offset: %w", err)
	}
	if count, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
		return 0, 0, fmt.Errorf("invalid limit count: %w", err)
	}
	return offset, count, nil
}

// compile renders a query without a connection.
func (a *app) compile(opts compileOptions) (*sqlgen.Query, error) {
	drv, err := a.driver()
	if err != nil {
		return nil, err
	}
	m, _, err := a.mappings()
	if err != nil {
		return nil, err
	}
	tm, err := m.ByName(opts.typeName)
	if err != nil {
		return nil, err
	}

	d := drv.Dialect()
	q := builder.NewQuery(m, d, tm, builder.Static(m, d))
	if opts.where != "" {
		e, err := exprparse.Parse(q.Root(), opts.where)
		if err != nil {
			return nil, err
		}
		q.Where(e)
	}
	if opts.orderBy != "" {
		member, err := exprparse.ParseMember(q.Root(), opts.orderBy)
		if err != nil {
			return nil, err
		}
		q.OrderBy(member)
		if opts.desc {
			q.Desc()
		}
	}
	if opts.limit != "" {
		offset, count, err := parseLimit(opts.limit)
		if err != nil {
			return nil, err
		}
		q.Limit(offset, count)
	}
	return q.SQL()
}
