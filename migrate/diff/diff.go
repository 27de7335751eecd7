// Package diff synchronizes database tables with type mappings. Changes are
// additive: tables and columns are created or altered, never dropped,
// except through DropTable.
package diff

import "strings"

// ChangeType represents the type of change
type ChangeType string

const (
	ChangeTypeCreateTable   ChangeType = "CreateTable"
	ChangeTypeDropTable     ChangeType = "DropTable"
	ChangeTypeAlterTable    ChangeType = "AlterTable"
	ChangeTypeAddColumn     ChangeType = "AddColumn"
	ChangeTypeAlterColumn   ChangeType = "AlterColumn"
	ChangeTypeCreateIndex   ChangeType = "CreateIndex"
	ChangeTypeAddForeignKey ChangeType = "AddForeignKey"
)

// Change represents a single schema change
type Change struct {
	Type        ChangeType
	Table       string
	Column      string
	Description string
	SQL         string
	IsSafe      bool
}

// Plan is the list of changes bringing one table in line with its mapping.
type Plan struct {
	Table    string
	Create   bool
	Changes  []Change
	Warnings []string
}

// Empty reports whether the table already matches.
func (p *Plan) Empty() bool { return len(p.Changes) == 0 }

// Statements returns the SQL of each change in execution order.
func (p *Plan) Statements() []string {
	out := make([]string, len(p.Changes))
	for i, c := range p.Changes {
		out[i] = c.SQL
	}
	return out
}

func (p *Plan) add(c Change) {
	c.Table = p.Table
	p.Changes = append(p.Changes, c)
}

func (p *Plan) warn(msg string) {
	p.Warnings = append(p.Warnings, msg)
}

// String renders the plan as SQL script text.
func (p *Plan) String() string {
	var b strings.Builder
	for _, s := range p.Statements() {
		b.WriteString(s)
		b.WriteString(";\n")
	}
	return b.String()
}
