package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folkelib/elm/internal/ui"
)

const descriptor = `
types:
  - name: Author
    properties:
      - {name: Id, type: int64}
      - {name: Name, type: string, size: 100}
    collections:
      - {name: Books, element: Book}
  - name: Book
    properties:
      - {name: Id, type: int64}
      - {name: Title, type: string, index: ix_book_title}
      - {name: Author, reference: Author, ondelete: cascade}
`

type fixture struct {
	mapping string
	dsn     string
	out     *bytes.Buffer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		mapping: filepath.Join(dir, "elm.yaml"),
		dsn:     filepath.Join(dir, "test.db"),
		out:     &bytes.Buffer{},
	}
	require.NoError(t, os.WriteFile(f.mapping, []byte(descriptor), 0o644))

	oldOut, oldErr, oldNoColor := ui.Out, ui.Err, color.NoColor
	ui.Out, ui.Err, color.NoColor = f.out, f.out, true
	t.Cleanup(func() { ui.Out, ui.Err, color.NoColor = oldOut, oldErr, oldNoColor })
	t.Setenv("DATABASE_URL", "")
	return f
}

func (f *fixture) run(t *testing.T, args ...string) error {
	t.Helper()
	f.out.Reset()
	root := NewRootCmd()
	root.SetArgs(append([]string{"--dialect", "sqlite", "--mapping", f.mapping, "--dsn", f.dsn}, args...))
	root.SetOut(f.out)
	root.SetErr(f.out)
	return root.Execute()
}

func TestSchemaCreatePrintsDDL(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.run(t, "schema", "create"))
	out := f.out.String()
	assert.Contains(t, out, `CREATE TABLE "Author" ("Id" INTEGER PRIMARY KEY AUTOINCREMENT, "Name" TEXT NOT NULL);`)
	assert.Contains(t, out, `REFERENCES "Author" ("Id") ON DELETE CASCADE`)
	assert.Contains(t, out, `CREATE INDEX "ix_book_title" ON "Book" ("Title");`)
	assert.Less(t, bytes.Index(f.out.Bytes(), []byte(`CREATE TABLE "Author"`)), bytes.Index(f.out.Bytes(), []byte(`CREATE TABLE "Book"`)))
}

func TestSchemaSyncThenInspect(t *testing.T) {
	f := setup(t)

	asked := ""
	old := confirm
	confirm = func(msg string) (bool, error) {
		asked = msg
		return false, nil
	}
	t.Cleanup(func() { confirm = old })

	require.NoError(t, f.run(t, "schema", "sync"))
	assert.Equal(t, "Apply 3 statement(s)?", asked)
	assert.Contains(t, f.out.String(), "Nothing applied")

	require.NoError(t, f.run(t, "db", "tables"))
	assert.Contains(t, f.out.String(), "No tables")

	require.NoError(t, f.run(t, "schema", "sync", "--yes"))
	assert.Contains(t, f.out.String(), "Applied 3 statement(s)")

	require.NoError(t, f.run(t, "schema", "sync", "--yes"))
	assert.Contains(t, f.out.String(), "Database is in sync")

	require.NoError(t, f.run(t, "db", "tables"))
	assert.Contains(t, f.out.String(), "Author")
	assert.Contains(t, f.out.String(), "Book")

	require.NoError(t, f.run(t, "db", "columns", "book"))
	out := f.out.String()
	assert.Contains(t, out, "Author_id")
	assert.Contains(t, out, "primary key")

	err := f.run(t, "db", "columns", "Missing")
	assert.ErrorContains(t, err, "table Missing not found")
}

func TestQueryCompile(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.run(t, "query", "compile",
		"--type", "Book",
		"--where", `Author.Name == "Le Guin" && Id > 2`,
		"--order-by", "Title", "--desc",
		"--limit", "5,10"))
	out := f.out.String()
	assert.Contains(t, out, `FROM "Book" AS "t" LEFT JOIN "Author" AS "t1" ON ("t1"."Id" = "t"."Author_id")`)
	assert.Contains(t, out, `WHERE (("t1"."Name" = @Item0) AND ("t"."Id" > 2))`)
	assert.Contains(t, out, `ORDER BY "t"."Title" DESC LIMIT 10 OFFSET 5;`)
	assert.Contains(t, out, `[0] "Le Guin"`)

	assert.Error(t, f.run(t, "query", "compile", "--type", "Book", "--where", "Title =="))
	assert.Error(t, f.run(t, "query", "compile", "--type", "Nope"))
	assert.Error(t, f.run(t, "query", "compile"))
}

func TestDescribeRaw(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.run(t, "describe", "--raw"))
	out := f.out.String()
	assert.Contains(t, out, "# Mapping (sqlite)")
	assert.Contains(t, out, "## Book")
	assert.Contains(t, out, "| Author | Author_id | INTEGER | yes | → Author, on delete cascade |")
	assert.Contains(t, out, "- `Books`: Book by `Author`")
}

func TestVersion(t *testing.T) {
	f := setup(t)

	require.NoError(t, f.run(t, "version"))
	assert.Contains(t, f.out.String(), "elm version ")
}

func TestConfigShowAndSave(t *testing.T) {
	f := setup(t)
	home := t.TempDir()
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	t.Setenv("HOME", home)

	require.NoError(t, f.run(t, "config", "show"))
	out := f.out.String()
	assert.Contains(t, out, "elm configuration")
	assert.Contains(t, out, "• dialect: sqlite")
	assert.Contains(t, out, "• dsn: (set)")
	assert.Contains(t, out, "• mapping: "+f.mapping)

	require.NoError(t, f.run(t, "config", "save"))
	file := filepath.Join(home, ".config", "elm", ".elm.yaml")
	assert.Contains(t, f.out.String(), "Saved "+file)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dialect: sqlite")
	assert.NotContains(t, string(data), f.dsn)
}

func TestMissingMapping(t *testing.T) {
	f := setup(t)
	f.mapping = filepath.Join(t.TempDir(), "none.yaml")

	err := f.run(t, "schema", "create")
	assert.ErrorContains(t, err, "not found")
}

func TestParseLimit(t *testing.T) {
	off, n, err := parseLimit("1, 2")
	require.NoError(t, err)
	assert.Equal(t, 1, off)
	assert.Equal(t, 2, n)

	for _, bad := range []string{"3", "a,2", "1,b", ""} {
		_, _, err := parseLimit(bad)
		assert.Error(t, err, bad)
	}
}
