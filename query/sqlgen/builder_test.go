package sqlgen_test

import (
	"testing"

	"github.com/folkelib/elm/query/ast"
	"github.com/folkelib/elm/query/sqlgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pocoByName() *ast.Select {
	return &ast.Select{
		Columns: []ast.Node{
			&ast.Column{Table: "t", Name: "Id"},
			&ast.Column{Table: "t", Name: "Name"},
		},
		From: &ast.Table{Name: "Poco", Alias: "t"},
		Where: &ast.Binary{
			Op:    ast.OpEq,
			Left:  &ast.Column{Table: "t", Name: "Name"},
			Right: &ast.Parameter{Index: 0},
		},
	}
}

func TestRenderSelectPerDialect(t *testing.T) {
	tests := []struct {
		dialect sqlgen.Dialect
		want    string
	}{
		{sqlgen.MySQL{}, "SELECT `t`.`Id`, `t`.`Name` FROM `Poco` AS `t` WHERE (`t`.`Name` = ?)"},
		{sqlgen.Postgres{}, `SELECT "t"."Id", "t"."Name" FROM "Poco" AS "t" WHERE ("t"."Name" = $1)`},
		{sqlgen.SQLServer{}, "SELECT [t].[Id], [t].[Name] FROM [Poco] AS [t] WHERE ([t].[Name] = @Item0)"},
		{sqlgen.SQLite{}, `SELECT "t"."Id", "t"."Name" FROM "Poco" AS "t" WHERE ("t"."Name" = @Item0)`},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name(), func(t *testing.T) {
			q, err := sqlgen.Render(tt.dialect, pocoByName(), []any{"Two"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.SQL)
			assert.Equal(t, []any{"Two"}, q.Args)
		})
	}
}

func TestPositionalArgsFollowEmissionOrder(t *testing.T) {
	sel := &ast.Select{
		From: &ast.Table{Name: "Poco", Alias: "t"},
		Where: &ast.Binary{
			Op:    ast.OpOr,
			Left:  &ast.Binary{Op: ast.OpEq, Left: &ast.Column{Table: "t", Name: "Name"}, Right: &ast.Parameter{Index: 1}},
			Right: &ast.Binary{Op: ast.OpEq, Left: &ast.Column{Table: "t", Name: "Name"}, Right: &ast.Parameter{Index: 0}},
		},
	}
	params := []any{"a", "b"}

	q, err := sqlgen.Render(sqlgen.MySQL{}, sel, params)
	require.NoError(t, err)
	assert.Equal(t, []any{"b", "a"}, q.Args)

	q, err = sqlgen.Render(sqlgen.Postgres{}, sel, params)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, `("t"."Name" = $2) OR ("t"."Name" = $1)`)
	assert.Equal(t, []any{"a", "b"}, q.Args)
}

func TestPagination(t *testing.T) {
	ordered := &ast.Select{
		From:     &ast.Table{Name: "Poco", Alias: "t"},
		OrderBy:  []*ast.OrderBy{{Expr: &ast.Column{Table: "t", Name: "Name"}, Desc: true}},
		SkipTake: &ast.SkipTake{Skip: 1, Take: 2},
	}
	unordered := &ast.Select{
		From:     &ast.Table{Name: "Poco", Alias: "t"},
		SkipTake: &ast.SkipTake{Skip: 5, Take: -1},
	}

	tests := []struct {
		dialect   sqlgen.Dialect
		ordered   string
		unordered string
	}{
		{sqlgen.MySQL{}, "ORDER BY `t`.`Name` DESC LIMIT 2 OFFSET 1", "LIMIT 18446744073709551615 OFFSET 5"},
		{sqlgen.Postgres{}, `ORDER BY "t"."Name" DESC LIMIT 2 OFFSET 1`, `AS "t" OFFSET 5`},
		{sqlgen.SQLServer{}, "ORDER BY [t].[Name] DESC OFFSET 1 ROWS FETCH NEXT 2 ROWS ONLY", "ORDER BY (SELECT NULL) OFFSET 5 ROWS"},
		{sqlgen.SQLite{}, `ORDER BY "t"."Name" DESC LIMIT 2 OFFSET 1`, "LIMIT -1 OFFSET 5"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name(), func(t *testing.T) {
			q, err := sqlgen.Render(tt.dialect, ordered, nil)
			require.NoError(t, err)
			assert.Contains(t, q.SQL, tt.ordered)

			q, err = sqlgen.Render(tt.dialect, unordered, nil)
			require.NoError(t, err)
			assert.Contains(t, q.SQL, tt.unordered)
		})
	}
}

func TestExpressions(t *testing.T) {
	col := &ast.Column{Table: "t", Name: "Price"}
	tests := []struct {
		name string
		node ast.Node
		want string
	}{
		{"null test", &ast.Unary{Op: ast.OpIsNull, Operand: col}, `("t"."Price" IS NULL)`},
		{"not", &ast.Unary{Op: ast.OpNot, Operand: &ast.Binary{Op: ast.OpGt, Left: col, Right: &ast.Constant{Value: 3}}}, `NOT ("t"."Price" > 3)`},
		{"between", &ast.Between{Expr: col, Low: &ast.Constant{Value: 1.5}, High: &ast.Constant{Value: int64(9)}}, `("t"."Price" BETWEEN 1.5 AND 9)`},
		{"in", &ast.In{Expr: col, Values: []ast.Node{&ast.Constant{Value: 1}, &ast.Constant{Value: 2}}}, `("t"."Price" IN (1, 2))`},
		{"empty in", &ast.In{Expr: col}, `(1 = 0)`},
		{"count", &ast.Function{Name: ast.FuncCount}, `COUNT(*)`},
		{"abs", &ast.Function{Name: ast.FuncAbs, Args: []ast.Node{col}}, `ABS("t"."Price")`},
		{"case", &ast.Case{Whens: []ast.When{{Cond: &ast.Binary{Op: ast.OpLt, Left: col, Right: &ast.Constant{Value: 1}}, Then: &ast.Constant{Value: "low"}}}, Else: &ast.Null{}}, `CASE WHEN ("t"."Price" < 1) THEN 'low' ELSE NULL END`},
		{"boolean", &ast.Binary{Op: ast.OpEq, Left: col, Right: &ast.Constant{Value: true}}, `("t"."Price" = 1)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := sqlgen.Render(sqlgen.SQLite{}, tt.node, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.SQL)
		})
	}
}

func TestRenderErrors(t *testing.T) {
	_, err := sqlgen.Render(sqlgen.SQLite{}, &ast.Parameter{Index: 2}, []any{1})
	assert.Error(t, err)

	_, err = sqlgen.Render(sqlgen.SQLite{}, &ast.Constant{Value: struct{}{}}, nil)
	assert.Error(t, err)
}

func TestInsertReadsKeyBack(t *testing.T) {
	ins := &ast.Insert{
		Table:     &ast.Table{Name: "Poco"},
		Columns:   []string{"Name"},
		Values:    []ast.Node{&ast.Parameter{Index: 0}},
		ReturnKey: "Id",
	}

	tests := []struct {
		dialect sqlgen.Dialect
		want    string
	}{
		{sqlgen.MySQL{}, "INSERT INTO `Poco` (`Name`) VALUES (?)"},
		{sqlgen.Postgres{}, `INSERT INTO "Poco" ("Name") VALUES ($1) RETURNING "Id"`},
		{sqlgen.SQLServer{}, "INSERT INTO [Poco] ([Name]) OUTPUT INSERTED.[Id] VALUES (@Item0)"},
		{sqlgen.SQLite{}, `INSERT INTO "Poco" ("Name") VALUES (@Item0)`},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name(), func(t *testing.T) {
			q, err := sqlgen.Render(tt.dialect, ins, []any{"x"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.SQL)
		})
	}

	q, err := sqlgen.Render(sqlgen.MySQL{}, &ast.Insert{Table: &ast.Table{Name: "Empty"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `Empty` () VALUES ()", q.SQL)
}

func TestUpdateAndDelete(t *testing.T) {
	where := &ast.Binary{Op: ast.OpEq, Left: &ast.Column{Name: "Id"}, Right: &ast.Parameter{Index: 1}}

	q, err := sqlgen.Render(sqlgen.Postgres{}, &ast.Update{
		Table: &ast.Table{Schema: "app", Name: "Poco"},
		Set:   []ast.Assignment{{Column: "Name", Value: &ast.Parameter{Index: 0}}},
		Where: where,
	}, []any{"n", 1})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "app"."Poco" SET "Name" = $1 WHERE ("Id" = $2)`, q.SQL)

	q, err = sqlgen.Render(sqlgen.MySQL{}, &ast.Delete{Table: &ast.Table{Name: "Poco"}, Where: where}, []any{"n", 1})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `Poco` WHERE (`Id` = ?)", q.SQL)
	assert.Equal(t, []any{1}, q.Args)
}

func TestDDL(t *testing.T) {
	cols := []sqlgen.ColumnSpec{
		{Name: "Id", SQLType: "INT", PrimaryKey: true, Automatic: true},
		{Name: "Name", SQLType: "VARCHAR(255)"},
		{Name: "Author_id", SQLType: "INT", Nullable: true},
	}
	fks := []sqlgen.ForeignKeySpec{{Name: "FK_Book_Author_id", Column: "Author_id", RefTable: "Author", RefColumn: "Id", OnDelete: "CASCADE"}}
	ix := []sqlgen.IndexSpec{{Name: "ix_name", Columns: []string{"Name"}}}

	got := sqlgen.CreateTable(sqlgen.MySQL{}, "", "Book", cols, fks, ix)
	assert.Equal(t, "CREATE TABLE `Book` (`Id` INT NOT NULL AUTO_INCREMENT PRIMARY KEY, `Name` VARCHAR(255) NOT NULL, `Author_id` INT NULL, "+
		"INDEX `ix_name` (`Name`), CONSTRAINT `FK_Book_Author_id` FOREIGN KEY (`Author_id`) REFERENCES `Author` (`Id`) ON DELETE CASCADE)", got)

	assert.Equal(t, `"Id" INTEGER PRIMARY KEY AUTOINCREMENT`, sqlgen.ColumnDef(sqlgen.SQLite{}, cols[0]))
	assert.Equal(t, `"Id" SERIAL PRIMARY KEY`, sqlgen.ColumnDef(sqlgen.Postgres{}, sqlgen.ColumnSpec{Name: "Id", SQLType: "INTEGER", PrimaryKey: true, Automatic: true}))
	assert.Equal(t, "[Id] INT IDENTITY(1,1) NOT NULL PRIMARY KEY", sqlgen.ColumnDef(sqlgen.SQLServer{}, cols[0]))

	assert.Equal(t, `CREATE INDEX "ix_name" ON "Book" ("Name")`, sqlgen.CreateIndex(sqlgen.SQLite{}, "", "Book", ix[0]))
	assert.Equal(t, `ALTER TABLE "Book" ADD COLUMN "Pages" INTEGER NULL`,
		sqlgen.AlterTable(sqlgen.SQLite{}, "", "Book", sqlgen.SQLite{}.AddColumn(sqlgen.ColumnDef(sqlgen.SQLite{}, sqlgen.ColumnSpec{Name: "Pages", SQLType: "INTEGER", Nullable: true}))))

	alter, err := sqlgen.MySQL{}.AlterColumn("Name", "VARCHAR(100)", false)
	require.NoError(t, err)
	assert.Equal(t, "MODIFY COLUMN `Name` VARCHAR(100) NOT NULL", alter)

	_, err = sqlgen.SQLite{}.AlterColumn("Name", "TEXT", false)
	assert.ErrorIs(t, err, sqlgen.ErrNotSupportedByDialect)
}

func TestForName(t *testing.T) {
	for _, name := range []string{"mysql", "postgres", "postgresql", "sqlserver", "mssql", "sqlite", "sqlite3"} {
		_, err := sqlgen.ForName(name)
		assert.NoError(t, err, name)
	}
	_, err := sqlgen.ForName("oracle")
	assert.Error(t, err)
}
