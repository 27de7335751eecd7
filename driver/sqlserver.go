package driver

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/folkelib/elm/mapping"
	"github.com/folkelib/elm/query/sqlgen"
)

// SQLServer is the Microsoft SQL Server driver.
type SQLServer struct {
	base
}

func NewSQLServer() *SQLServer {
	return &SQLServer{base: base{dialect: sqlgen.SQLServer{}, sqlDriver: "sqlserver", types: sqlServerTypes}}
}

func (d *SQLServer) Parameters(args []any) []any {
	return namedParameters(d.dialect, args)
}

func (d *SQLServer) ConvertReaderValue(raw any, p *mapping.PropertyMapping) (any, error) {
	return convertReader(raw, p, readGUID)
}

// readGUID decodes UNIQUEIDENTIFIER bytes, whose first three groups are
// stored little-endian.
func readGUID(raw any) (uuid.UUID, error) {
	b, ok := raw.([]byte)
	if !ok || len(b) != 16 {
		return readUUID(raw)
	}
	return uuid.FromBytes(SwapGUIDBytes(b))
}

// SwapGUIDBytes converts between the SQL Server and RFC 4122 byte orders.
// The conversion is its own inverse.
func SwapGUIDBytes(b []byte) []byte {
	if len(b) != 16 {
		panic(fmt.Sprintf("guid must be 16 bytes, got %d", len(b)))
	}
	out := append([]byte(nil), b...)
	out[0], out[1], out[2], out[3] = b[3], b[2], b[1], b[0]
	out[4], out[5] = b[5], b[4]
	out[6], out[7] = b[7], b[6]
	return out
}

var sqlServerAliases = map[string]string{
	"integer":   "int",
	"float(53)": "float",
	"double":    "float",
}

func (d *SQLServer) EquivalentTypes(live, desired string) bool {
	return sqlServerCanonical(live) == sqlServerCanonical(desired)
}

func sqlServerCanonical(t string) string {
	t = normalizeType(t)
	if a, ok := sqlServerAliases[t]; ok {
		return a
	}
	return strings.ReplaceAll(t, "(-1)", "(max)")
}
