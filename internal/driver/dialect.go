package driver

import (
	"strconv"
	"strings"

	"dockbench/pkg/benchmark"
)

// dialect captures the SQL differences between engines.
type dialect struct {
	name        string
	quote       func(ident string) string
	placeholder func(n int) string
	types       map[benchmark.ColumnType]string
	// keyTypes overrides types for primary key columns.
	keyTypes  map[benchmark.ColumnType]string
	maxParams int
}

var postgresDialect = dialect{
	name:        "postgresql",
	quote:       doubleQuote,
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	types: map[benchmark.ColumnType]string{
		benchmark.TypeInt:   "BIGINT",
		benchmark.TypeFloat: "DOUBLE PRECISION",
		benchmark.TypeBool:  "BOOLEAN",
		benchmark.TypeDate:  "DATE",
		benchmark.TypeStr:   "TEXT",
	},
	maxParams: 65535,
}

var mysqlDialect = dialect{
	name:        "mysql",
	quote:       func(ident string) string { return "`" + strings.ReplaceAll(ident, "`", "``") + "`" },
	placeholder: func(int) string { return "?" },
	types: map[benchmark.ColumnType]string{
		benchmark.TypeInt:   "BIGINT",
		benchmark.TypeFloat: "DOUBLE",
		benchmark.TypeBool:  "BOOLEAN",
		benchmark.TypeDate:  "DATE",
		benchmark.TypeStr:   "TEXT",
	},
	// TEXT cannot be a key without a prefix length.
	keyTypes: map[benchmark.ColumnType]string{
		benchmark.TypeStr: "VARCHAR(255)",
	},
	maxParams: 65535,
}

var sqliteDialect = dialect{
	name:        "sqlite",
	quote:       doubleQuote,
	placeholder: func(int) string { return "?" },
	types: map[benchmark.ColumnType]string{
		benchmark.TypeInt:   "INTEGER",
		benchmark.TypeFloat: "REAL",
		benchmark.TypeBool:  "BOOLEAN",
		benchmark.TypeDate:  "DATE",
		benchmark.TypeStr:   "TEXT",
	},
	maxParams: 999,
}

func doubleQuote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d dialect) columnType(c benchmark.Column) string {
	if c.PrimaryKey {
		if t, ok := d.keyTypes[c.Type]; ok {
			return t
		}
	}
	return d.types[c.Type]
}

func (d dialect) dropTable(table string) string {
	return "DROP TABLE IF EXISTS " + d.quote(table)
}

func (d dialect) createTable(table string, columns []benchmark.Column) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(d.quote(table))
	b.WriteString(" (")

	var keys []string
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.quote(c.Name))
		b.WriteByte(' ')
		b.WriteString(d.columnType(c))
		if c.PrimaryKey {
			keys = append(keys, d.quote(c.Name))
		}
	}
	if len(keys) > 0 {
		b.WriteString(", PRIMARY KEY (")
		b.WriteString(strings.Join(keys, ", "))
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

// insert builds a multi-row INSERT for rows rows of the given columns.
func (d dialect) insert(table string, columns []string, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.quote(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.quote(c))
	}
	b.WriteString(") VALUES ")

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// rowsPerStatement caps a multi-row INSERT to the engine's parameter limit.
func (d dialect) rowsPerStatement(columns int) int {
	if columns <= 0 {
		return 1
	}
	return max(d.maxParams/columns, 1)
}
