package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Guizzs26/mobilize-sync/internal/models"
)

// Dialect selects placeholder and identifier conventions
type Dialect int

const (
	// Postgres covers PostgreSQL and Redshift
	Postgres Dialect = iota
	Firebird
)

// Column describes one column of a table managed by this service
type Column struct {
	Name         string
	PostgresType string
	FirebirdType string
	Nullable     bool
}

// SyncLogColumns is the audit log layout; models.SyncLogEntry.Values follows this order
var SyncLogColumns = []Column{
	{Name: "mobilizeid", PostgresType: "BIGINT", FirebirdType: "BIGINT"},
	{Name: "actionnetworkid", PostgresType: "VARCHAR(64)", FirebirdType: "VARCHAR(64)", Nullable: true},
	{Name: "synced", PostgresType: "BOOLEAN", FirebirdType: "SMALLINT"},
	// Redshift sizes VARCHAR in bytes, Firebird in characters
	{Name: "errors", PostgresType: fmt.Sprintf("VARCHAR(%d)", models.MaxErrorBytes), FirebirdType: fmt.Sprintf("VARCHAR(%d)", models.MaxErrorLength), Nullable: true},
	{Name: "date", PostgresType: "TIMESTAMP", FirebirdType: "TIMESTAMP"},
	{Name: "run_id", PostgresType: "VARCHAR(36)", FirebirdType: "VARCHAR(36)", Nullable: true},
}

// ColumnNames returns the names of cols in order
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// SQLBuilder generates warehouse statements for a single dialect
type SQLBuilder struct {
	dialect Dialect
}

// NewSQLBuilder initializes a new mapper instance
func NewSQLBuilder(d Dialect) *SQLBuilder {
	return &SQLBuilder{dialect: d}
}

func (b *SQLBuilder) Dialect() Dialect {
	return b.dialect
}

// SplitTable separates an optional schema from a table name
func SplitTable(name string) (schema, table string) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// QuoteIdent quotes a single identifier. Firebird folds unquoted names to uppercase,
// so quoted names are uppercased to keep matching existing tables.
func (b *SQLBuilder) QuoteIdent(name string) string {
	name = strings.TrimSpace(name)
	if b.dialect == Firebird {
		name = strings.ToUpper(name)
	} else {
		name = strings.ToLower(name)
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteTable quotes a possibly schema-qualified table. Firebird has no schemas and drops the qualifier.
func (b *SQLBuilder) QuoteTable(name string) string {
	schema, table := SplitTable(name)
	if schema == "" || b.dialect == Firebird {
		return b.QuoteIdent(table)
	}
	return b.QuoteIdent(schema) + "." + b.QuoteIdent(table)
}

func (b *SQLBuilder) placeholder(n int) string {
	if b.dialect == Firebird {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// BuildSelect generates a bounded projection over tableName
func (b *SQLBuilder) BuildSelect(tableName string, columns []string, limit int) (string, []any, error) {
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("no columns provided for select on table %s", tableName)
	}
	if limit < 1 {
		return "", nil, fmt.Errorf("invalid limit %d for select on table %s", limit, tableName)
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = b.QuoteIdent(c)
	}

	if b.dialect == Firebird {
		// FIRST does not accept a bound parameter on older servers
		query := fmt.Sprintf("SELECT FIRST %d %s FROM %s", limit, strings.Join(quoted, ", "), b.QuoteTable(tableName))
		return query, nil, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s LIMIT $1", strings.Join(quoted, ", "), b.QuoteTable(tableName))
	return query, []any{limit}, nil
}

// BuildInsert generates a single-row INSERT meant to be prepared once and executed per row
func (b *SQLBuilder) BuildInsert(tableName string, columns []string) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("no columns provided for insert on table %s", tableName)
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = b.QuoteIdent(c)
		placeholders[i] = b.placeholder(i + 1)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		b.QuoteTable(tableName),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	), nil
}

// BuildBulkInsert generates a single multi-row INSERT. Every row must match columns in length.
// Firebird has no multi-row VALUES; use BuildInsert there.
func (b *SQLBuilder) BuildBulkInsert(tableName string, columns []string, rows [][]any) (string, []any, error) {
	if b.dialect == Firebird {
		return "", nil, fmt.Errorf("multi-row insert is not supported by the firebird dialect")
	}
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("no columns provided for insert on table %s", tableName)
	}
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("no rows provided for insert on table %s", tableName)
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = b.QuoteIdent(c)
	}

	args := make([]any, 0, len(rows)*len(columns))
	tuples := make([]string, 0, len(rows))
	n := 1
	for r, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("row %d has %d values, expected %d", r, len(row), len(columns))
		}
		placeholders := make([]string, len(row))
		for i, v := range row {
			placeholders[i] = b.placeholder(n)
			args = append(args, v)
			n++
		}
		tuples = append(tuples, "("+strings.Join(placeholders, ", ")+")")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		b.QuoteTable(tableName),
		strings.Join(quoted, ", "),
		strings.Join(tuples, ", "),
	)

	return query, args, nil
}

func (b *SQLBuilder) columnDef(c Column) string {
	typ := c.PostgresType
	if b.dialect == Firebird {
		typ = c.FirebirdType
	}
	def := b.QuoteIdent(c.Name) + " " + typ
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def
}

// BuildCreateTable generates the DDL for a table. Postgres uses IF NOT EXISTS;
// Firebird callers must check RDB$RELATIONS first.
func (b *SQLBuilder) BuildCreateTable(tableName string, columns []Column) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("no columns provided for table %s", tableName)
	}

	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = b.columnDef(c)
	}

	ifNotExists := "IF NOT EXISTS "
	if b.dialect == Firebird {
		ifNotExists = ""
	}

	return fmt.Sprintf("CREATE TABLE %s%s (%s)", ifNotExists, b.QuoteTable(tableName), strings.Join(defs, ", ")), nil
}

// BuildAddColumn generates an ALTER TABLE for a column added after the table existed.
// Added columns are always nullable since existing rows have no value.
func (b *SQLBuilder) BuildAddColumn(tableName string, c Column) string {
	c.Nullable = true
	keyword := "ADD COLUMN "
	if b.dialect == Firebird {
		keyword = "ADD "
	}
	return fmt.Sprintf("ALTER TABLE %s %s%s", b.QuoteTable(tableName), keyword, b.columnDef(c))
}

// MissingColumns returns the wanted columns absent from existing, compared case-insensitively
func MissingColumns(existing []string, wanted []Column) []Column {
	have := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		have[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}

	var missing []Column
	for _, c := range wanted {
		if _, ok := have[strings.ToLower(c.Name)]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// FormatValue converts a Go value to what the dialect's driver accepts.
// Firebird 2.5 has no BOOLEAN, so booleans are stored as SMALLINT 1/0.
func (b *SQLBuilder) FormatValue(v any) any {
	if b.dialect != Firebird {
		return v
	}
	switch val := v.(type) {
	case bool:
		if val {
			return 1
		}
		return 0
	case time.Time:
		// TIMESTAMP has no zone; pgx sends UTC, so Firebird does too
		return val.UTC().Format("2006-01-02 15:04:05")
	default:
		return val
	}
}
