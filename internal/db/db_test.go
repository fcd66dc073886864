package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Guizzs26/mobilize-sync/internal/mapper"
	"github.com/Guizzs26/mobilize-sync/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const logTable = "mobilize_schema.mobilize_to_actionnetwork_log"

type execCall struct {
	sql  string
	args []any
}

// fakeTx records statements and answers the column introspection query
type fakeTx struct {
	columns  []string
	queryErr error
	execErr  map[string]error

	execs      []execCall
	queryArgs  []any
	queryCalls int
}

func (f *fakeTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: arguments})
	for prefix, err := range f.execErr {
		if strings.HasPrefix(sql, prefix) {
			return pgconn.CommandTag{}, err
		}
	}
	if strings.HasPrefix(sql, "INSERT") {
		return pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", len(arguments)/len(mapper.SyncLogColumns))), nil
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (f *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queryCalls++
	f.queryArgs = args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &stringRows{values: f.columns, pos: -1}, nil
}

// stringRows serves a single text column
type stringRows struct {
	values []string
	pos    int
}

func (r *stringRows) Close()                                       {}
func (r *stringRows) Err() error                                   { return nil }
func (r *stringRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *stringRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stringRows) RawValues() [][]byte                          { return [][]byte{[]byte(r.values[r.pos])} }
func (r *stringRows) Conn() *pgx.Conn                              { return nil }

func (r *stringRows) Next() bool {
	r.pos++
	return r.pos < len(r.values)
}

func (r *stringRows) Scan(dest ...any) error {
	s, ok := dest[0].(*string)
	if !ok {
		return fmt.Errorf("unsupported scan target %T", dest[0])
	}
	*s = r.values[r.pos]
	return nil
}

func (r *stringRows) Values() ([]any, error) {
	return []any{r.values[r.pos]}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPostgresRepo() *PostgresRepository {
	return &PostgresRepository{
		builder:  mapper.NewSQLBuilder(mapper.Postgres),
		logTable: logTable,
		logger:   discardLogger(),
	}
}

func testEntries() []models.SyncLogEntry {
	ts := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	id, msg := "XYZ", "bad phone"
	return []models.SyncLogEntry{
		{RunID: "run-1", MobilizeID: 1, ExternalID: &id, Synced: true, Timestamp: ts},
		{RunID: "run-1", MobilizeID: 2, Error: &msg, Timestamp: ts},
	}
}

func TestPostgresWriteLogAddsMissingColumnsBeforeInsert(t *testing.T) {
	tx := &fakeTx{columns: []string{"mobilizeid", "synced", "errors", "date"}}

	n, err := newTestPostgresRepo().writeLog(context.Background(), tx, testEntries())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Equal(t, 1, tx.queryCalls)
	assert.Equal(t, []any{"mobilize_schema", "mobilize_to_actionnetwork_log"}, tx.queryArgs)

	require.Len(t, tx.execs, 4)
	assert.True(t, strings.HasPrefix(tx.execs[0].sql,
		`CREATE TABLE IF NOT EXISTS "mobilize_schema"."mobilize_to_actionnetwork_log" (`))
	assert.Equal(t,
		`ALTER TABLE "mobilize_schema"."mobilize_to_actionnetwork_log" ADD COLUMN "actionnetworkid" VARCHAR(64)`,
		tx.execs[1].sql)
	assert.Equal(t,
		`ALTER TABLE "mobilize_schema"."mobilize_to_actionnetwork_log" ADD COLUMN "run_id" VARCHAR(36)`,
		tx.execs[2].sql)

	insert := tx.execs[3]
	assert.Equal(t,
		`INSERT INTO "mobilize_schema"."mobilize_to_actionnetwork_log" `+
			`("mobilizeid", "actionnetworkid", "synced", "errors", "date", "run_id") `+
			`VALUES ($1, $2, $3, $4, $5, $6), ($7, $8, $9, $10, $11, $12)`,
		insert.sql)
	require.Len(t, insert.args, 12)
	assert.Equal(t, int64(1), insert.args[0])
	assert.Equal(t, "XYZ", insert.args[1])
	assert.Nil(t, insert.args[7])
	assert.Equal(t, "bad phone", insert.args[9])
}

func TestPostgresWriteLogCurrentSchemaOnlyInserts(t *testing.T) {
	tx := &fakeTx{columns: []string{"mobilizeid", "actionnetworkid", "synced", "errors", "date", "run_id"}}

	_, err := newTestPostgresRepo().writeLog(context.Background(), tx, testEntries())
	require.NoError(t, err)

	require.Len(t, tx.execs, 2)
	assert.True(t, strings.HasPrefix(tx.execs[0].sql, "CREATE TABLE IF NOT EXISTS"))
	assert.True(t, strings.HasPrefix(tx.execs[1].sql, "INSERT INTO"))
}

func TestPostgresWriteLogIntrospectionFailureSkipsInsert(t *testing.T) {
	tx := &fakeTx{queryErr: errors.New("permission denied for information_schema")}

	_, err := newTestPostgresRepo().writeLog(context.Background(), tx, testEntries())
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to inspect log table columns")

	require.Len(t, tx.execs, 1)
	assert.True(t, strings.HasPrefix(tx.execs[0].sql, "CREATE TABLE"))
}

func TestPostgresWriteLogAddColumnFailure(t *testing.T) {
	tx := &fakeTx{
		columns: []string{"mobilizeid", "actionnetworkid", "synced", "errors", "date"},
		execErr: map[string]error{"ALTER TABLE": errors.New("must be owner of table")},
	}

	_, err := newTestPostgresRepo().writeLog(context.Background(), tx, testEntries())
	assert.ErrorContains(t, err, "failed to add column run_id")
	for _, e := range tx.execs {
		assert.False(t, strings.HasPrefix(e.sql, "INSERT"))
	}
}

func TestFirebirdSchemaChanges(t *testing.T) {
	r := &FirebirdRepository{
		builder:  mapper.NewSQLBuilder(mapper.Firebird),
		logTable: logTable,
		logger:   discardLogger(),
	}

	stmts, err := r.schemaChanges(false, nil)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.True(t, strings.HasPrefix(stmts[0], `CREATE TABLE "MOBILIZE_TO_ACTIONNETWORK_LOG" (`))
	assert.Contains(t, stmts[0], `"SYNCED" SMALLINT NOT NULL`)
	assert.Contains(t, stmts[0], `"ERRORS" VARCHAR(999)`)

	stmts, err = r.schemaChanges(true, []string{"MOBILIZEID", "SYNCED", "ERRORS", "DATE"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`ALTER TABLE "MOBILIZE_TO_ACTIONNETWORK_LOG" ADD "ACTIONNETWORKID" VARCHAR(64)`,
		`ALTER TABLE "MOBILIZE_TO_ACTIONNETWORK_LOG" ADD "RUN_ID" VARCHAR(36)`,
	}, stmts)

	stmts, err = r.schemaChanges(true, []string{"MOBILIZEID", "ACTIONNETWORKID", "SYNCED", "ERRORS", "DATE", "RUN_ID"})
	require.NoError(t, err)
	assert.Empty(t, stmts)
}
