package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Guizzs26/mobilize-sync/internal/mapper"
	"github.com/Guizzs26/mobilize-sync/internal/models"
	"github.com/Guizzs26/mobilize-sync/pkg/encoding"

	_ "github.com/nakagami/firebirdsql"
)

// FirebirdRepository serves legacy warehouses running Firebird 2.5+
type FirebirdRepository struct {
	db          *sql.DB
	builder     *mapper.SQLBuilder
	sourceTable string
	logTable    string
	logger      *slog.Logger
}

// NewFirebirdRepository initializes a connection pool for Firebird
func NewFirebirdRepository(connString, sourceTable, logTable string, logger *slog.Logger) (*FirebirdRepository, error) {
	db, err := sql.Open("firebirdsql", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open firebird connection: %w", err)
	}

	// Connection pool settings optimized for legacy systems
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("firebird ping failed: %w", err)
	}

	logger.Info("Connected to warehouse successfully", "driver", "firebird")

	return &FirebirdRepository{
		db:          db,
		builder:     mapper.NewSQLBuilder(mapper.Firebird),
		sourceTable: sourceTable,
		logTable:    logTable,
		logger:      logger,
	}, nil
}

// FetchPending returns up to limit contacts. Text columns are decoded from WIN1252.
func (r *FirebirdRepository) FetchPending(ctx context.Context, limit int) ([]models.PendingContact, error) {
	query, args, err := r.builder.BuildSelect(r.sourceTable, models.PendingContactColumns, limit)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.PendingContact
	for rows.Next() {
		var (
			c                                     models.PendingContact
			email, given, family, phone, postcode []byte
		)
		if err := rows.Scan(&c.MobilizeID, &email, &given, &family, &phone, &postcode); err != nil {
			return nil, fmt.Errorf("failed to scan pending contact: %w", err)
		}
		c.EmailAddress = encoding.ToUTF8(email)
		c.GivenName = encoding.ToUTF8(given)
		c.FamilyName = encoding.ToUTF8(family)
		c.PhoneNumber = encoding.ToUTF8(phone)
		c.PostalCode = encoding.ToUTF8(postcode)
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending contacts: %w", err)
	}

	return contacts, nil
}

// AppendSyncLog ensures the log table and inserts every entry inside one transaction.
// Firebird DDL must be committed before use, so the schema step runs in its own transaction.
func (r *FirebirdRepository) AppendSyncLog(ctx context.Context, entries []models.SyncLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	if err := r.ensureLogTable(ctx); err != nil {
		return err
	}

	query, err := r.builder.BuildInsert(r.logTable, mapper.ColumnNames(mapper.SyncLogColumns))
	if err != nil {
		return fmt.Errorf("failed to build log insert: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	// Safety: Rollback is a no-op if Commit was already called
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare log insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		values := e.Values()
		for i, v := range values {
			values[i] = r.builder.FormatValue(v)
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("failed to insert sync log for mobilize user %d: %w", e.MobilizeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync log: %w", err)
	}

	r.logger.Debug("Sync log appended", "table", r.logTable, "rows", len(entries))
	return nil
}

func (r *FirebirdRepository) ensureLogTable(ctx context.Context) error {
	_, table := mapper.SplitTable(r.logTable)
	relation := strings.ToUpper(table)

	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM RDB$RELATIONS WHERE RDB$RELATION_NAME = ?`, relation,
	).Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check log table: %w", err)
	}

	exists := !errors.Is(err, sql.ErrNoRows)

	var existing []string
	if exists {
		if existing, err = r.logColumns(ctx, relation); err != nil {
			return err
		}
	}

	stmts, err := r.schemaChanges(exists, existing)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		r.logger.Warn("Applying log table DDL", "table", relation, "statement", stmt)
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to alter log table: %w", err)
		}
	}

	return nil
}

func (r *FirebirdRepository) logColumns(ctx context.Context, relation string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT TRIM(RDB$FIELD_NAME) FROM RDB$RELATION_FIELDS WHERE RDB$RELATION_NAME = ?`, relation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect log table columns: %w", err)
	}
	defer rows.Close()

	var existing []string
	for rows.Next() {
		var name []byte
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan log table column: %w", err)
		}
		existing = append(existing, encoding.ToUTF8(name))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate log table columns: %w", err)
	}
	return existing, nil
}

// schemaChanges lists the DDL bringing the log table to the current layout.
// Firebird has no IF NOT EXISTS, so a missing table is created outright.
func (r *FirebirdRepository) schemaChanges(exists bool, existing []string) ([]string, error) {
	if !exists {
		ddl, err := r.builder.BuildCreateTable(r.logTable, mapper.SyncLogColumns)
		if err != nil {
			return nil, err
		}
		return []string{ddl}, nil
	}

	var stmts []string
	for _, col := range mapper.MissingColumns(existing, mapper.SyncLogColumns) {
		stmts = append(stmts, r.builder.BuildAddColumn(r.logTable, col))
	}
	return stmts, nil
}

// Close gracefully shuts down the database connection pool
func (r *FirebirdRepository) Close() error {
	r.logger.Info("Closing Firebird connection pool")
	return r.db.Close()
}
