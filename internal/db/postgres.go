package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Guizzs26/mobilize-sync/internal/mapper"
	"github.com/Guizzs26/mobilize-sync/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// logTx is the part of pgx.Tx the log write needs
type logTx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository reads pending contacts from and appends sync logs to a
// PostgreSQL-protocol warehouse (PostgreSQL or Redshift)
type PostgresRepository struct {
	pool        *pgxpool.Pool
	builder     *mapper.SQLBuilder
	sourceTable string
	logTable    string
	logger      *slog.Logger
}

func NewPostgresRepository(ctx context.Context, connString, sourceTable, logTable string, logger *slog.Logger) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse warehouse config: %w", err)
	}

	// One sequential run never needs more than a couple of connections
	config.MaxConns = 2
	config.MaxConnIdleTime = 5 * time.Minute
	// Redshift does not support the extended protocol's statement cache well
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create warehouse pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("warehouse ping failed: %w", err)
	}

	logger.Info("Connected to warehouse successfully", "driver", "postgres")

	return &PostgresRepository{
		pool:        p,
		builder:     mapper.NewSQLBuilder(mapper.Postgres),
		sourceTable: sourceTable,
		logTable:    logTable,
		logger:      logger,
	}, nil
}

// FetchPending returns up to limit contacts from the source table in warehouse order
func (r *PostgresRepository) FetchPending(ctx context.Context, limit int) ([]models.PendingContact, error) {
	query, args, err := r.builder.BuildSelect(r.sourceTable, models.PendingContactColumns, limit)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.PendingContact
	for rows.Next() {
		var (
			c                                     models.PendingContact
			email, given, family, phone, postcode pgtype.Text
		)
		if err := rows.Scan(&c.MobilizeID, &email, &given, &family, &phone, &postcode); err != nil {
			return nil, fmt.Errorf("failed to scan pending contact: %w", err)
		}
		c.EmailAddress = email.String
		c.GivenName = given.String
		c.FamilyName = family.String
		c.PhoneNumber = phone.String
		c.PostalCode = postcode.String
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending contacts: %w", err)
	}

	return contacts, nil
}

// AppendSyncLog ensures the log table schema and appends every entry with one INSERT
func (r *PostgresRepository) AppendSyncLog(ctx context.Context, entries []models.SyncLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	// Rollback is a no-op once Commit succeeded
	defer tx.Rollback(ctx)

	n, err := r.writeLog(ctx, tx, entries)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit sync log: %w", err)
	}

	r.logger.Debug("Sync log appended", "table", r.logTable, "rows", n)
	return nil
}

func (r *PostgresRepository) writeLog(ctx context.Context, tx logTx, entries []models.SyncLogEntry) (int64, error) {
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = e.Values()
	}
	query, args, err := r.builder.BuildBulkInsert(r.logTable, mapper.ColumnNames(mapper.SyncLogColumns), rows)
	if err != nil {
		return 0, fmt.Errorf("failed to build log insert: %w", err)
	}

	if err := r.ensureLogTable(ctx, tx); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sync log: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ensureLogTable creates the log table if needed and adds columns missing from an
// older layout. Redshift lacks ADD COLUMN IF NOT EXISTS, so columns are introspected.
func (r *PostgresRepository) ensureLogTable(ctx context.Context, tx logTx) error {
	ddl, err := r.builder.BuildCreateTable(r.logTable, mapper.SyncLogColumns)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create log table: %w", err)
	}

	schema, table := mapper.SplitTable(r.logTable)
	if schema == "" {
		schema = "public"
	}

	rows, err := tx.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2`,
		strings.ToLower(schema), strings.ToLower(table),
	)
	if err != nil {
		return fmt.Errorf("failed to inspect log table columns: %w", err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to read log table columns: %w", err)
	}

	for _, col := range mapper.MissingColumns(existing, mapper.SyncLogColumns) {
		r.logger.Warn("Log table schema drift detected, adding column", "table", r.logTable, "column", col.Name)
		if _, err := tx.Exec(ctx, r.builder.BuildAddColumn(r.logTable, col)); err != nil {
			return fmt.Errorf("failed to add column %s: %w", col.Name, err)
		}
	}

	return nil
}

func (r *PostgresRepository) Close() error {
	r.logger.Info("Closing warehouse connection pool")
	r.pool.Close()
	return nil
}
