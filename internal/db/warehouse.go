package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/mobilize-sync/internal/config"
	"github.com/Guizzs26/mobilize-sync/internal/models"
)

// Warehouse is implemented by every supported warehouse backend
type Warehouse interface {
	FetchPending(ctx context.Context, limit int) ([]models.PendingContact, error)
	AppendSyncLog(ctx context.Context, entries []models.SyncLogEntry) error
	Close() error
}

var (
	_ Warehouse = (*PostgresRepository)(nil)
	_ Warehouse = (*FirebirdRepository)(nil)
)

// Open connects to the warehouse selected by cfg.WarehouseDriver
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Warehouse, error) {
	switch cfg.WarehouseDriver {
	case config.DriverPostgres:
		repo, err := NewPostgresRepository(ctx, cfg.DatabaseURL, cfg.SourceTable, cfg.LogTable, logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.DriverFirebird:
		repo, err := NewFirebirdRepository(cfg.DatabaseURL, cfg.SourceTable, cfg.LogTable, logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported warehouse driver %q", cfg.WarehouseDriver)
	}
}
