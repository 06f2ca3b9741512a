package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/MarkLark86/superdesk-planning/internal/persistence"
	"github.com/MarkLark86/superdesk-planning/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage bundles the SQLite repositories over one connection pool.
type Storage struct {
	pool          *ConnectionPool
	logger        *slog.Logger
	Events        *EventRepository
	Recurrences   *RecurrenceRepository
	Series        *SeriesRepository
	History       *HistoryRepository
	Notifications *NotificationRepository
}

var (
	_ persistence.EventRepository        = (*EventRepository)(nil)
	_ persistence.RecurrenceRepository   = (*RecurrenceRepository)(nil)
	_ persistence.SeriesRepository       = (*SeriesRepository)(nil)
	_ persistence.HistoryRepository      = (*HistoryRepository)(nil)
	_ persistence.NotificationRepository = (*NotificationRepository)(nil)
)

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, config Config, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}

	events := NewEventRepository(pool)
	recurrences := NewRecurrenceRepository(pool)
	storage := &Storage{
		pool:          pool,
		logger:        logger,
		Events:        events,
		Recurrences:   recurrences,
		Series:        NewSeriesRepository(pool, events, recurrences),
		History:       NewHistoryRepository(pool),
		Notifications: NewNotificationRepository(pool),
	}
	if err := storage.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return storage, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewSQLiteExecutor(s.pool.DB()),
		s.logger,
	)
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// Pool exposes the underlying connection pool.
func (s *Storage) Pool() *ConnectionPool {
	return s.pool
}

// Close releases the database connections.
func (s *Storage) Close() error {
	return s.pool.Close()
}
