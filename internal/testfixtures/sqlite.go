package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MarkLark86/superdesk-planning/internal/persistence"
	"github.com/MarkLark86/superdesk-planning/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite storage
// instance for integration-style persistence tests.
type SQLiteHarness struct {
	Storage       *sqlite.Storage
	Events        persistence.EventRepository
	Recurrences   persistence.RecurrenceRepository
	Series        persistence.SeriesRepository
	History       persistence.HistoryRepository
	Notifications persistence.NotificationRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "planner.db")
	storage, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:       storage,
		Events:        storage.Events,
		Recurrences:   storage.Recurrences,
		Series:        storage.Series,
		History:       storage.History,
		Notifications: storage.Notifications,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedEvents stores the fixtures and fails the test on error.
func (h *SQLiteHarness) SeedEvents(tb testing.TB, fixtures ...EventFixture) {
	tb.Helper()
	events := make([]persistence.Event, 0, len(fixtures))
	for _, fixture := range fixtures {
		events = append(events, fixture.Persistence())
	}
	if err := h.Events.CreateEvents(context.Background(), events); err != nil {
		tb.Fatalf("failed to seed events: %v", err)
	}
}
