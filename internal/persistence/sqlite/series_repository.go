package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MarkLark86/superdesk-planning/internal/persistence"
)

// SeriesRepository writes a recurrence group together with its rule so a
// failure in any part leaves the database untouched.
type SeriesRepository struct {
	pool        *ConnectionPool
	retry       *RetryHelper
	events      *EventRepository
	recurrences *RecurrenceRepository
}

// NewSeriesRepository creates a series writer sharing the given repositories.
func NewSeriesRepository(pool *ConnectionPool, events *EventRepository, recurrences *RecurrenceRepository) *SeriesRepository {
	return &SeriesRepository{
		pool:        pool,
		retry:       NewRetryHelper(DefaultRetryConfig()),
		events:      events,
		recurrences: recurrences,
	}
}

// WriteSeries stores rules first, then applies patches, then inserts events,
// all in one transaction.
func (r *SeriesRepository) WriteSeries(ctx context.Context, write persistence.SeriesWrite) error {
	if len(write.Rules) == 0 && len(write.Patches) == 0 && len(write.Events) == 0 {
		return nil
	}
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, rule := range write.Rules {
				if err := r.recurrences.upsert(ctx, tx, rule); err != nil {
					return err
				}
			}
			for _, patch := range write.Patches {
				if _, err := r.events.patch(ctx, tx, patch.ID, patch.Mutate); err != nil {
					return fmt.Errorf("patch event %s: %w", patch.ID, err)
				}
			}
			for _, event := range write.Events {
				if err := r.events.insert(ctx, tx, event); err != nil {
					return fmt.Errorf("insert event %s: %w", event.ID, err)
				}
			}
			return nil
		})
	})
}
