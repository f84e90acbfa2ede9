package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
)

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	query, args, err := s.sb.Select("COUNT(*)").From("processed_events").
		Where(squirrel.Eq{"event_id": eventID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build select: %w", err)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, storageErr("check processed event", err)
	}
	return count > 0, nil
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string, now time.Time) error {
	query, args, err := s.sb.Insert("processed_events").
		Columns("event_id", "event_type", "processed_at").
		Values(eventID, eventType, now).
		Suffix("ON CONFLICT (event_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return storageErr("mark event processed", err)
	}
	return nil
}
