package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TagSighting is one admitted tag read recorded in the local access log.
type TagSighting struct {
	ID       int64
	TagID    string
	SeenAt   time.Time
	Notified bool
}

// RecordTagSighting appends an admitted tag read to the local access log.
func (s *Store) RecordTagSighting(ctx context.Context, tagID string, seenAt time.Time, notified bool) error {
	if s.readOnly {
		return fmt.Errorf("config: record tag sighting: store opened read-only")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO tag_sightings (node_name, tag_id, seen_at, notified)
            VALUES (?, ?, ?, ?)
        `, s.nodeName, tagID, seenAt.UTC().Format(time.RFC3339Nano), boolToInt(notified))
		if err != nil {
			return fmt.Errorf("config: insert tag sighting: %w", err)
		}
		return nil
	})
}

// RecentTagSightings returns up to limit sightings, newest first.
func (s *Store) RecentTagSightings(ctx context.Context, limit int) ([]TagSighting, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, tag_id, seen_at, notified FROM tag_sightings
        WHERE node_name = ?
        ORDER BY seen_at DESC, id DESC
        LIMIT ?
    `, s.nodeName, limit)
	if err != nil {
		return nil, fmt.Errorf("config: query tag sightings: %w", err)
	}
	defer rows.Close()

	var result []TagSighting
	for rows.Next() {
		var (
			sighting TagSighting
			seenAt   string
			notified int
		)
		if err := rows.Scan(&sighting.ID, &sighting.TagID, &seenAt, &notified); err != nil {
			return nil, fmt.Errorf("config: scan tag sighting: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, seenAt)
		if err != nil {
			return nil, fmt.Errorf("config: parse sighting timestamp %q: %w", seenAt, err)
		}
		sighting.SeenAt = ts
		sighting.Notified = notified != 0
		result = append(result, sighting)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config: iterate tag sightings: %w", err)
	}

	return result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
