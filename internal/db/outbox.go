package db

import (
	"context"
	"fmt"

	"github.com/primepisodes/media-engine/internal/outbox"
)

// PendingOutbox returns the oldest undelivered outbox rows, oldest first.
func (s *JobStore) PendingOutbox(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, job_id, job_type, payload, created_at
		FROM job_outbox
		WHERE status = 'pending'
		ORDER BY id
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var out []outbox.Record
	for rows.Next() {
		var rec outbox.Record
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.JobType, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkOutboxSent stamps an outbox row as delivered.
func (s *JobStore) MarkOutboxSent(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE job_outbox
		SET status = 'sent', sent_at = now()
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox row sent: %w", err)
	}
	return nil
}
