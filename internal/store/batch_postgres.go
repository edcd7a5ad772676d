package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Compile-time check that PostgresStore implements BatchRepo.
var _ BatchRepo = (*PostgresStore)(nil)

func (s *PostgresStore) CreateBatch(b TriggerBatch, items []TriggerItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch transaction failed: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO trigger_batches (id, total, pending, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.Total, b.Pending, string(b.Status), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch failed: %w", err)
	}

	for _, it := range items {
		_, err = tx.Exec(
			`INSERT INTO trigger_items (batch_id, idx, numero, nome, status, sid, reason, locked_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			it.BatchID, it.Idx, nilIfEmpty(it.Numero), nilIfEmpty(it.Nome), string(it.Status),
			nilIfEmpty(it.Sid), nilIfEmpty(it.Reason), it.LockedAt, it.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert batch item %d failed: %w", it.Idx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch failed: %w", err)
	}
	slog.Debug("PostgresStore.CreateBatch", "id", b.ID, "total", b.Total, "pending", b.Pending)
	return nil
}

func (s *PostgresStore) GetBatch(id string) (*TriggerBatch, error) {
	var b TriggerBatch
	var status string
	err := s.db.QueryRow(
		`SELECT id, total, pending, status, created_at, updated_at FROM trigger_batches WHERE id = $1`, id,
	).Scan(&b.ID, &b.Total, &b.Pending, &status, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch failed: %w", err)
	}
	b.Status = BatchStatus(status)
	return &b, nil
}

func (s *PostgresStore) ListBatchItems(batchID string) ([]TriggerItem, error) {
	rows, err := s.db.Query(
		`SELECT `+triggerItemColumns+` FROM trigger_items WHERE batch_id = $1 ORDER BY idx ASC`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("list batch items failed: %w", err)
	}
	defer rows.Close()

	var items []TriggerItem
	for rows.Next() {
		it, err := scanTriggerItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batch items iteration failed: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ClaimQueuedItems(now time.Time, limit int) ([]TriggerItem, error) {
	rows, err := s.db.Query(
		`UPDATE trigger_items SET status = 'running', locked_at = $1, updated_at = $1
		 WHERE (batch_id, idx) IN (
		   SELECT batch_id, idx FROM trigger_items WHERE status = 'queued'
		   ORDER BY batch_id, idx LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+triggerItemColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim queued items failed: %w", err)
	}
	defer rows.Close()

	var items []TriggerItem
	for rows.Next() {
		it, err := scanTriggerItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim queued items iteration failed: %w", err)
	}

	// Flip owning batches out of queued once their items start moving.
	for _, id := range distinctBatchIDs(items) {
		_, err := s.db.Exec(
			`UPDATE trigger_batches SET status = 'running', updated_at = $1 WHERE id = $2 AND status = 'queued'`,
			now, id,
		)
		if err != nil {
			return nil, fmt.Errorf("mark batch running failed: %w", err)
		}
	}

	return items, nil
}

func (s *PostgresStore) CompleteItem(batchID string, idx int, sid string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE trigger_items SET status = 'sent', sid = $1, locked_at = NULL, updated_at = $2 WHERE batch_id = $3 AND idx = $4`,
		sid, now, batchID, idx,
	)
	if err != nil {
		return fmt.Errorf("complete item failed: %w", err)
	}
	return s.settleBatchProgress(batchID, now)
}

func (s *PostgresStore) FailItem(batchID string, idx int, reason string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE trigger_items SET status = 'failed', reason = $1, locked_at = NULL, updated_at = $2 WHERE batch_id = $3 AND idx = $4`,
		reason, now, batchID, idx,
	)
	if err != nil {
		return fmt.Errorf("fail item failed: %w", err)
	}
	return s.settleBatchProgress(batchID, now)
}

// settleBatchProgress decrements the pending counter and closes the batch
// when it reaches zero. The CASE reads the pre-update value of pending.
func (s *PostgresStore) settleBatchProgress(batchID string, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE trigger_batches SET
			pending = pending - 1,
			status = CASE WHEN pending <= 1 THEN 'done' ELSE status END,
			updated_at = $1
		 WHERE id = $2`,
		now, batchID,
	)
	if err != nil {
		return fmt.Errorf("settle batch progress failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequeueStaleItems(staleBefore time.Time) (int, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`UPDATE trigger_items SET status = 'queued', locked_at = NULL, updated_at = $1 WHERE status = 'running' AND locked_at < $2`,
		now, staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale items failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStaleItems", "requeued", n)
	}
	return int(n), nil
}
