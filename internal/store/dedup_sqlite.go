package store

import (
	"fmt"
	"time"
)

func (s *SQLiteStore) RecordInbound(messageSid, phone string) (bool, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(
		`INSERT INTO inbound_dedup (message_sid, phone, received_at) VALUES (?, ?, ?) ON CONFLICT (message_sid) DO NOTHING`,
		messageSid, phone, now,
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkProcessed(messageSid string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE inbound_dedup SET processed_at = ? WHERE message_sid = ?`,
		now, messageSid,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
