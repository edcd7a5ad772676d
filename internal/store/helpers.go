package store

import (
	"database/sql"
	"fmt"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
)

// contactColumns is the shared SELECT prefix for contact queries so every
// scan sees the same column order.
const contactColumns = `SELECT id, phone, name, status, automation, last_message, last_timestamp, unread, term_confirmed_at, created_at, updated_at`

// triggerItemColumns is the shared column list for trigger item queries.
const triggerItemColumns = `batch_id, idx, numero, nome, status, sid, reason, locked_at, updated_at`

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanContact scans a Contact from sql.Rows.
func scanContact(rows *sql.Rows) (models.Contact, error) {
	var c models.Contact
	var name, lastMessage sql.NullString
	var status, automation string
	var lastTimestamp, termConfirmedAt sql.NullTime
	err := rows.Scan(
		&c.ID, &c.Phone, &name, &status, &automation,
		&lastMessage, &lastTimestamp, &c.Unread, &termConfirmedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, fmt.Errorf("scan contact failed: %w", err)
	}
	c.Name = name.String
	c.Status = models.ContactStatus(status)
	c.Automation = models.AutomationState(automation)
	c.LastMessage = lastMessage.String
	if lastTimestamp.Valid {
		c.LastTimestamp = &lastTimestamp.Time
	}
	if termConfirmedAt.Valid {
		c.TermConfirmedAt = &termConfirmedAt.Time
	}
	return c, nil
}

// scanContactRow scans a Contact from a single sql.Row.
func scanContactRow(row *sql.Row) (models.Contact, error) {
	var c models.Contact
	var name, lastMessage sql.NullString
	var status, automation string
	var lastTimestamp, termConfirmedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.Phone, &name, &status, &automation,
		&lastMessage, &lastTimestamp, &c.Unread, &termConfirmedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	c.Name = name.String
	c.Status = models.ContactStatus(status)
	c.Automation = models.AutomationState(automation)
	c.LastMessage = lastMessage.String
	if lastTimestamp.Valid {
		c.LastTimestamp = &lastTimestamp.Time
	}
	if termConfirmedAt.Valid {
		c.TermConfirmedAt = &termConfirmedAt.Time
	}
	return c, nil
}

// scanMessage scans a Message from sql.Rows.
func scanMessage(rows *sql.Rows) (models.Message, error) {
	var m models.Message
	var sender string
	var providerSid, deliveryStatus sql.NullString
	err := rows.Scan(
		&m.ID, &m.ContactID, &sender, &m.Text, &m.Timestamp,
		&providerSid, &deliveryStatus,
	)
	if err != nil {
		return m, fmt.Errorf("scan message failed: %w", err)
	}
	m.Sender = models.MessageSender(sender)
	m.ProviderSid = providerSid.String
	m.DeliveryStatus = models.MessageStatus(deliveryStatus.String)
	return m, nil
}

// distinctBatchIDs returns the unique batch ids of a claimed item set.
func distinctBatchIDs(items []TriggerItem) []string {
	seen := make(map[string]bool, len(items))
	var ids []string
	for _, it := range items {
		if !seen[it.BatchID] {
			seen[it.BatchID] = true
			ids = append(ids, it.BatchID)
		}
	}
	return ids
}

// scanTriggerItem scans a TriggerItem from sql.Rows.
func scanTriggerItem(rows *sql.Rows) (TriggerItem, error) {
	var it TriggerItem
	var numero, nome, sid, reason sql.NullString
	var status string
	var lockedAt sql.NullTime
	err := rows.Scan(
		&it.BatchID, &it.Idx, &numero, &nome, &status,
		&sid, &reason, &lockedAt, &it.UpdatedAt,
	)
	if err != nil {
		return it, fmt.Errorf("scan trigger item failed: %w", err)
	}
	it.Numero = numero.String
	it.Nome = nome.String
	it.Status = ItemStatus(status)
	it.Sid = sid.String
	it.Reason = reason.String
	if lockedAt.Valid {
		it.LockedAt = &lockedAt.Time
	}
	return it, nil
}
