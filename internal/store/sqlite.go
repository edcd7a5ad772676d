// Package store provides storage backends for the chatbot.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/util"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// UpsertContact inserts or updates a contact keyed on phone and returns the
// stored row. On conflict the existing row keeps its id, created_at, message
// history fields and term timestamp; name, status and automation are reset.
func (s *SQLiteStore) UpsertContact(c models.Contact) (*models.Contact, error) {
	if c.ID == "" {
		c.ID = util.GenerateContactID()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO contacts (id, phone, name, status, automation, last_message, last_timestamp, unread, term_confirmed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (phone)
		DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			automation = excluded.automation,
			updated_at = excluded.updated_at`

	_, err := s.db.Exec(query, c.ID, c.Phone, nilIfEmpty(c.Name), string(c.Status), string(c.Automation),
		nilIfEmpty(c.LastMessage), c.LastTimestamp, c.Unread, c.TermConfirmedAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore.UpsertContact failed", "error", err, "phone", c.Phone)
		return nil, fmt.Errorf("upsert contact %s failed: %w", c.Phone, err)
	}
	stored, err := s.GetContactByPhone(c.Phone)
	if err != nil {
		return nil, err
	}
	slog.Debug("SQLiteStore.UpsertContact succeeded", "phone", c.Phone, "id", stored.ID, "status", stored.Status)
	return stored, nil
}

// GetContact retrieves a contact by id.
func (s *SQLiteStore) GetContact(id string) (*models.Contact, error) {
	row := s.db.QueryRow(contactColumns+` FROM contacts WHERE id = ?`, id)
	c, err := scanContactRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore.GetContact not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetContact failed", "error", err, "id", id)
		return nil, fmt.Errorf("get contact failed: %w", err)
	}
	return &c, nil
}

// GetContactByPhone retrieves a contact by canonical phone number.
func (s *SQLiteStore) GetContactByPhone(phone string) (*models.Contact, error) {
	row := s.db.QueryRow(contactColumns+` FROM contacts WHERE phone = ?`, phone)
	c, err := scanContactRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore.GetContactByPhone not found", "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetContactByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("get contact by phone failed: %w", err)
	}
	return &c, nil
}

// ListContacts retrieves all contacts, most recently updated first.
func (s *SQLiteStore) ListContacts() ([]models.Contact, error) {
	rows, err := s.db.Query(contactColumns + ` FROM contacts ORDER BY updated_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore.ListContacts query failed", "error", err)
		return nil, fmt.Errorf("list contacts failed: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			slog.Error("SQLiteStore.ListContacts scan failed", "error", err)
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore.ListContacts rows error", "error", err)
		return nil, fmt.Errorf("iterate contact rows failed: %w", err)
	}
	slog.Debug("SQLiteStore.ListContacts succeeded", "count", len(contacts))
	return contacts, nil
}

// UpdateContact persists the mutable contact fields.
func (s *SQLiteStore) UpdateContact(c models.Contact) error {
	query := `
		UPDATE contacts SET
			name = ?,
			status = ?,
			automation = ?,
			last_message = ?,
			last_timestamp = ?,
			unread = ?,
			term_confirmed_at = ?,
			updated_at = ?
		WHERE id = ?`

	_, err := s.db.Exec(query, nilIfEmpty(c.Name), string(c.Status), string(c.Automation),
		nilIfEmpty(c.LastMessage), c.LastTimestamp, c.Unread, c.TermConfirmedAt, time.Now().UTC(), c.ID)
	if err != nil {
		slog.Error("SQLiteStore.UpdateContact failed", "error", err, "id", c.ID)
		return fmt.Errorf("update contact %s failed: %w", c.ID, err)
	}
	slog.Debug("SQLiteStore.UpdateContact succeeded", "id", c.ID, "status", c.Status)
	return nil
}

// UpdateContactActivity updates the last-message fields and the unread flag,
// leaving conversation state untouched.
func (s *SQLiteStore) UpdateContactActivity(id string, lastMessage string, lastTimestamp time.Time, unread bool) error {
	_, err := s.db.Exec(
		`UPDATE contacts SET last_message = ?, last_timestamp = ?, unread = ?, updated_at = ? WHERE id = ?`,
		nilIfEmpty(lastMessage), lastTimestamp, unread, time.Now().UTC(), id,
	)
	if err != nil {
		slog.Error("SQLiteStore.UpdateContactActivity failed", "error", err, "id", id)
		return fmt.Errorf("update contact activity %s failed: %w", id, err)
	}
	slog.Debug("SQLiteStore.UpdateContactActivity succeeded", "id", id)
	return nil
}

// UpdateContactStatusIf transitions status only when the current value
// matches the expected one, reporting whether this caller won the update.
func (s *SQLiteStore) UpdateContactStatusIf(id string, from, to models.ContactStatus) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE contacts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		slog.Error("SQLiteStore.UpdateContactStatusIf failed", "error", err, "id", id, "from", from, "to", to)
		return false, fmt.Errorf("conditional status update failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("conditional status update rows affected check failed: %w", err)
	}
	return n > 0, nil
}

// UpdateContactStateIf writes status, automation and the term timestamp only
// when the current status matches the expected one, reporting whether this
// caller won the update.
func (s *SQLiteStore) UpdateContactStateIf(id string, from, to models.ContactStatus, automation models.AutomationState, termConfirmedAt *time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE contacts SET status = ?, automation = ?, term_confirmed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), string(automation), termConfirmedAt, time.Now().UTC(), id, string(from),
	)
	if err != nil {
		slog.Error("SQLiteStore.UpdateContactStateIf failed", "error", err, "id", id, "from", from, "to", to)
		return false, fmt.Errorf("conditional state update failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("conditional state update rows affected check failed: %w", err)
	}
	return n > 0, nil
}

// ListDueFollowUps retrieves pos_termo contacts whose term confirmation is
// at or before the cutoff.
func (s *SQLiteStore) ListDueFollowUps(cutoff time.Time) ([]models.Contact, error) {
	rows, err := s.db.Query(
		contactColumns+` FROM contacts
		 WHERE status = ? AND term_confirmed_at IS NOT NULL AND term_confirmed_at <= ?
		 ORDER BY term_confirmed_at ASC`,
		string(models.StatusPostTerm), cutoff,
	)
	if err != nil {
		slog.Error("SQLiteStore.ListDueFollowUps query failed", "error", err)
		return nil, fmt.Errorf("list due follow-ups failed: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due follow-up rows failed: %w", err)
	}
	slog.Debug("SQLiteStore.ListDueFollowUps succeeded", "count", len(contacts), "cutoff", cutoff)
	return contacts, nil
}

// AddMessage appends one entry to the message log.
func (s *SQLiteStore) AddMessage(m models.Message) error {
	if m.ID == "" {
		m.ID = util.GenerateMessageID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO messages (id, contact_id, sender, text, timestamp, provider_sid, delivery_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ContactID, string(m.Sender), m.Text, m.Timestamp,
		nilIfEmpty(m.ProviderSid), nilIfEmpty(string(m.DeliveryStatus)),
	)
	if err != nil {
		slog.Error("SQLiteStore.AddMessage failed", "error", err, "contactID", m.ContactID)
		return fmt.Errorf("insert message for contact %s failed: %w", m.ContactID, err)
	}
	slog.Debug("SQLiteStore.AddMessage succeeded", "id", m.ID, "contactID", m.ContactID, "sender", m.Sender)
	return nil
}

// ListMessages retrieves a contact's messages in chronological order.
func (s *SQLiteStore) ListMessages(contactID string) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, contact_id, sender, text, timestamp, provider_sid, delivery_status
		 FROM messages WHERE contact_id = ? ORDER BY timestamp ASC`,
		contactID,
	)
	if err != nil {
		slog.Error("SQLiteStore.ListMessages query failed", "error", err, "contactID", contactID)
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows failed: %w", err)
	}
	slog.Debug("SQLiteStore.ListMessages succeeded", "contactID", contactID, "count", len(messages))
	return messages, nil
}

// UpdateMessageStatusBySid sets the delivery status of the message with the
// given provider sid.
func (s *SQLiteStore) UpdateMessageStatusBySid(sid string, status models.MessageStatus) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE messages SET delivery_status = ? WHERE provider_sid = ?`,
		string(status), sid,
	)
	if err != nil {
		slog.Error("SQLiteStore.UpdateMessageStatusBySid failed", "error", err, "sid", sid)
		return false, fmt.Errorf("update message status failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update message status rows affected check failed: %w", err)
	}
	return n > 0, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
