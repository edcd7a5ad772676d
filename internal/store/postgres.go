// Package store provides storage backends for the chatbot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/util"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// UpsertContact inserts or updates a contact keyed on phone and returns the
// stored row. On conflict the existing row keeps its id, created_at, message
// history fields and term timestamp; name, status and automation are reset.
func (s *PostgresStore) UpsertContact(c models.Contact) (*models.Contact, error) {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (phone)
		DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			automation = EXCLUDED.automation,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.Exec(query, c.ID, c.Phone, nilIfEmpty(c.Name), string(c.Status), string(c.Automation),
		nilIfEmpty(c.LastMessage), c.LastTimestamp, c.Unread, c.TermConfirmedAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore.UpsertContact failed", "error", err, "phone", c.Phone)
		return nil, fmt.Errorf("upsert contact %s failed: %w", c.Phone, err)
	}
	stored, err := s.GetContactByPhone(c.Phone)
	if err != nil {
		return nil, err
	}
	slog.Debug("PostgresStore.UpsertContact succeeded", "phone", c.Phone, "id", stored.ID, "status", stored.Status)
	return stored, nil
}

// GetContact retrieves a contact by id.
func (s *PostgresStore) GetContact(id string) (*models.Contact, error) {
	row := s.db.QueryRow(contactColumns+` FROM contacts WHERE id = $1`, id)
	c, err := scanContactRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore.GetContact not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetContact failed", "error", err, "id", id)
		return nil, fmt.Errorf("get contact failed: %w", err)
	}
	return &c, nil
}

// GetContactByPhone retrieves a contact by canonical phone number.
func (s *PostgresStore) GetContactByPhone(phone string) (*models.Contact, error) {
	row := s.db.QueryRow(contactColumns+` FROM contacts WHERE phone = $1`, phone)
	c, err := scanContactRow(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore.GetContactByPhone not found", "phone", phone)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetContactByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("get contact by phone failed: %w", err)
	}
	return &c, nil
}

// ListContacts retrieves all contacts, most recently updated first.
func (s *PostgresStore) ListContacts() ([]models.Contact, error) {
	rows, err := s.db.Query(contactColumns + ` FROM contacts ORDER BY updated_at DESC`)
	if err != nil {
		slog.Error("PostgresStore.ListContacts query failed", "error", err)
		return nil, fmt.Errorf("list contacts failed: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			slog.Error("PostgresStore.ListContacts scan failed", "error", err)
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore.ListContacts rows error", "error", err)
		return nil, fmt.Errorf("iterate contact rows failed: %w", err)
	}
	slog.Debug("PostgresStore.ListContacts succeeded", "count", len(contacts))
	return contacts, nil
}

// UpdateContact persists the mutable contact fields.
func (s *PostgresStore) UpdateContact(c models.Contact) error {
	query := `
		UPDATE contacts SET
			name = $2,
			status = $3,
			automation = $4,
			last_message = $5,
			last_timestamp = $6,
			unread = $7,
			term_confirmed_at = $8,
			updated_at = $9
		WHERE id = $1`

	_, err := s.db.Exec(query, c.ID, nilIfEmpty(c.Name), string(c.Status), string(c.Automation),
		nilIfEmpty(c.LastMessage), c.LastTimestamp, c.Unread, c.TermConfirmedAt, time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore.UpdateContact failed", "error", err, "id", c.ID)
		return fmt.Errorf("update contact %s failed: %w", c.ID, err)
	}
	slog.Debug("PostgresStore.UpdateContact succeeded", "id", c.ID, "status", c.Status)
	return nil
}

// UpdateContactActivity updates the last-message fields and the unread flag,
// leaving conversation state untouched.
func (s *PostgresStore) UpdateContactActivity(id string, lastMessage string, lastTimestamp time.Time, unread bool) error {
	_, err := s.db.Exec(
		`UPDATE contacts SET last_message = $2, last_timestamp = $3, unread = $4, updated_at = $5 WHERE id = $1`,
		id, nilIfEmpty(lastMessage), lastTimestamp, unread, time.Now().UTC(),
	)
	if err != nil {
		slog.Error("PostgresStore.UpdateContactActivity failed", "error", err, "id", id)
		return fmt.Errorf("update contact activity %s failed: %w", id, err)
	}
	slog.Debug("PostgresStore.UpdateContactActivity succeeded", "id", id)
	return nil
}

// UpdateContactStatusIf transitions status only when the current value
// matches the expected one, reporting whether this caller won the update.
func (s *PostgresStore) UpdateContactStatusIf(id string, from, to models.ContactStatus) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE contacts SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		slog.Error("PostgresStore.UpdateContactStatusIf failed", "error", err, "id", id, "from", from, "to", to)
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
func (s *PostgresStore) UpdateContactStateIf(id string, from, to models.ContactStatus, automation models.AutomationState, termConfirmedAt *time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE contacts SET status = $1, automation = $2, term_confirmed_at = $3, updated_at = $4
		 WHERE id = $5 AND status = $6`,
		string(to), string(automation), termConfirmedAt, time.Now().UTC(), id, string(from),
	)
	if err != nil {
		slog.Error("PostgresStore.UpdateContactStateIf failed", "error", err, "id", id, "from", from, "to", to)
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
func (s *PostgresStore) ListDueFollowUps(cutoff time.Time) ([]models.Contact, error) {
	rows, err := s.db.Query(
		contactColumns+` FROM contacts
		 WHERE status = $1 AND term_confirmed_at IS NOT NULL AND term_confirmed_at <= $2
		 ORDER BY term_confirmed_at ASC`,
		string(models.StatusPostTerm), cutoff,
	)
	if err != nil {
		slog.Error("PostgresStore.ListDueFollowUps query failed", "error", err)
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
	slog.Debug("PostgresStore.ListDueFollowUps succeeded", "count", len(contacts), "cutoff", cutoff)
	return contacts, nil
}

// AddMessage appends one entry to the message log.
func (s *PostgresStore) AddMessage(m models.Message) error {
	if m.ID == "" {
		m.ID = util.GenerateMessageID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO messages (id, contact_id, sender, text, timestamp, provider_sid, delivery_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ContactID, string(m.Sender), m.Text, m.Timestamp,
		nilIfEmpty(m.ProviderSid), nilIfEmpty(string(m.DeliveryStatus)),
	)
	if err != nil {
		slog.Error("PostgresStore.AddMessage failed", "error", err, "contactID", m.ContactID)
		return fmt.Errorf("insert message for contact %s failed: %w", m.ContactID, err)
	}
	slog.Debug("PostgresStore.AddMessage succeeded", "id", m.ID, "contactID", m.ContactID, "sender", m.Sender)
	return nil
}

// ListMessages retrieves a contact's messages in chronological order.
func (s *PostgresStore) ListMessages(contactID string) ([]models.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, contact_id, sender, text, timestamp, provider_sid, delivery_status
		 FROM messages WHERE contact_id = $1 ORDER BY timestamp ASC`,
		contactID,
	)
	if err != nil {
		slog.Error("PostgresStore.ListMessages query failed", "error", err, "contactID", contactID)
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
	slog.Debug("PostgresStore.ListMessages succeeded", "contactID", contactID, "count", len(messages))
	return messages, nil
}

// UpdateMessageStatusBySid sets the delivery status of the message with the
// given provider sid.
func (s *PostgresStore) UpdateMessageStatusBySid(sid string, status models.MessageStatus) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE messages SET delivery_status = $1 WHERE provider_sid = $2`,
		string(status), sid,
	)
	if err != nil {
		slog.Error("PostgresStore.UpdateMessageStatusBySid failed", "error", err, "sid", sid)
		return false, fmt.Errorf("update message status failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update message status rows affected check failed: %w", err)
	}
	return n > 0, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
