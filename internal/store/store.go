// Package store provides storage backends for the chatbot.
//
// Contacts, the append-only message log, inbound dedup records, and the
// batch-trigger queue live behind the Store and BatchRepo interfaces, with
// PostgreSQL, SQLite, and in-memory implementations.
package store

import (
	"strings"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
)

// Store is the persistence interface shared by all backends.
type Store interface {
	// UpsertContact inserts or updates a contact keyed on its canonical
	// phone number and returns the stored row. An existing contact keeps
	// its id and created_at; name, status and automation are overwritten.
	UpsertContact(c models.Contact) (*models.Contact, error)

	// GetContact retrieves a contact by id. Returns (nil, nil) when absent.
	GetContact(id string) (*models.Contact, error)

	// GetContactByPhone retrieves a contact by canonical phone number.
	// Returns (nil, nil) when absent.
	GetContactByPhone(phone string) (*models.Contact, error)

	// ListContacts retrieves all contacts, most recently updated first.
	ListContacts() ([]models.Contact, error)

	// UpdateContact persists the mutable contact fields (name, status,
	// automation, last-message fields, unread, term timestamp).
	UpdateContact(c models.Contact) error

	// UpdateContactActivity updates the last-message fields and the unread
	// flag. Status, automation and the term timestamp are left untouched.
	UpdateContactActivity(id string, lastMessage string, lastTimestamp time.Time, unread bool) error

	// UpdateContactStatusIf transitions a contact from an expected status
	// to a new one atomically. Returns false when the contact was not in
	// the expected status (somebody else got there first).
	UpdateContactStatusIf(id string, from, to models.ContactStatus) (bool, error)

	// UpdateContactStateIf writes status, automation and the term timestamp
	// atomically, only when the stored status still equals from. Returns
	// false when a concurrent writer moved the contact first.
	UpdateContactStateIf(id string, from, to models.ContactStatus, automation models.AutomationState, termConfirmedAt *time.Time) (bool, error)

	// ListDueFollowUps retrieves contacts in pos_termo whose term
	// confirmation is at or before the cutoff.
	ListDueFollowUps(cutoff time.Time) ([]models.Contact, error)

	// AddMessage appends one entry to the message log.
	AddMessage(m models.Message) error

	// ListMessages retrieves a contact's messages in chronological order.
	ListMessages(contactID string) ([]models.Message, error)

	// UpdateMessageStatusBySid sets the delivery status of the message
	// with the given provider sid. Returns false when no message matches.
	UpdateMessageStatusBySid(sid string, status models.MessageStatus) (bool, error)

	// RecordInbound inserts an inbound dedup record. Returns false if the
	// provider message sid was already recorded (duplicate delivery).
	RecordInbound(messageSid, phone string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a dedup record.
	MarkProcessed(messageSid string) error

	// Close releases the underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite" from its shape.
// URL-style and key=value DSNs are Postgres; everything else (a file path)
// is treated as SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}
