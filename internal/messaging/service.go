// Package messaging abstracts outbound WhatsApp delivery and inbound event
// streams behind a single Service interface with Twilio and native WhatsApp
// implementations.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
)

// Channel defaults shared by all Service implementations.
const (
	// DefaultChannelBufferSize defines the buffer size for receipt and
	// response channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel emits; a full
	// channel past this deadline drops the event with a warning.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned by send operations after Stop.
var ErrServiceStopped = errors.New("messaging service is stopped")

// Service defines a pluggable message delivery abstraction.
// It supports sending messages, and provides channels for receipt and
// response events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier. Returns the canonicalized recipient and an
	// error if validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a free-form message and returns the provider sid.
	SendText(ctx context.Context, to string, body string) (string, error)

	// SendTemplate sends the pre-approved first-contact template with the
	// given variables and returns the provider sid.
	SendTemplate(ctx context.Context, to string, templateID string, variables map[string]string) (string, error)

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of delivery-status events.
	Receipts() <-chan models.Receipt

	// Responses returns a channel of incoming messages.
	Responses() <-chan models.InboundMessage
}
