// Package models defines the core data structures for the chatbot.
//
// It includes contact and message types, conversation status enums, and the
// request/response payloads shared across modules.
package models

import (
	"time"
)

// ContactStatus identifies where a contact sits in the conversation flow.
type ContactStatus string

const (
	// StatusInitial means the first template was sent and we await a yes/no
	// to the representation-term offer.
	StatusInitial ContactStatus = "initial"
	// StatusAwaitingTerm means we await confirmation that the term document
	// was filled in.
	StatusAwaitingTerm ContactStatus = "aguardando_termo"
	// StatusPostTerm means the term was confirmed and the opportunity is
	// being shopped; no input is expected until a follow-up fires.
	StatusPostTerm ContactStatus = "pos_termo"
	// StatusFutureOffer means the contact declined the term and we asked
	// whether to keep them for future offers.
	StatusFutureOffer ContactStatus = "oferta_futura"
	// StatusAwaitingFutureOffer is terminal: the contact agreed to future
	// contact; automation is paused.
	StatusAwaitingFutureOffer ContactStatus = "aguardando_oferta_futura"
	// StatusRefusedFutureContact is terminal: the contact declined any
	// future contact; automation is concluded.
	StatusRefusedFutureContact ContactStatus = "recusou_contato_futuro"
	// StatusAwaitingAgent is terminal: the contact asked for a human. The
	// spaced, capitalized form is what operators see in the dashboard and
	// what the store persists.
	StatusAwaitingAgent ContactStatus = "Aguardando Vendedor"
	// StatusFollowUpSent means a reminder went out from pos_termo and we
	// await a renewed yes/no.
	StatusFollowUpSent ContactStatus = "followup_enviado"
)

// IsValidContactStatus checks whether the given status is one of the
// enumerated conversation states.
func IsValidContactStatus(s ContactStatus) bool {
	switch s {
	case StatusInitial, StatusAwaitingTerm, StatusPostTerm, StatusFutureOffer,
		StatusAwaitingFutureOffer, StatusRefusedFutureContact,
		StatusAwaitingAgent, StatusFollowUpSent:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether automation never advances past this status.
func (s ContactStatus) IsTerminal() bool {
	switch s {
	case StatusAwaitingFutureOffer, StatusRefusedFutureContact, StatusAwaitingAgent:
		return true
	default:
		return false
	}
}

// AutomationState tells whether the bot still drives the conversation.
type AutomationState string

const (
	// AutomationActive means the bot replies to inbound messages.
	AutomationActive AutomationState = "active"
	// AutomationPaused means a human took over (escalation or opt-in hold).
	AutomationPaused AutomationState = "paused"
	// AutomationConcluded means the conversation ended for good.
	AutomationConcluded AutomationState = "concluded"
)

// MessageSender identifies which side of the conversation wrote a message.
type MessageSender string

const (
	// SenderUser marks an inbound message from the contact.
	SenderUser MessageSender = "user"
	// SenderOperator marks an outbound message (bot or human operator).
	SenderOperator MessageSender = "operator"
)

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	// MessageStatusQueued indicates the provider accepted the message.
	MessageStatusQueued MessageStatus = "queued"
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
	// MessageStatusUndelivered indicates the provider gave up on delivery.
	MessageStatusUndelivered MessageStatus = "undelivered"
)

// Contact is a tracked phone number with its conversation state. Phone
// numbers are stored in canonical form ("whatsapp:+<E164>") and are unique;
// re-triggering an existing contact upserts rather than duplicates.
type Contact struct {
	ID              string          `json:"id"`
	Phone           string          `json:"phone"`
	Name            string          `json:"name,omitempty"`
	Status          ContactStatus   `json:"status"`
	Automation      AutomationState `json:"automation"`
	LastMessage     string          `json:"lastMessage,omitempty"`
	LastTimestamp   *time.Time      `json:"lastTimestamp,omitempty"`
	Unread          bool            `json:"unread"`
	TermConfirmedAt *time.Time      `json:"termConfirmedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Message is one entry in the append-only conversation log. Only the
// delivery status may change after creation, driven by provider callbacks.
type Message struct {
	ID             string        `json:"id"`
	ContactID      string        `json:"contactId"`
	Sender         MessageSender `json:"sender"`
	Text           string        `json:"text"`
	Timestamp      time.Time     `json:"timestamp"`
	ProviderSid    string        `json:"providerSid,omitempty"`
	DeliveryStatus MessageStatus `json:"deliveryStatus,omitempty"`
}

// InboundMessage is a provider callback normalized into one shape, whether
// it arrived over the Twilio webhook or the WhatsApp event stream.
type InboundMessage struct {
	From        string    `json:"from"`
	ProfileName string    `json:"profileName,omitempty"`
	Body        string    `json:"body"`
	MessageSid  string    `json:"messageSid,omitempty"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// Receipt is a delivery-status update for a previously sent message.
type Receipt struct {
	Sid    string        `json:"sid"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}
