package models

import "errors"

// Validation constants for input validation
const (
	// MaxTextLength is the maximum body length WhatsApp accepts for a
	// single text message.
	MaxTextLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrMissingNumber    = errors.New("numero is required")
	ErrMissingContatos  = errors.New("contatos list is required")
	ErrMissingContactID = errors.New("contactId is required")
	ErrMissingText      = errors.New("text is required")
	ErrTextTooLong      = errors.New("text exceeds maximum length")
)

// ReasonMissingNumber is the per-item failure reason recorded for batch
// entries that arrive without a phone number.
const ReasonMissingNumber = "Número ausente"

// TriggerRequest asks the bot to open a conversation with one phone number
// using the approved first-contact template.
type TriggerRequest struct {
	Numero string `json:"numero"`
	Nome   string `json:"nome,omitempty"`
}

// Validate checks required fields on a TriggerRequest.
func (r *TriggerRequest) Validate() error {
	if r.Numero == "" {
		return ErrMissingNumber
	}
	return nil
}

// BatchRequest asks the bot to open conversations with many numbers.
// Items with a missing numero are not a request-level validation failure;
// they are recorded as per-item failures so the rest of the batch proceeds.
type BatchRequest struct {
	Contatos []TriggerRequest `json:"contatos"`
}

// Validate checks that the batch carries at least one item.
func (r *BatchRequest) Validate() error {
	if len(r.Contatos) == 0 {
		return ErrMissingContatos
	}
	return nil
}

// ManualMessageRequest sends a free-form operator message to an existing
// contact outside the automated flow.
type ManualMessageRequest struct {
	ContactID string `json:"contactId"`
	Text      string `json:"text"`
}

// Validate checks required fields on a ManualMessageRequest.
func (r *ManualMessageRequest) Validate() error {
	if r.ContactID == "" {
		return ErrMissingContactID
	}
	if r.Text == "" {
		return ErrMissingText
	}
	if len(r.Text) > MaxTextLength {
		return ErrTextTooLong
	}
	return nil
}

// API status strings shared by the JSON endpoints.
const (
	// APIStatusSuccess marks a completed request.
	APIStatusSuccess = "sucesso"
	// APIStatusError marks a failed request; Mensagem carries the cause.
	APIStatusError = "erro"
	// APIStatusAccepted marks an asynchronous request that was enqueued.
	APIStatusAccepted = "aceito"
)

// TriggerResponse is the reply to a single-contact trigger.
type TriggerResponse struct {
	Status   string `json:"status"`
	Sid      string `json:"sid,omitempty"`
	Mensagem string `json:"mensagem,omitempty"`
}

// TriggerSuccess builds the success payload for a dispatched template.
func TriggerSuccess(sid string) TriggerResponse {
	return TriggerResponse{Status: APIStatusSuccess, Sid: sid}
}

// TriggerError builds the error payload with a human-readable cause.
func TriggerError(msg string) TriggerResponse {
	return TriggerResponse{Status: APIStatusError, Mensagem: msg}
}

// BatchAcceptedResponse acknowledges an enqueued batch. Progress is read
// from the batch status endpoint using LoteID.
type BatchAcceptedResponse struct {
	Status string `json:"status"`
	LoteID string `json:"lote_id"`
	Total  int    `json:"total"`
}

// BatchSuccess is one dispatched batch item.
type BatchSuccess struct {
	Numero string `json:"numero"`
	Nome   string `json:"nome,omitempty"`
	Sid    string `json:"sid,omitempty"`
}

// BatchFailure is one failed batch item with its cause.
type BatchFailure struct {
	Numero string `json:"numero,omitempty"`
	Nome   string `json:"nome,omitempty"`
	Motivo string `json:"motivo"`
}

// BatchStatusResponse reports batch progress and the per-item partition.
// Every item lands in exactly one of Sucessos or Falhas once processed;
// ordering follows the original input order.
type BatchStatusResponse struct {
	Status    string         `json:"status"`
	Total     int            `json:"total"`
	Pendentes int            `json:"pendentes"`
	Sucessos  []BatchSuccess `json:"sucessos"`
	Falhas    []BatchFailure `json:"falhas"`
}
