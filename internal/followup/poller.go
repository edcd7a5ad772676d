// Package followup nudges contacts whose confirmed term has gone quiet.
//
// A poll pass finds contacts sitting in pos_termo past the configured
// delay, flips each to followup_enviado with a conditional update, and only
// then sends the reminder. The flip-before-send order makes dispatch
// at-most-once: a concurrent pass (or a crashed one) can lose the update
// race but never double-send.
package followup

import (
	"context"
	"log/slog"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/flow"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/messaging"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/store"
)

// DefaultDelay is how long a contact may sit in pos_termo before the
// reminder goes out.
const DefaultDelay = 24 * time.Hour

// Poller runs follow-up passes. Scheduling is external; Run executes one
// pass.
type Poller struct {
	store store.Store
	svc   messaging.Service
	delay time.Duration
}

// NewPoller creates a Poller. delay <= 0 keeps the default.
func NewPoller(st store.Store, svc messaging.Service, delay time.Duration) *Poller {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Poller{store: st, svc: svc, delay: delay}
}

// Run executes one follow-up pass.
func (p *Poller) Run(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.delay)
	due, err := p.store.ListDueFollowUps(cutoff)
	if err != nil {
		slog.Error("Poller.Run: listing due follow-ups failed", "error", err)
		return
	}
	if len(due) == 0 {
		slog.Debug("Poller.Run: nothing due", "cutoff", cutoff)
		return
	}
	slog.Info("Poller.Run: follow-ups due", "count", len(due))

	for _, contact := range due {
		if ctx.Err() != nil {
			slog.Debug("Poller.Run: context cancelled, stopping pass")
			return
		}
		p.dispatch(ctx, contact)
	}
}

// dispatch flips one contact to followup_enviado and sends the reminder.
func (p *Poller) dispatch(ctx context.Context, contact models.Contact) {
	ok, err := p.store.UpdateContactStatusIf(contact.ID, models.StatusPostTerm, models.StatusFollowUpSent)
	if err != nil {
		slog.Error("Poller.dispatch: status flip failed", "error", err, "contact", contact.ID)
		return
	}
	if !ok {
		// Another pass or an inbound message moved the contact first.
		slog.Debug("Poller.dispatch: contact no longer in pos_termo, skipping", "contact", contact.ID)
		return
	}

	body := flow.FollowUpReminder(contact.Name)
	sid, err := p.svc.SendText(ctx, contact.Phone, body)
	if err != nil {
		// The status already advanced; the reminder is not retried.
		slog.Error("Poller.dispatch: reminder send failed", "error", err, "contact", contact.ID)
		return
	}

	if err := p.store.AddMessage(models.Message{
		ContactID:      contact.ID,
		Sender:         models.SenderOperator,
		Text:           body,
		Timestamp:      time.Now().UTC(),
		ProviderSid:    sid,
		DeliveryStatus: models.MessageStatusQueued,
	}); err != nil {
		slog.Warn("Poller.dispatch: logging reminder failed", "error", err, "contact", contact.ID)
	}

	slog.Info("Poller.dispatch: reminder sent", "contact", contact.ID, "sid", sid)
}
