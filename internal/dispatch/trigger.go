// Package dispatch implements first-contact triggering: the per-number
// template send shared by the single and batch endpoints, and the runner
// draining the durable batch queue.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/flow"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/messaging"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/store"
)

// Trigger performs the first-contact dispatch for one number: upsert the
// contact, send the pre-approved template, mirror the send into the
// message log.
type Trigger struct {
	store        store.Store
	svc          messaging.Service
	templateSid  string
	templateBody string
}

// NewTrigger creates a Trigger. templateBody is used for the logged
// message preview; empty keeps the default greeting.
func NewTrigger(st store.Store, svc messaging.Service, templateSid, templateBody string) *Trigger {
	if templateBody == "" {
		templateBody = messaging.DefaultTemplateBody
	}
	return &Trigger{store: st, svc: svc, templateSid: templateSid, templateBody: templateBody}
}

// Dispatch triggers the first contact for one number. The contact row is
// created (or reset to the start of the flow) before the send; a send
// failure leaves it in place, dormant, and returns the provider error.
func (t *Trigger) Dispatch(ctx context.Context, numero, nome string) (string, error) {
	if nome == "" {
		nome = flow.DefaultContactName
	}

	canonical, err := t.svc.ValidateAndCanonicalizeRecipient(numero)
	if err != nil {
		return "", err
	}

	contact, err := t.store.UpsertContact(models.Contact{
		Phone:      canonical,
		Name:       nome,
		Status:     models.StatusInitial,
		Automation: models.AutomationActive,
	})
	if err != nil {
		return "", fmt.Errorf("upsert contact %s failed: %w", canonical, err)
	}

	vars := map[string]string{"1": nome}
	sid, err := t.svc.SendTemplate(ctx, canonical, t.templateSid, vars)
	if err != nil {
		slog.Error("Trigger.Dispatch: template send failed", "error", err, "to", canonical)
		return "", err
	}

	if err := t.store.AddMessage(models.Message{
		ContactID:      contact.ID,
		Sender:         models.SenderOperator,
		Text:           messaging.RenderTemplate(t.templateBody, vars),
		Timestamp:      time.Now().UTC(),
		ProviderSid:    sid,
		DeliveryStatus: models.MessageStatusQueued,
	}); err != nil {
		slog.Warn("Trigger.Dispatch: logging template send failed", "error", err, "contact", contact.ID)
	}

	slog.Info("Trigger.Dispatch: template sent", "to", canonical, "sid", sid)
	return sid, nil
}

// DispatchItem adapts Dispatch to the runner's per-item callback.
func (t *Trigger) DispatchItem(ctx context.Context, item store.TriggerItem) (string, error) {
	return t.Dispatch(ctx, item.Numero, item.Nome)
}

// BuildBatch turns a trigger list into the batch row and its items.
// Entries without a number are recorded failed up front and never enter
// the queue; Pending counts only queued items.
func BuildBatch(id string, contatos []models.TriggerRequest) (store.TriggerBatch, []store.TriggerItem) {
	now := time.Now().UTC()
	items := make([]store.TriggerItem, 0, len(contatos))
	pending := 0
	for i, c := range contatos {
		it := store.TriggerItem{
			BatchID:   id,
			Idx:       i,
			Numero:    strings.TrimSpace(c.Numero),
			Nome:      strings.TrimSpace(c.Nome),
			Status:    store.ItemStatusQueued,
			UpdatedAt: now,
		}
		if it.Numero == "" {
			it.Status = store.ItemStatusFailed
			it.Reason = models.ReasonMissingNumber
		} else {
			pending++
		}
		items = append(items, it)
	}

	b := store.TriggerBatch{
		ID:        id,
		Total:     len(contatos),
		Pending:   pending,
		Status:    store.BatchStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pending == 0 {
		// Nothing to run; the batch is already settled.
		b.Status = store.BatchStatusDone
	}
	return b, items
}
