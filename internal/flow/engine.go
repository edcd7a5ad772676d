package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/messaging"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/store"
)

// Engine applies the conversation flow to inbound messages: dedup, message
// logging, state evaluation, and the reply send. Messages from the same
// phone are serialized with a per-phone lock; different phones proceed in
// parallel.
type Engine struct {
	store store.Store
	svc   messaging.Service
	flow  *Flow

	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

var _ messaging.InboundProcessor = (*Engine)(nil)

// NewEngine creates an Engine over the given store, messaging service and
// flow.
func NewEngine(st store.Store, svc messaging.Service, f *Flow) *Engine {
	return &Engine{
		store: st,
		svc:   svc,
		flow:  f,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing one phone's processing, creating it
// on first use.
func (e *Engine) lockFor(phone string) *sync.Mutex {
	e.mu.RLock()
	l, ok := e.locks[phone]
	e.mu.RUnlock()
	if ok {
		return l
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.locks[phone]; ok {
		return l
	}
	l = &sync.Mutex{}
	e.locks[phone] = l
	return l
}

// ProcessInbound handles one inbound message end to end. Unknown senders
// and duplicate deliveries are acknowledged without action. The transport
// layer acks regardless of the returned error; it exists for logging.
func (e *Engine) ProcessInbound(ctx context.Context, in models.InboundMessage) error {
	canonical, err := e.svc.ValidateAndCanonicalizeRecipient(in.From)
	if err != nil {
		slog.Warn("Engine.ProcessInbound: unusable sender, dropping", "error", err, "from", in.From)
		return nil
	}

	if in.MessageSid != "" {
		fresh, err := e.store.RecordInbound(in.MessageSid, canonical)
		if err != nil {
			return fmt.Errorf("record inbound %s failed: %w", in.MessageSid, err)
		}
		if !fresh {
			slog.Debug("Engine.ProcessInbound: duplicate delivery, already handled", "sid", in.MessageSid, "from", canonical)
			return nil
		}
	}

	lock := e.lockFor(canonical)
	lock.Lock()
	defer lock.Unlock()

	contact, err := e.store.GetContactByPhone(canonical)
	if err != nil {
		return fmt.Errorf("lookup contact %s failed: %w", canonical, err)
	}
	if contact == nil {
		// Numbers the system never triggered are ignored.
		slog.Debug("Engine.ProcessInbound: contact not found, dropping", "from", canonical)
		e.markProcessed(in.MessageSid)
		return nil
	}

	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	if err := e.store.AddMessage(models.Message{
		ContactID:   contact.ID,
		Sender:      models.SenderUser,
		Text:        in.Body,
		Timestamp:   receivedAt,
		ProviderSid: in.MessageSid,
	}); err != nil {
		return fmt.Errorf("log inbound message failed: %w", err)
	}

	// Last-message bookkeeping happens before evaluation so the operator
	// view reflects the message even when the flow stays silent. The write
	// touches only the activity columns; status stays whatever a concurrent
	// writer (follow-up poller, re-trigger) made it.
	if err := e.store.UpdateContactActivity(contact.ID, in.Body, receivedAt, true); err != nil {
		return fmt.Errorf("update contact %s failed: %w", contact.ID, err)
	}

	name := contact.Name
	if name == "" {
		name = in.ProfileName
	}
	decision := e.flow.Evaluate(contact.Status, NormalizeBody(in.Body), name)
	slog.Debug("Engine.ProcessInbound: evaluated",
		"from", canonical, "status", contact.Status, "next", decision.Next, "reply", decision.Reply != "")

	if decision.Reply != "" {
		sid, err := e.svc.SendText(ctx, canonical, decision.Reply)
		if err != nil {
			// A failed reply must not block the transition; the state
			// still advances and the webhook still acks.
			slog.Error("Engine.ProcessInbound: reply send failed", "error", err, "to", canonical)
		} else {
			if err := e.store.AddMessage(models.Message{
				ContactID:      contact.ID,
				Sender:         models.SenderOperator,
				Text:           decision.Reply,
				Timestamp:      time.Now().UTC(),
				ProviderSid:    sid,
				DeliveryStatus: models.MessageStatusQueued,
			}); err != nil {
				slog.Error("Engine.ProcessInbound: log outbound message failed", "error", err, "contact", contact.ID)
			}
		}
	}

	changed := decision.Next != contact.Status || decision.Automation != "" || decision.TermConfirmed
	if changed {
		prev := contact.Status
		contact.Status = decision.Next
		if decision.Automation != "" {
			contact.Automation = decision.Automation
		}
		if decision.TermConfirmed {
			now := time.Now().UTC()
			contact.TermConfirmedAt = &now
		}
		// Conditional on the status read at the top: if the follow-up
		// poller or a re-trigger moved the contact meanwhile, their write
		// wins and this transition is dropped.
		applied, err := e.store.UpdateContactStateIf(contact.ID, prev, contact.Status, contact.Automation, contact.TermConfirmedAt)
		if err != nil {
			return fmt.Errorf("persist transition for %s failed: %w", contact.ID, err)
		}
		if !applied {
			slog.Warn("Engine.ProcessInbound: transition lost to concurrent update",
				"contact", contact.ID, "from", prev, "to", decision.Next)
		} else {
			slog.Info("Engine.ProcessInbound: contact transitioned",
				"contact", contact.ID, "status", contact.Status, "automation", contact.Automation)
		}
	}

	e.markProcessed(in.MessageSid)
	return nil
}

func (e *Engine) markProcessed(messageSid string) {
	if messageSid == "" {
		return
	}
	if err := e.store.MarkProcessed(messageSid); err != nil {
		slog.Warn("Engine.markProcessed failed", "error", err, "sid", messageSid)
	}
}
