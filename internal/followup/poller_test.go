package followup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/flow"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/messaging"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/store"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/twiliowhatsapp"
)

func newTestPoller(t *testing.T) (*Poller, *store.InMemoryStore, *twiliowhatsapp.MockClient) {
	t.Helper()
	st := store.NewInMemoryStore()
	mock := twiliowhatsapp.NewMockClient()
	svc := messaging.NewTwilioService(mock)
	t.Cleanup(func() { svc.Stop() })
	return NewPoller(st, svc, 24*time.Hour), st, mock
}

func seedPostTermContact(t *testing.T, st *store.InMemoryStore, phone string, confirmedAgo time.Duration) *models.Contact {
	t.Helper()
	contact, err := st.UpsertContact(models.Contact{
		Phone:      phone,
		Name:       "Maria",
		Status:     models.StatusPostTerm,
		Automation: models.AutomationActive,
	})
	if err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	confirmedAt := time.Now().UTC().Add(-confirmedAgo)
	contact.TermConfirmedAt = &confirmedAt
	if err := st.UpdateContact(*contact); err != nil {
		t.Fatalf("set term_confirmed_at: %v", err)
	}
	return contact
}

func TestPollerSendsReminderOnce(t *testing.T) {
	poller, st, mock := newTestPoller(t)
	contact := seedPostTermContact(t, st, "whatsapp:+5511999999999", 25*time.Hour)

	poller.Run(context.Background())

	got, err := st.GetContact(contact.ID)
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if got.Status != models.StatusFollowUpSent {
		t.Errorf("status = %s, want %s", got.Status, models.StatusFollowUpSent)
	}
	if len(mock.SentTexts) != 1 {
		t.Fatalf("expected 1 reminder, got %d", len(mock.SentTexts))
	}
	if !strings.Contains(mock.SentTexts[0].Body, "interesse na venda") {
		t.Errorf("unexpected reminder body %q", mock.SentTexts[0].Body)
	}

	messages, err := st.ListMessages(contact.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 1 || messages[0].Sender != models.SenderOperator {
		t.Errorf("expected one operator message logged, got %+v", messages)
	}

	// The contact left pos_termo, so an immediate second pass is a no-op.
	poller.Run(context.Background())
	if len(mock.SentTexts) != 1 {
		t.Errorf("expected no second reminder, got %d sends", len(mock.SentTexts))
	}
}

func TestPollerSkipsRecentConfirmations(t *testing.T) {
	poller, st, mock := newTestPoller(t)
	contact := seedPostTermContact(t, st, "whatsapp:+5511988887777", time.Hour)

	poller.Run(context.Background())

	got, _ := st.GetContact(contact.ID)
	if got.Status != models.StatusPostTerm {
		t.Errorf("status = %s, want untouched pos_termo", got.Status)
	}
	if len(mock.SentTexts) != 0 {
		t.Errorf("expected no sends, got %d", len(mock.SentTexts))
	}
}

func TestPollerSendFailureDoesNotRetry(t *testing.T) {
	poller, st, mock := newTestPoller(t)
	contact := seedPostTermContact(t, st, "whatsapp:+5511977776666", 48*time.Hour)
	mock.Err = errors.New("Twilio error 20429")

	poller.Run(context.Background())

	got, _ := st.GetContact(contact.ID)
	if got.Status != models.StatusFollowUpSent {
		t.Errorf("status = %s, want flip before send", got.Status)
	}
	messages, _ := st.ListMessages(contact.ID)
	if len(messages) != 0 {
		t.Errorf("expected no message logged on failure, got %d", len(messages))
	}

	// Flip already happened, so the failed reminder is not retried.
	mock.Err = nil
	poller.Run(context.Background())
	if len(mock.SentTexts) != 0 {
		t.Errorf("expected no retry, got %d sends", len(mock.SentTexts))
	}
}

func TestPollerCancelledContextStopsPass(t *testing.T) {
	poller, st, mock := newTestPoller(t)
	seedPostTermContact(t, st, "whatsapp:+5511966665555", 30*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	poller.Run(ctx)

	if len(mock.SentTexts) != 0 {
		t.Errorf("expected cancelled pass to send nothing, got %d", len(mock.SentTexts))
	}
}

// racingPollerStore squeezes a full poller pass between the engine's contact
// read and its first write, the worst-case interleaving of a webhook and a
// follow-up pass over the same contact.
type racingPollerStore struct {
	*store.InMemoryStore
	poller *Poller
	once   sync.Once
}

func (s *racingPollerStore) UpdateContactActivity(id string, lastMessage string, lastTimestamp time.Time, unread bool) error {
	s.once.Do(func() { s.poller.Run(context.Background()) })
	return s.InMemoryStore.UpdateContactActivity(id, lastMessage, lastTimestamp, unread)
}

func newRacingEngine(t *testing.T) (*flow.Engine, *Poller, *store.InMemoryStore, *twiliowhatsapp.MockClient) {
	t.Helper()
	inner := store.NewInMemoryStore()
	mock := twiliowhatsapp.NewMockClient()
	svc := messaging.NewTwilioService(mock)
	t.Cleanup(func() { svc.Stop() })
	poller := NewPoller(inner, svc, 24*time.Hour)
	racing := &racingPollerStore{InMemoryStore: inner, poller: poller}
	engine := flow.NewEngine(racing, svc, flow.NewFlow("https://forms.example/termo", nil))
	return engine, poller, inner, mock
}

func countReminders(sent []twiliowhatsapp.SentText) int {
	n := 0
	for _, s := range sent {
		if strings.Contains(s.Body, "interesse na venda") {
			n++
		}
	}
	return n
}

func TestPollerFlipSurvivesConcurrentInbound(t *testing.T) {
	engine, poller, st, mock := newRacingEngine(t)
	contact := seedPostTermContact(t, st, "whatsapp:+5511955554444", 25*time.Hour)

	// The inbound is silent in pos_termo; only the activity bookkeeping
	// writes. The poller pass lands first and flips the contact.
	in := models.InboundMessage{
		From:       contact.Phone,
		Body:       "alguma novidade?",
		MessageSid: "SM_race_1",
		ReceivedAt: time.Now().UTC(),
	}
	if err := engine.ProcessInbound(context.Background(), in); err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}

	got, err := st.GetContact(contact.ID)
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if got.Status != models.StatusFollowUpSent {
		t.Errorf("status = %s, want the poller flip to survive the inbound write", got.Status)
	}
	if got.LastMessage != "alguma novidade?" || !got.Unread {
		t.Errorf("activity fields not updated: %+v", got)
	}

	// The contact left pos_termo, so a later pass finds nothing due.
	poller.Run(context.Background())
	if n := countReminders(mock.SentTexts); n != 1 {
		t.Errorf("reminder sent %d times, want exactly once", n)
	}
}

func TestPollerFlipDropsConcurrentTransition(t *testing.T) {
	engine, _, st, mock := newRacingEngine(t)
	contact := seedPostTermContact(t, st, "whatsapp:+5511944443333", 26*time.Hour)

	// An escalation evaluated against the stale pos_termo snapshot loses
	// the conditional write; the ack still goes out, the flip stands.
	in := models.InboundMessage{
		From:       contact.Phone,
		Body:       "quero falar com o atendente",
		MessageSid: "SM_race_2",
		ReceivedAt: time.Now().UTC(),
	}
	if err := engine.ProcessInbound(context.Background(), in); err != nil {
		t.Fatalf("ProcessInbound: %v", err)
	}

	got, err := st.GetContact(contact.ID)
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if got.Status != models.StatusFollowUpSent {
		t.Errorf("status = %s, want the first writer's flip to stand", got.Status)
	}

	if len(mock.SentTexts) != 2 {
		t.Fatalf("expected reminder plus escalation ack, got %d sends", len(mock.SentTexts))
	}
	if !strings.Contains(mock.SentTexts[0].Body, "interesse na venda") {
		t.Errorf("first send is not the reminder: %q", mock.SentTexts[0].Body)
	}
	if !strings.Contains(mock.SentTexts[1].Body, "especialistas") {
		t.Errorf("second send is not the escalation ack: %q", mock.SentTexts[1].Body)
	}
	if n := countReminders(mock.SentTexts); n != 1 {
		t.Errorf("reminder sent %d times, want exactly once", n)
	}
}
