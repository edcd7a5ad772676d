package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/messaging"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/store"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/twiliowhatsapp"
)

func newTestTrigger(t *testing.T) (*Trigger, *store.InMemoryStore, *twiliowhatsapp.MockClient) {
	t.Helper()
	st := store.NewInMemoryStore()
	mock := twiliowhatsapp.NewMockClient()
	svc := messaging.NewTwilioService(mock)
	t.Cleanup(func() { svc.Stop() })
	return NewTrigger(st, svc, "HX_template", ""), st, mock
}

func TestTriggerDispatch(t *testing.T) {
	trigger, st, mock := newTestTrigger(t)

	sid, err := trigger.Dispatch(context.Background(), "+55 11 99999-9999", "Maria")
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if sid != "SM_mock" {
		t.Errorf("expected sid SM_mock, got %s", sid)
	}

	contact, err := st.GetContactByPhone("whatsapp:+5511999999999")
	if err != nil {
		t.Fatalf("GetContactByPhone: %v", err)
	}
	if contact == nil {
		t.Fatal("expected contact created")
	}
	if contact.Status != models.StatusInitial || contact.Automation != models.AutomationActive {
		t.Errorf("unexpected contact state: %+v", contact)
	}
	if contact.Name != "Maria" {
		t.Errorf("expected name Maria, got %s", contact.Name)
	}

	if len(mock.SentTemplates) != 1 {
		t.Fatalf("expected 1 template send, got %d", len(mock.SentTemplates))
	}
	sent := mock.SentTemplates[0]
	if sent.TemplateSid != "HX_template" || sent.Variables["1"] != "Maria" {
		t.Errorf("unexpected template send: %+v", sent)
	}

	messages, err := st.ListMessages(contact.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected template mirrored to log, got %d messages", len(messages))
	}
	if messages[0].Sender != models.SenderOperator || !strings.Contains(messages[0].Text, "Maria") {
		t.Errorf("unexpected logged message: %+v", messages[0])
	}
}

func TestTriggerDispatchDefaultsName(t *testing.T) {
	trigger, _, mock := newTestTrigger(t)

	if _, err := trigger.Dispatch(context.Background(), "+5511999999999", ""); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if got := mock.SentTemplates[0].Variables["1"]; got != "Cliente" {
		t.Errorf("expected default name Cliente, got %s", got)
	}
}

func TestTriggerDispatchInvalidNumber(t *testing.T) {
	trigger, st, mock := newTestTrigger(t)

	if _, err := trigger.Dispatch(context.Background(), "abc", "Maria"); err == nil {
		t.Error("expected validation error")
	}
	contacts, _ := st.ListContacts()
	if len(contacts) != 0 {
		t.Errorf("expected no contact on invalid number, got %d", len(contacts))
	}
	if len(mock.SentTemplates) != 0 {
		t.Errorf("expected no send, got %d", len(mock.SentTemplates))
	}
}

func TestTriggerDispatchResetsExistingContact(t *testing.T) {
	trigger, st, _ := newTestTrigger(t)

	first, err := trigger.Dispatch(context.Background(), "+5511999999999", "Maria")
	if err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	_ = first

	contact, _ := st.GetContactByPhone("whatsapp:+5511999999999")
	contact.Status = models.StatusAwaitingTerm
	if err := st.UpdateContact(*contact); err != nil {
		t.Fatalf("UpdateContact: %v", err)
	}

	if _, err := trigger.Dispatch(context.Background(), "+5511999999999", "Maria Clara"); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}

	again, _ := st.GetContactByPhone("whatsapp:+5511999999999")
	if again.ID != contact.ID {
		t.Errorf("expected same contact id, got %s and %s", contact.ID, again.ID)
	}
	if again.Status != models.StatusInitial || again.Name != "Maria Clara" {
		t.Errorf("expected reset to initial with new name, got %+v", again)
	}
}

func TestTriggerDispatchSendFailureKeepsContact(t *testing.T) {
	trigger, st, mock := newTestTrigger(t)
	mock.Err = errors.New("Twilio error 20003")

	if _, err := trigger.Dispatch(context.Background(), "+5511999999999", "Maria"); err == nil {
		t.Error("expected send error to propagate")
	}

	contact, _ := st.GetContactByPhone("whatsapp:+5511999999999")
	if contact == nil {
		t.Fatal("expected contact kept after failed send")
	}
	messages, _ := st.ListMessages(contact.ID)
	if len(messages) != 0 {
		t.Errorf("expected no logged message on failure, got %d", len(messages))
	}
}

func TestBuildBatch(t *testing.T) {
	contatos := []models.TriggerRequest{
		{Numero: "whatsapp:+5511911110001", Nome: "Ana"},
		{Numero: "", Nome: "Sem Numero"},
		{Numero: "whatsapp:+5511911110003"},
	}

	b, items := BuildBatch("lote_build_1", contatos)
	if b.Total != 3 || b.Pending != 2 {
		t.Errorf("expected total=3 pending=2, got %+v", b)
	}
	if b.Status != store.BatchStatusQueued {
		t.Errorf("expected queued batch, got %s", b.Status)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[1].Status != store.ItemStatusFailed || items[1].Reason != models.ReasonMissingNumber {
		t.Errorf("expected pre-failed missing number, got %+v", items[1])
	}
	for i, it := range items {
		if it.Idx != i {
			t.Errorf("expected idx %d preserved, got %d", i, it.Idx)
		}
	}
}

func TestBuildBatchAllMissingIsDone(t *testing.T) {
	b, _ := BuildBatch("lote_build_2", []models.TriggerRequest{{Nome: "A"}, {Nome: "B"}})
	if b.Status != store.BatchStatusDone || b.Pending != 0 {
		t.Errorf("expected settled batch with nothing queued, got %+v", b)
	}
}
