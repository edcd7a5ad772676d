package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/testutil"
)

const testPhone = "whatsapp:+5511999999999"

func TestWebhookAdvancesFlow(t *testing.T) {
	ts := testutil.NewTestServer(t)
	contact := testutil.SeedContact(t, ts.Store, testPhone, "Maria", models.StatusInitial)

	rr := httptest.NewRecorder()
	req := testutil.CreateFormRequest(t, "/webhook", map[string]string{
		"From":        testPhone,
		"ProfileName": "Maria",
		"Body":        "Sim",
		"MessageSid":  "SM_in_1",
	})
	ts.Handler.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "webhook")
	if rr.Body.String() != "OK" {
		t.Errorf("expected body OK, got %q", rr.Body.String())
	}

	got, err := ts.Store.GetContactByPhone(testPhone)
	if err != nil {
		t.Fatalf("GetContactByPhone: %v", err)
	}
	if got.Status != models.StatusAwaitingTerm {
		t.Errorf("expected status %s, got %s", models.StatusAwaitingTerm, got.Status)
	}
	if got.LastMessage != "Sim" || !got.Unread {
		t.Errorf("expected last-message fields updated, got %+v", got)
	}

	if len(ts.Client.SentTexts) != 1 {
		t.Fatalf("expected 1 reply sent, got %d", len(ts.Client.SentTexts))
	}
	if !strings.Contains(ts.Client.SentTexts[0].Body, testutil.TestTermURL) {
		t.Errorf("expected reply to carry the term link, got %q", ts.Client.SentTexts[0].Body)
	}

	testutil.AssertMessageCount(t, ts.Store, contact.ID, 2, "inbound plus reply")
}

func TestWebhookMissingFromStillOK(t *testing.T) {
	ts := testutil.NewTestServer(t)

	rr := httptest.NewRecorder()
	req := testutil.CreateFormRequest(t, "/webhook", map[string]string{"Body": "sim"})
	ts.Handler.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "webhook without From")
	if rr.Body.String() != "OK" {
		t.Errorf("expected body OK, got %q", rr.Body.String())
	}
	if len(ts.Client.SentTexts) != 0 {
		t.Errorf("expected no sends, got %d", len(ts.Client.SentTexts))
	}
}

func TestWebhookUnknownContactSilent(t *testing.T) {
	ts := testutil.NewTestServer(t)

	rr := httptest.NewRecorder()
	req := testutil.CreateFormRequest(t, "/webhook", map[string]string{
		"From":       "whatsapp:+5511888888888",
		"Body":       "sim",
		"MessageSid": "SM_in_unknown",
	})
	ts.Handler.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "webhook unknown contact")
	contacts, _ := ts.Store.ListContacts()
	if len(contacts) != 0 {
		t.Errorf("expected no contact rows created, got %d", len(contacts))
	}
	if len(ts.Client.SentTexts) != 0 {
		t.Errorf("expected no sends, got %d", len(ts.Client.SentTexts))
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	ts := testutil.NewTestServer(t)

	rr := httptest.NewRecorder()
	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/webhook", nil)
	ts.Handler.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "GET webhook")
	if allow := rr.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("expected Allow: POST, got %q", allow)
	}
}

func TestStatusCallbackUpdatesDelivery(t *testing.T) {
	ts := testutil.NewTestServer(t)
	contact := testutil.SeedContact(t, ts.Store, testPhone, "Maria", models.StatusInitial)
	if err := ts.Store.AddMessage(models.Message{
		ContactID:      contact.ID,
		Sender:         models.SenderOperator,
		Text:           "proposta",
		ProviderSid:    "SM_out_42",
		DeliveryStatus: models.MessageStatusQueued,
	}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	rr := httptest.NewRecorder()
	req := testutil.CreateFormRequest(t, "/webhook/status", map[string]string{
		"MessageSid":    "SM_out_42",
		"MessageStatus": "delivered",
	})
	ts.Handler.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusNoContent, rr.Code, "status callback")
	messages, err := ts.Store.ListMessages(contact.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if messages[0].DeliveryStatus != models.MessageStatusDelivered {
		t.Errorf("expected delivered, got %s", messages[0].DeliveryStatus)
	}
}

func TestStatusCallbackUnknownSidIgnored(t *testing.T) {
	ts := testutil.NewTestServer(t)

	rr := httptest.NewRecorder()
	req := testutil.CreateFormRequest(t, "/webhook/status", map[string]string{
		"MessageSid":    "SM_nobody",
		"MessageStatus": "read",
	})
	ts.Handler.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusNoContent, rr.Code, "unknown sid callback")
}

func TestStatusCallbackMissingFields(t *testing.T) {
	ts := testutil.NewTestServer(t)

	rr := httptest.NewRecorder()
	req := testutil.CreateFormRequest(t, "/webhook/status", map[string]string{})
	ts.Handler.ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusNoContent, rr.Code, "empty status callback")
}
