package twiliowhatsapp

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestMockClient_SendText(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	sid, err := mock.SendText(ctx, "whatsapp:+5511999990000", "Olá!")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid == "" {
		t.Error("expected a sid, got empty string")
	}

	if len(mock.SentTexts) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentTexts))
	}
	if mock.SentTexts[0].Body != "Olá!" {
		t.Errorf("expected body %q, got %q", "Olá!", mock.SentTexts[0].Body)
	}
}

func TestMockClient_SendTemplate(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()
	mock.NextSid = "SM123"

	sid, err := mock.SendTemplate(ctx, "whatsapp:+5511999990000", "HX000", map[string]string{"1": "Maria"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid != "SM123" {
		t.Errorf("expected sid %q, got %q", "SM123", sid)
	}

	if len(mock.SentTemplates) != 1 {
		t.Fatalf("expected 1 template send, got %d", len(mock.SentTemplates))
	}
	sent := mock.SentTemplates[0]
	if sent.TemplateSid != "HX000" {
		t.Errorf("expected template sid %q, got %q", "HX000", sent.TemplateSid)
	}
	if sent.Variables["1"] != "Maria" {
		t.Errorf("expected variable 1 = Maria, got %q", sent.Variables["1"])
	}
}

func TestMockClient_ErrInjection(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()
	mock.Err = errors.New("boom")

	if _, err := mock.SendText(ctx, "whatsapp:+5511999990000", "oi"); err == nil {
		t.Error("expected injected error from SendText")
	}
	if _, err := mock.SendTemplate(ctx, "whatsapp:+5511999990000", "HX000", nil); err == nil {
		t.Error("expected injected error from SendTemplate")
	}
	if len(mock.SentTexts) != 0 || len(mock.SentTemplates) != 0 {
		t.Error("expected no sends recorded on error")
	}
}

func TestNewClient_MissingCredentials(t *testing.T) {
	os.Unsetenv("TWILIO_ACCOUNT_SID")
	os.Unsetenv("TWILIO_AUTH_TOKEN")
	os.Unsetenv("TWILIO_WHATSAPP_NUMBER")

	if _, err := NewClient(); err == nil {
		t.Error("expected error when credentials are missing")
	}

	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error when from number is missing")
	}
}
