package flow

import (
	"strings"
	"testing"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
)

const testTermURL = "https://example.com/termo.docx"

func TestNormalizeBody(t *testing.T) {
	cases := map[string]string{
		"  SIM  ":    "sim",
		"Não":        "não",
		"Preenchido": "preenchido",
		"":           "",
	}
	for in, want := range cases {
		if got := NormalizeBody(in); got != want {
			t.Errorf("NormalizeBody(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEvaluateTransitionTable(t *testing.T) {
	f := NewFlow(testTermURL, nil)

	cases := []struct {
		name           string
		status         models.ContactStatus
		body           string
		wantNext       models.ContactStatus
		wantReplyPart  string // empty means no reply at all
		wantAutomation models.AutomationState
		wantConfirmed  bool
	}{
		{
			name:          "initial affirmative sends term",
			status:        models.StatusInitial,
			body:          "sim",
			wantNext:      models.StatusAwaitingTerm,
			wantReplyPart: testTermURL,
		},
		{
			name:          "initial quero counts as affirmative",
			status:        models.StatusInitial,
			body:          "quero",
			wantNext:      models.StatusAwaitingTerm,
			wantReplyPart: testTermURL,
		},
		{
			name:          "initial negative asks future offer",
			status:        models.StatusInitial,
			body:          "não",
			wantNext:      models.StatusFutureOffer,
			wantReplyPart: "propostas futuras",
		},
		{
			name:          "initial unrecognized asks clarification",
			status:        models.StatusInitial,
			body:          "ok",
			wantNext:      models.StatusInitial,
			wantReplyPart: "não entendi",
		},
		{
			name:           "future offer accepted pauses automation",
			status:         models.StatusFutureOffer,
			body:           "sim",
			wantNext:       models.StatusAwaitingFutureOffer,
			wantReplyPart:  "Confirmado",
			wantAutomation: models.AutomationPaused,
		},
		{
			name:           "future offer declined concludes automation",
			status:         models.StatusFutureOffer,
			body:           "nao",
			wantNext:       models.StatusRefusedFutureContact,
			wantReplyPart:  "Respeitamos sua decisão",
			wantAutomation: models.AutomationConcluded,
		},
		{
			name:     "future offer unrecognized stays silent",
			status:   models.StatusFutureOffer,
			body:     "ok",
			wantNext: models.StatusFutureOffer,
		},
		{
			name:          "term completion confirms",
			status:        models.StatusAwaitingTerm,
			body:          "preenchido",
			wantNext:      models.StatusPostTerm,
			wantReplyPart: "Agradecemos a confiança",
			wantConfirmed: true,
		},
		{
			name:          "term completion inside sentence",
			status:        models.StatusAwaitingTerm,
			body:          "já está preenchido!",
			wantNext:      models.StatusPostTerm,
			wantReplyPart: "Agradecemos a confiança",
			wantConfirmed: true,
		},
		{
			name:          "awaiting term anything else reminds",
			status:        models.StatusAwaitingTerm,
			body:          "ok",
			wantNext:      models.StatusAwaitingTerm,
			wantReplyPart: "aguardando o preenchimento",
		},
		{
			name:     "post term stays silent",
			status:   models.StatusPostTerm,
			body:     "sim",
			wantNext: models.StatusPostTerm,
		},
		{
			name:          "followup affirmative re-arms post term",
			status:        models.StatusFollowUpSent,
			body:          "sim",
			wantNext:      models.StatusPostTerm,
			wantReplyPart: "Que ótimo",
			wantConfirmed: true,
		},
		{
			name:          "followup negative asks future offer",
			status:        models.StatusFollowUpSent,
			body:          "não",
			wantNext:      models.StatusFutureOffer,
			wantReplyPart: "propostas futuras",
		},
		{
			name:          "followup unrecognized asks clarification",
			status:        models.StatusFollowUpSent,
			body:          "ok",
			wantNext:      models.StatusFollowUpSent,
			wantReplyPart: "não entendi",
		},
		{
			name:     "terminal refused stays put",
			status:   models.StatusRefusedFutureContact,
			body:     "sim",
			wantNext: models.StatusRefusedFutureContact,
		},
		{
			name:     "terminal awaiting agent stays put",
			status:   models.StatusAwaitingAgent,
			body:     "sim",
			wantNext: models.StatusAwaitingAgent,
		},
		{
			name:     "terminal awaiting future offer stays put",
			status:   models.StatusAwaitingFutureOffer,
			body:     "quero",
			wantNext: models.StatusAwaitingFutureOffer,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := f.Evaluate(tc.status, tc.body, "Maria")
			if d.Next != tc.wantNext {
				t.Errorf("Next = %s, want %s", d.Next, tc.wantNext)
			}
			if tc.wantReplyPart == "" {
				if d.Reply != "" {
					t.Errorf("expected silence, got reply %q", d.Reply)
				}
			} else if !strings.Contains(d.Reply, tc.wantReplyPart) {
				t.Errorf("reply %q does not contain %q", d.Reply, tc.wantReplyPart)
			}
			if d.Automation != tc.wantAutomation {
				t.Errorf("Automation = %q, want %q", d.Automation, tc.wantAutomation)
			}
			if d.TermConfirmed != tc.wantConfirmed {
				t.Errorf("TermConfirmed = %v, want %v", d.TermConfirmed, tc.wantConfirmed)
			}
		})
	}
}

func TestEvaluateEscalationOverridesEveryStatus(t *testing.T) {
	f := NewFlow(testTermURL, nil)

	statuses := []models.ContactStatus{
		models.StatusInitial,
		models.StatusAwaitingTerm,
		models.StatusPostTerm,
		models.StatusFutureOffer,
		models.StatusAwaitingFutureOffer,
		models.StatusRefusedFutureContact,
		models.StatusAwaitingAgent,
		models.StatusFollowUpSent,
	}

	for _, status := range statuses {
		d := f.Evaluate(status, "quero falar com o atendente", "Maria")
		if d.Next != models.StatusAwaitingAgent {
			t.Errorf("status %s: Next = %s, want %s", status, d.Next, models.StatusAwaitingAgent)
		}
		if d.Automation != models.AutomationPaused {
			t.Errorf("status %s: Automation = %q, want paused", status, d.Automation)
		}
		if !strings.Contains(d.Reply, "especialistas") {
			t.Errorf("status %s: unexpected escalation reply %q", status, d.Reply)
		}
	}
}

func TestEvaluateTieBreakUnrecognized(t *testing.T) {
	f := NewFlow(testTermURL, nil)

	// Matches both keyword sets; treated as unrecognized for the state.
	d := f.Evaluate(models.StatusInitial, "sim e não", "Maria")
	if d.Next != models.StatusInitial {
		t.Errorf("Next = %s, want initial unchanged", d.Next)
	}
	if !strings.Contains(d.Reply, "não entendi") {
		t.Errorf("expected clarification, got %q", d.Reply)
	}

	d = f.Evaluate(models.StatusFutureOffer, "sim e não", "Maria")
	if d.Next != models.StatusFutureOffer || d.Reply != "" {
		t.Errorf("expected silent no-op, got next=%s reply=%q", d.Next, d.Reply)
	}
}

func TestEvaluateCustomCompletionKeywords(t *testing.T) {
	f := NewFlow(testTermURL, []string{"preenchido", "termo enviado"})

	d := f.Evaluate(models.StatusAwaitingTerm, "termo enviado agora", "Maria")
	if d.Next != models.StatusPostTerm || !d.TermConfirmed {
		t.Errorf("expected completion via alternate keyword, got next=%s confirmed=%v", d.Next, d.TermConfirmed)
	}
}

func TestEvaluateNameFallback(t *testing.T) {
	f := NewFlow(testTermURL, nil)

	d := f.Evaluate(models.StatusInitial, "ok", "")
	if !strings.Contains(d.Reply, DefaultContactName) {
		t.Errorf("expected fallback name in reply, got %q", d.Reply)
	}
}

func TestFollowUpReminder(t *testing.T) {
	msg := FollowUpReminder("Maria")
	if !strings.Contains(msg, "Maria") || !strings.Contains(msg, "SIM") {
		t.Errorf("unexpected reminder %q", msg)
	}
	if got := FollowUpReminder(""); !strings.Contains(got, DefaultContactName) {
		t.Errorf("expected fallback name, got %q", got)
	}
}
