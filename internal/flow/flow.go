// Package flow implements the precatório outreach conversation: a keyword
// state machine over contact statuses, the reply copy, and the engine that
// applies both to inbound messages.
package flow

import (
	"strings"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
)

// Keyword sets, matched case-insensitively as substrings of the normalized
// body. Order inside a set carries no meaning.
var (
	affirmativeTokens = []string{"sim", "s", "yes", "quero"}
	negativeTokens    = []string{"não", "nao", "n", "no"}
)

// escalationToken hands the conversation to a human from any status.
const escalationToken = "atendente"

// DefaultCompletionKeywords confirm the term document was filled in while
// the contact is in aguardando_termo. "termo enviado" can be added through
// configuration.
var DefaultCompletionKeywords = []string{"preenchido"}

// Decision is the outcome of evaluating one inbound message.
type Decision struct {
	// Next is the resulting status. Equal to the current status when no
	// transition applies.
	Next models.ContactStatus
	// Reply is the text to send back, empty for silence.
	Reply string
	// Automation, when non-empty, replaces the contact's automation state.
	Automation models.AutomationState
	// TermConfirmed records (or re-arms) the term confirmation timestamp.
	TermConfirmed bool
}

// Flow evaluates inbound messages against the conversation state machine.
// It is pure: persistence and sending stay with the Engine.
type Flow struct {
	termURL            string
	completionKeywords []string
}

// NewFlow creates a Flow. completionKeywords empty keeps the default set.
func NewFlow(termURL string, completionKeywords []string) *Flow {
	if len(completionKeywords) == 0 {
		completionKeywords = DefaultCompletionKeywords
	}
	normalized := make([]string, len(completionKeywords))
	for i, kw := range completionKeywords {
		normalized[i] = strings.ToLower(strings.TrimSpace(kw))
	}
	return &Flow{termURL: termURL, completionKeywords: normalized}
}

// NormalizeBody lowercases and trims an inbound body for keyword matching.
func NormalizeBody(body string) string {
	return strings.ToLower(strings.TrimSpace(body))
}

func containsAny(body string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(body, token) {
			return true
		}
	}
	return false
}

// Evaluate runs the state machine for one normalized inbound body. name is
// the contact (or profile) name used in the reply copy; empty falls back to
// the generic salutation.
func (f *Flow) Evaluate(status models.ContactStatus, body, name string) Decision {
	if name == "" {
		name = DefaultContactName
	}

	// The escalation override runs before any state logic, for every
	// status including terminal ones.
	if strings.Contains(body, escalationToken) {
		return Decision{
			Next:       models.StatusAwaitingAgent,
			Reply:      escalationReply(),
			Automation: models.AutomationPaused,
		}
	}

	affirmative := containsAny(body, affirmativeTokens)
	negative := containsAny(body, negativeTokens)
	if affirmative && negative {
		// Ambiguous input falls through to the unrecognized branch of
		// the current status instead of favoring whichever set happens
		// to be checked first.
		affirmative, negative = false, false
	}

	switch status {
	case models.StatusInitial:
		switch {
		case affirmative:
			return Decision{Next: models.StatusAwaitingTerm, Reply: termInstructionsReply(name, f.termURL)}
		case negative:
			return Decision{Next: models.StatusFutureOffer, Reply: futureOfferReply(name)}
		default:
			return Decision{Next: status, Reply: clarifyReply(name)}
		}

	case models.StatusFutureOffer:
		switch {
		case affirmative:
			return Decision{
				Next:       models.StatusAwaitingFutureOffer,
				Reply:      futureOfferConfirmReply(name),
				Automation: models.AutomationPaused,
			}
		case negative:
			return Decision{
				Next:       models.StatusRefusedFutureContact,
				Reply:      farewellReply(name),
				Automation: models.AutomationConcluded,
			}
		default:
			return Decision{Next: status}
		}

	case models.StatusAwaitingTerm:
		if containsAny(body, f.completionKeywords) {
			return Decision{Next: models.StatusPostTerm, Reply: postTermReply(name), TermConfirmed: true}
		}
		return Decision{Next: status, Reply: termReminderReply()}

	case models.StatusFollowUpSent:
		switch {
		case affirmative:
			return Decision{Next: models.StatusPostTerm, Reply: stillWorkingReply(name), TermConfirmed: true}
		case negative:
			return Decision{Next: models.StatusFutureOffer, Reply: futureOfferReply(name)}
		default:
			return Decision{Next: status, Reply: clarifyReply(name)}
		}

	default:
		// pos_termo and the terminal statuses: stay silent, change nothing.
		return Decision{Next: status}
	}
}
