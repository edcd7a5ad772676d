package messaging

import (
	"fmt"
	"regexp"
	"strings"
)

// RecipientPrefix is the channel prefix carried by canonical recipients and
// by Twilio webhook From values.
const RecipientPrefix = "whatsapp:"

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// CanonicalRecipient normalizes a phone number into the canonical form
// "whatsapp:+<digits>" used as the contact key everywhere. It accepts raw
// numbers, E.164 numbers, and already-canonical values, and is idempotent.
func CanonicalRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	rest := strings.TrimPrefix(recipient, RecipientPrefix)
	digits := phoneNumberRegex.ReplaceAllString(rest, "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", digits)
	}

	return RecipientPrefix + "+" + digits, nil
}

// BareNumber strips the channel prefix and any formatting from a canonical
// recipient, leaving only the digits. The WhatsApp client builds its JID
// from this form.
func BareNumber(canonical string) string {
	return phoneNumberRegex.ReplaceAllString(canonical, "")
}
