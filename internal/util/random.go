// Package util provides utility functions for the chatbot application.
package util

import "math/rand/v2"

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; these IDs are identifiers, not secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = hexChars[rand.IntN(len(hexChars))]
	}
	return string(buf)
}

// GenerateContactID generates a unique contact ID with "c_" prefix.
func GenerateContactID() string {
	return GenerateRandomID("c_", 32)
}

// GenerateMessageID generates a unique message ID with "m_" prefix.
func GenerateMessageID() string {
	return GenerateRandomID("m_", 32)
}

// GenerateBatchID generates a unique trigger-batch ID with "lote_" prefix.
func GenerateBatchID() string {
	return GenerateRandomID("lote_", 32)
}
