package domain

import "strings"

// maskedSuffixLen is how many trailing characters of a buyer contact survive
// masking. Everything escalation-facing must pass through MaskContact before
// leaving the escalation service.
const maskedSuffixLen = 4

// MaskContact reduces a raw buyer contact (phone number, chat handle) to a
// fixed-length suffix. Short values are masked entirely.
func MaskContact(contact string) string {
	contact = strings.TrimSpace(contact)
	if len(contact) <= maskedSuffixLen {
		return strings.Repeat("*", len(contact))
	}
	return "****" + contact[len(contact)-maskedSuffixLen:]
}
