// Package escalation flags user messages that must be routed to a human.
package escalation

import "strings"

// Reply is sent instead of a model answer when a message is escalated.
const Reply = "⚠️ I’m unable to assist with that request directly. Please contact support@example.com for further help regarding your issue."

// Keywords trigger escalation when found anywhere in a message,
// case-insensitively. Short entries such as "bank" also match inside
// longer words; that over-matching is accepted.
var Keywords = []string{
	// Security
	"hack", "hacked", "hacking", "attack", "attacked", "breach", "breached",
	// Returns
	"return", "returns", "returning", "return policy", "exchange", "exchanges",
	// Product faults
	" broken", "defective", "not working", "doesn't work", "warranty", "guarantee",
	// Billing
	"refund", "charge", "charged", "billing", "invoice", "cancel", "cancellation",
	"subscription", "payment", "double charged", "overcharged", "unauthorized charge",
	"fraud", "credit card", "bank", "refund please", "refund me",
}

// Detect reports whether message matches any escalation keyword.
func Detect(message string) bool {
	_, ok := Match(message)
	return ok
}

// Match returns the first keyword found in message.
func Match(message string) (string, bool) {
	lower := strings.ToLower(message)
	for _, kw := range Keywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

// Summary describes an escalated message for the session record on a
// single line; runs of whitespace in message collapse to one space.
func Summary(message string) string {
	return "Escalated issue detected in user message: '" + strings.Join(strings.Fields(message), " ") + "'"
}
