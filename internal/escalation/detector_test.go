package escalation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{"refund request", "I want a refund for my order", true},
		{"uppercase", "I WAS DOUBLE CHARGED", true},
		{"mixed case", "My Account Was HaCkEd", true},
		{"multi-word keyword", "this thing is not working", true},
		{"apostrophe keyword", "it doesn't work at all", true},
		{"space-prefixed keyword", "the screen is broken", true},
		{"broken at start has no leading space", "broken screen", false},
		{"substring over-match", "I use Outbank for savings", true},
		{"password question", "How do I reset my password?", false},
		{"greeting", "hello there", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.message))
		})
	}
}

func TestMatchReturnsKeyword(t *testing.T) {
	kw, ok := Match("Please CANCEL my plan")
	assert.True(t, ok)
	assert.Equal(t, "cancel", kw)

	kw, ok = Match("what are your opening hours")
	assert.False(t, ok)
	assert.Empty(t, kw)
}

func TestDetectIsPure(t *testing.T) {
	msg := "my credit card was charged twice"
	first := Detect(msg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Detect(msg))
	}
}

func TestKeywordsAreLowercase(t *testing.T) {
	for _, kw := range Keywords {
		assert.Equal(t, strings.ToLower(kw), kw)
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"single line", "I want a refund", "Escalated issue detected in user message: 'I want a refund'"},
		{"multi line", "I want a refund\nfor order 42\r\n\tplease", "Escalated issue detected in user message: 'I want a refund for order 42 please'"},
		{"padded", "  refund   me ", "Escalated issue detected in user message: 'refund me'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summary(tt.message)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "\n")
		})
	}
}
