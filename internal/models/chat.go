package models

// Summary is a short recap of a conversation plus a suggested next step.
type Summary struct {
	Summary    string  `json:"summary"`
	NextAction *string `json:"next_action"`
}

// ChatReply is the outcome of handling one user message.
type ChatReply struct {
	Reply     string      `json:"reply"`
	Escalated bool        `json:"escalation"`
	FAQs      []FAQResult `json:"faqs"`
	Summary   *string     `json:"summary"`
}
