package models

import "encoding/json"

// FAQEntry is a stored question/answer pair with its embedding.
type FAQEntry struct {
	ID        int64          `json:"id"`
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Embedding []float32      `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// FAQInput is an FAQ awaiting embedding and storage.
type FAQInput struct {
	Question string         `json:"question" yaml:"question"`
	Answer   string         `json:"answer" yaml:"answer"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// EmbeddingText returns the text embedded for an FAQ.
func (f FAQInput) EmbeddingText() string {
	return f.Question + "\n" + f.Answer
}

// FAQResult is an FAQ matched by similarity search.
type FAQResult struct {
	Entry FAQEntry `json:"-"`
	Score float64  `json:"score"`
}

// MarshalJSON flattens the entry fields next to the score.
func (r FAQResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(faqResultJSON{
		ID:       r.Entry.ID,
		Question: r.Entry.Question,
		Answer:   r.Entry.Answer,
		Metadata: r.Entry.Metadata,
		Score:    r.Score,
	})
}

// UnmarshalJSON reads the flattened form written by MarshalJSON.
func (r *FAQResult) UnmarshalJSON(data []byte) error {
	var v faqResultJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.Entry = FAQEntry{ID: v.ID, Question: v.Question, Answer: v.Answer, Metadata: v.Metadata}
	r.Score = v.Score
	return nil
}

type faqResultJSON struct {
	ID       int64          `json:"id"`
	Question string         `json:"question"`
	Answer   string         `json:"answer"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}
