package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFAQsYAMLList(t *testing.T) {
	data := []byte(`
- question: How do I reset my password?
  answer: Go to Settings > Account > Reset Password.
  metadata:
    topic: auth
- question: How do I update my billing card?
  answer: Go to Billing > Payment Methods.
`)
	faqs, err := ParseFAQs(data, FormatYAML)
	require.NoError(t, err)
	require.Len(t, faqs, 2)
	assert.Equal(t, "How do I reset my password?", faqs[0].Question)
	assert.Equal(t, "auth", faqs[0].Metadata["topic"])
	assert.Nil(t, faqs[1].Metadata)
}

func TestParseFAQsYAMLMapping(t *testing.T) {
	data := []byte("faqs:\n  - question: q1\n    answer: a1\n")
	faqs, err := ParseFAQs(data, FormatYAML)
	require.NoError(t, err)
	require.Len(t, faqs, 1)
	assert.Equal(t, "a1", faqs[0].Answer)
}

func TestParseFAQsYAMLScalarIsError(t *testing.T) {
	_, err := ParseFAQs([]byte("just text"), FormatYAML)
	assert.Error(t, err)
}

func TestParseFAQsJSON(t *testing.T) {
	tests := []struct {
		name string
		data string
		want int
	}{
		{"list", `[{"question":"q1","answer":"a1"},{"question":"q2","answer":"a2"}]`, 2},
		{"object", `{"faqs":[{"question":"q1","answer":"a1","metadata":{"topic":"x"}}]}`, 1},
		{"empty list", `[]`, 0},
		{"blank", "  \n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			faqs, err := ParseFAQs([]byte(tt.data), FormatJSON)
			require.NoError(t, err)
			assert.NotNil(t, faqs)
			assert.Len(t, faqs, tt.want)
		})
	}

	_, err := ParseFAQs([]byte(`{"faqs": 3}`), FormatJSON)
	assert.Error(t, err)
}

func TestParseFAQsMarkdown(t *testing.T) {
	data := []byte(`---
topic: shipping
locale: en
---
# Shipping FAQ

Intro text that is not an answer.

## Where is my order?

Check Orders > Tracking.

### International orders

Allow up to 14 days.

## Can I change my address?

Contact us before the order ships.

` + "```" + `
## not a heading
` + "```" + `
`)
	faqs, err := ParseFAQs(data, FormatMarkdown)
	require.NoError(t, err)
	require.Len(t, faqs, 2)

	assert.Equal(t, "Where is my order?", faqs[0].Question)
	assert.Equal(t, "Check Orders > Tracking.\n\n### International orders\nAllow up to 14 days.", faqs[0].Answer)
	assert.Equal(t, "shipping", faqs[0].Metadata["topic"])
	assert.Equal(t, "en", faqs[1].Metadata["locale"])

	assert.Equal(t, "Can I change my address?", faqs[1].Question)
	assert.Contains(t, faqs[1].Answer, "## not a heading")

	faqs[0].Metadata["topic"] = "changed"
	assert.Equal(t, "shipping", faqs[1].Metadata["topic"], "entries do not share metadata maps")
}

func TestParseFAQsMarkdownBadFrontmatter(t *testing.T) {
	_, err := ParseFAQs([]byte("---\n: [unclosed\n---\n## q\na\n"), FormatMarkdown)
	assert.Error(t, err)
}

func TestParseFAQFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "faqs.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("- question: q\n  answer: a\n"), 0o644))
	faqs, err := ParseFAQFile(yamlPath)
	require.NoError(t, err)
	require.Len(t, faqs, 1)

	_, err = ParseFAQFile(filepath.Join(dir, "faqs.csv"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ParseFAQFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"a.yaml":     FormatYAML,
		"a.YML":      FormatYAML,
		"a.json":     FormatJSON,
		"a.md":       FormatMarkdown,
		"a.markdown": FormatMarkdown,
	}
	for path, want := range tests {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
}
