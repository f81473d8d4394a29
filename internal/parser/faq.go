package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/csbot-go/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for file extensions ParseFAQFile does not know.
var ErrUnsupportedFormat = errors.New("unsupported faq file format")

// Format identifies an FAQ file encoding.
type Format string

const (
	FormatYAML     Format = "yaml"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// FormatFromPath maps a file extension to a Format.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

// ParseFAQFile reads path and parses it according to its extension.
func ParseFAQFile(path string) ([]models.FAQInput, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	faqs, err := ParseFAQs(data, format)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return faqs, nil
}

// ParseFAQs parses FAQ inputs from data.
//
// YAML and JSON accept either a top-level list of {question, answer,
// metadata} objects or an object with a "faqs" list. Markdown treats
// every level-2 heading as a question and its body as the answer; the
// frontmatter becomes metadata shared by every entry.
func ParseFAQs(data []byte, format Format) ([]models.FAQInput, error) {
	switch format {
	case FormatYAML:
		return parseYAML(data)
	case FormatJSON:
		return parseJSON(data)
	case FormatMarkdown:
		return parseMarkdownFAQs(string(data))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

type faqDocument struct {
	FAQs []models.FAQInput `json:"faqs" yaml:"faqs"`
}

func parseYAML(data []byte) ([]models.FAQInput, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return []models.FAQInput{}, nil
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var list []models.FAQInput
		if err := root.Decode(&list); err != nil {
			return nil, err
		}
		return nonNil(list), nil
	case yaml.MappingNode:
		var doc faqDocument
		if err := root.Decode(&doc); err != nil {
			return nil, err
		}
		return nonNil(doc.FAQs), nil
	}
	return nil, fmt.Errorf("expected a list or a faqs mapping, got %s", kindName(root.Kind))
}

func parseJSON(data []byte) ([]models.FAQInput, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []models.FAQInput{}, nil
	}

	if trimmed[0] == '[' {
		var list []models.FAQInput
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return nonNil(list), nil
	}

	var doc faqDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return nonNil(doc.FAQs), nil
}

func parseMarkdownFAQs(content string) ([]models.FAQInput, error) {
	doc, err := ParseMarkdown(content)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}

	faqs := []models.FAQInput{}
	var (
		current *models.FAQInput
		answer  strings.Builder
	)
	flush := func() {
		if current == nil {
			return
		}
		current.Answer = strings.TrimSpace(answer.String())
		faqs = append(faqs, *current)
		answer.Reset()
		current = nil
	}

	for _, sec := range doc.Sections {
		switch {
		case sec.Level == 2:
			flush()
			current = &models.FAQInput{Question: sec.Heading}
			if len(doc.Frontmatter) > 0 {
				current.Metadata = maps.Clone(doc.Frontmatter)
			}
			answer.WriteString(sec.Content)
		case sec.Level > 2 && current != nil:
			// Deeper headings belong to the answer.
			answer.WriteString("\n\n")
			answer.WriteString(strings.Repeat("#", sec.Level) + " " + sec.Heading)
			if sec.Content != "" {
				answer.WriteString("\n")
				answer.WriteString(sec.Content)
			}
		default:
			flush()
		}
	}
	flush()

	return faqs, nil
}

func nonNil(list []models.FAQInput) []models.FAQInput {
	if list == nil {
		return []models.FAQInput{}
	}
	return list
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	}
	return "unknown node"
}
