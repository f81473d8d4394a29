// Package parser reads FAQ catalogs from YAML, JSON and Markdown files.
package parser

import (
	"bufio"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var headingRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// MarkdownDoc represents a parsed Markdown document.
type MarkdownDoc struct {
	// Frontmatter metadata (from YAML)
	Frontmatter map[string]any

	// Main content (after frontmatter)
	Content string

	// Structured content by heading
	Sections []Section
}

// Section represents a heading and its content.
type Section struct {
	Level   int    // 1-6 for h1-h6
	Heading string // The heading text
	Content string // Content under this heading, up to the next heading of any level
	Start   int    // Line number where section starts
}

// ParseMarkdown splits off YAML frontmatter and parses the headings of
// the remaining document. Malformed frontmatter is a parse error.
func ParseMarkdown(content string) (*MarkdownDoc, error) {
	doc := &MarkdownDoc{
		Frontmatter: make(map[string]any),
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	remaining := content
	if strings.HasPrefix(content, "---\n") {
		endIdx := strings.Index(content[4:], "\n---")
		if endIdx >= 0 {
			frontmatterYAML := content[4 : 4+endIdx]
			remaining = strings.TrimPrefix(content[4+endIdx+4:], "\n")

			if err := yaml.Unmarshal([]byte(frontmatterYAML), &doc.Frontmatter); err != nil {
				return nil, err
			}
			if doc.Frontmatter == nil {
				doc.Frontmatter = make(map[string]any)
			}
		}
	}

	doc.Content = remaining
	doc.Sections = parseSections(remaining)
	return doc, nil
}

// parseSections extracts sections from Markdown content. Lines inside
// fenced code blocks are never treated as headings.
func parseSections(content string) []Section {
	var sections []Section

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	inFence := false

	var currentSection *Section
	var contentBuilder strings.Builder

	flushSection := func() {
		if currentSection != nil {
			currentSection.Content = strings.TrimSpace(contentBuilder.String())
			sections = append(sections, *currentSection)
			contentBuilder.Reset()
		}
	}

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}

		if match := headingRegex.FindStringSubmatch(line); !inFence && len(match) > 0 {
			flushSection()
			currentSection = &Section{
				Level:   len(match[1]),
				Heading: strings.TrimSpace(match[2]),
				Start:   lineNum,
			}
		} else if currentSection != nil {
			contentBuilder.WriteString(line)
			contentBuilder.WriteString("\n")
		}
	}

	flushSection()
	return sections
}
