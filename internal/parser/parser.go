// Package parser extracts frontmatter metadata from spec documents.
//
// Parsing is total: malformed input never produces an error, only a
// defaulted result with diagnostics attached.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/specbook-dev/specbook/internal/models"
)

var (
	checkedRe   = regexp.MustCompile(`- \[[xX]\]`)
	uncheckedRe = regexp.MustCompile(`- \[ \]`)
)

// Result holds the output of parsing a spec document.
type Result struct {
	// Frontmatter holds the decoded key/value block, nil when absent
	// or malformed.
	Frontmatter map[string]any
	// Body is the markdown content after the frontmatter block. When
	// the block is absent or malformed the body is the whole input.
	Body string
	// Status is the workflow status from the frontmatter "status" key,
	// StatusUnknown when absent, malformed, or unrecognized.
	Status models.Status
	// Title is the frontmatter "title" or the first H1 heading.
	Title string
	// Diagnostics records non-fatal parse problems.
	Diagnostics []string
}

// Parse extracts frontmatter, status, and title from raw markdown bytes.
func Parse(data []byte) Result {
	fm, body, diags := splitFrontmatter(data)

	status := models.StatusUnknown
	if fm != nil {
		if raw, ok := fm["status"]; ok {
			s, recognized := models.ParseStatus(stringValue(raw))
			status = s
			if !recognized {
				diags = append(diags, fmt.Sprintf("unrecognized status value %q", stringValue(raw)))
			}
		}
	}

	return Result{
		Frontmatter: fm,
		Body:        body,
		Status:      status,
		Title:       deriveTitle(fm, body),
		Diagnostics: diags,
	}
}

// CountTasks counts markdown checkbox items, used for tasks.md completion.
func CountTasks(data []byte) models.Completion {
	checked := len(checkedRe.FindAll(data, -1))
	unchecked := len(uncheckedRe.FindAll(data, -1))
	return models.Completion{
		TotalTasks:     checked + unchecked,
		CompletedTasks: checked,
	}
}

// splitFrontmatter separates a leading YAML block (between --- delimiter
// lines) from the markdown body. A missing closing delimiter or invalid
// YAML yields a nil map, the full input as body, and a diagnostic.
// Delimiters match whole lines only, so a `----` horizontal rule is
// plain body, not a frontmatter fence.
func splitFrontmatter(data []byte) (map[string]any, string, []string) {
	trimmed := bytes.TrimLeft(data, "\n\r")

	opener, rest, found := bytes.Cut(trimmed, []byte("\n"))
	if !found || !delimiterLine(opener) {
		return nil, string(data), nil
	}

	blockEnd, bodyStart := -1, -1
	for start := 0; ; {
		lineEnd := len(rest)
		nl := bytes.IndexByte(rest[start:], '\n')
		if nl >= 0 {
			lineEnd = start + nl
		}
		if delimiterLine(rest[start:lineEnd]) {
			blockEnd = start
			bodyStart = lineEnd + 1
			break
		}
		if nl < 0 {
			break
		}
		start = lineEnd + 1
	}
	if blockEnd < 0 {
		return nil, string(data), []string{"frontmatter block has no closing delimiter"}
	}

	yamlBlock := rest[:blockEnd]
	body := ""
	if bodyStart < len(rest) {
		body = strings.TrimLeft(string(rest[bodyStart:]), "\n\r")
	}

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data), []string{fmt.Sprintf("invalid frontmatter YAML: %v", err)}
	}

	return fm, body, nil
}

// delimiterLine reports whether a line is exactly the --- fence,
// allowing a trailing CR from CRLF files.
func delimiterLine(line []byte) bool {
	return string(bytes.TrimRight(line, "\r")) == "---"
}

// deriveTitle returns the frontmatter "title" if present, otherwise the
// first H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}
