// Package parser converts between Markdown documents with YAML frontmatter
// and postdesk drafts and posts.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/postdesk/internal/models"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// Result holds the output of parsing a Markdown document.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Tags        []string
	Title       string
}

// Parse extracts frontmatter, body, tags and title from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. Without frontmatter the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: keep the whole document as body.
		return nil, string(data), nil
	}

	return fm, body, nil
}

// extractTags collects tags from the frontmatter "tags" field (a list or a
// comma-separated string) followed by inline #tags, without duplicates.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			add(s)
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if s := scalar(fm, "title"); s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// scalar renders a frontmatter value as a string. YAML timestamps come back
// in RFC 3339.
func scalar(fm map[string]any, key string) string {
	switch v := fm[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// ToDraft maps a parsed document onto draft fields. A leading H1 that only
// repeats the title is dropped from the content.
func ToDraft(r *Result) models.DraftFields {
	f := models.NewDraftFields()
	f.Title = r.Title
	f.Content = strings.TrimRight(stripTitleHeading(r.Body, r.Title), "\r\n")
	f.Tags = append(f.Tags, r.Tags...)
	f.Category = scalar(r.Frontmatter, "category")
	f.ScheduledDate = scalar(r.Frontmatter, "scheduledDate")
	f.SEOTitle = scalar(r.Frontmatter, "seoTitle")
	f.SEODescription = scalar(r.Frontmatter, "seoDescription")

	switch t := models.PublishTiming(scalar(r.Frontmatter, "publishTiming")); t {
	case models.TimingNow, models.TimingSchedule, models.TimingDraft:
		f.PublishTiming = t
	}
	switch v := models.Visibility(scalar(r.Frontmatter, "visibility")); v {
	case models.VisibilityAll, models.VisibilityPaid:
		f.Visibility = v
	}
	return f
}

func stripTitleHeading(body, title string) string {
	if title == "" {
		return body
	}
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if trimmed == "# "+title {
			return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\r\n")
		}
		break
	}
	return body
}

// WordCount returns the number of whitespace-separated words in content.
func WordCount(content string) int {
	return len(strings.Fields(content))
}
