package parser

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/postdesk/internal/models"
)

// frontmatter is the YAML header written by Render. Field names match the
// keys read back by ToDraft.
type frontmatter struct {
	ID             string   `yaml:"id,omitempty"`
	Title          string   `yaml:"title"`
	Category       string   `yaml:"category,omitempty"`
	Tags           []string `yaml:"tags,omitempty"`
	Status         string   `yaml:"status,omitempty"`
	PublishTiming  string   `yaml:"publishTiming,omitempty"`
	ScheduledDate  string   `yaml:"scheduledDate,omitempty"`
	Visibility     string   `yaml:"visibility,omitempty"`
	SEOTitle       string   `yaml:"seoTitle,omitempty"`
	SEODescription string   `yaml:"seoDescription,omitempty"`
	Author         string   `yaml:"author,omitempty"`
	CreatedAt      string   `yaml:"createdAt,omitempty"`
	PublishedAt    string   `yaml:"publishedAt,omitempty"`
}

// Render writes p as Markdown with a YAML frontmatter header. The cover
// image is not exported.
func Render(p models.Post) ([]byte, error) {
	fm := frontmatter{
		ID:             p.ID,
		Title:          p.Title,
		Category:       p.Category,
		Tags:           p.Tags,
		Status:         string(p.Status),
		PublishTiming:  string(p.PublishTiming),
		ScheduledDate:  p.ScheduledDate,
		Visibility:     string(p.Visibility),
		SEOTitle:       p.SEOTitle,
		SEODescription: p.SEODescription,
		Author:         p.Author,
	}
	if !p.CreatedAt.IsZero() {
		fm.CreatedAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	if p.PublishedAt != nil {
		fm.PublishedAt = p.PublishedAt.UTC().Format(time.RFC3339)
	}

	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("parser: render frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimRight(p.Content, "\r\n"))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}
