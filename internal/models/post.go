// Package models defines the domain types for postdesk.
package models

import (
	"strings"
	"time"
)

// Storage keys shared with the dashboard front end.
const (
	DraftKey = "draft_post"
	PostsKey = "dashboard_posts"
)

// PublishTiming selects what happens to a post on commit.
type PublishTiming string

const (
	TimingNow      PublishTiming = "now"
	TimingSchedule PublishTiming = "schedule"
	TimingDraft    PublishTiming = "draft"
)

// Visibility controls the audience of a post.
type Visibility string

const (
	VisibilityAll  Visibility = "all"
	VisibilityPaid Visibility = "paid"
)

// Status is the lifecycle state of a committed post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusPublished Status = "published"
)

// StatusFor derives the committed status from the chosen publish timing.
func StatusFor(t PublishTiming) Status {
	switch t {
	case TimingNow:
		return StatusPublished
	case TimingSchedule:
		return StatusScheduled
	default:
		return StatusDraft
	}
}

// Severity tags a user-facing notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// DraftFields is the mutable working record of a post being authored.
// Tags keep insertion order and never contain duplicates.
type DraftFields struct {
	Title          string        `json:"title"`
	Content        string        `json:"content"`
	Category       string        `json:"category"`
	Tags           []string      `json:"tags"`
	CoverImage     *string       `json:"coverImage"`
	PublishTiming  PublishTiming `json:"publishTiming"`
	ScheduledDate  string        `json:"scheduledDate"`
	Visibility     Visibility    `json:"visibility"`
	SEOTitle       string        `json:"seoTitle"`
	SEODescription string        `json:"seoDescription"`
}

// NewDraftFields returns an empty draft with the composer defaults.
func NewDraftFields() DraftFields {
	return DraftFields{
		Tags:          []string{},
		PublishTiming: TimingDraft,
		Visibility:    VisibilityAll,
	}
}

// IsBlank reports whether neither title nor content carries any text.
func (f DraftFields) IsBlank() bool {
	return strings.TrimSpace(f.Title) == "" && strings.TrimSpace(f.Content) == ""
}

// Clone returns a deep copy of f.
func (f DraftFields) Clone() DraftFields {
	out := f
	out.Tags = append([]string{}, f.Tags...)
	if f.CoverImage != nil {
		img := *f.CoverImage
		out.CoverImage = &img
	}
	return out
}

// Post is a committed post record. It is immutable once appended to the
// posts collection.
type Post struct {
	ID string `json:"id"`
	DraftFields
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Author      string     `json:"author"`
	Views       int        `json:"views"`
	Likes       int        `json:"likes"`
}
