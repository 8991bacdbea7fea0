// Package draft holds the in-progress post of the composer and its
// persistence under the draft key.
package draft

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/storage"
	"github.com/starford/postdesk/internal/validate"
)

// Editable scalar fields, named by their JSON keys.
const (
	FieldTitle          = "title"
	FieldContent        = "content"
	FieldCategory       = "category"
	FieldPublishTiming  = "publishTiming"
	FieldScheduledDate  = "scheduledDate"
	FieldVisibility     = "visibility"
	FieldSEOTitle       = "seoTitle"
	FieldSEODescription = "seoDescription"
	FieldTags           = "tags"
	FieldCoverImage     = "coverImage"
)

// RestorePrompt is shown when a persisted draft is found on open.
const RestorePrompt = "You have an unsaved draft. Would you like to restore it?"

// ErrUnknownField is returned by Edit for names that are not scalar fields.
var ErrUnknownField = errors.New("draft: unknown field")

// State is a read-only copy of the session.
type State struct {
	Fields            models.DraftFields `json:"fields"`
	HasUnsavedChanges bool               `json:"hasUnsavedChanges"`
	LastSavedAt       *time.Time         `json:"lastSavedAt,omitempty"`
	IsAutoSaving      bool               `json:"isAutoSaving"`
	Errors            validate.Errors    `json:"errors"`
}

// Session is the working copy of one post being authored. It is not safe for
// concurrent use; the owning workflow serialises access.
type Session struct {
	fields       models.DraftFields
	dirty        bool
	lastSavedAt  *time.Time
	isAutoSaving bool
	errors       validate.Errors

	// generation counts edits so a save can tell whether it captured the latest one.
	generation uint64
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{fields: models.NewDraftFields(), errors: validate.Errors{}}
}

// Edit sets a scalar field, marks the session dirty, and clears that field's
// error. Domain values are not checked here.
func (s *Session) Edit(field, value string) error {
	switch field {
	case FieldTitle:
		s.fields.Title = value
	case FieldContent:
		s.fields.Content = value
	case FieldCategory:
		s.fields.Category = value
	case FieldPublishTiming:
		s.fields.PublishTiming = models.PublishTiming(value)
	case FieldScheduledDate:
		s.fields.ScheduledDate = value
	case FieldVisibility:
		s.fields.Visibility = models.Visibility(value)
	case FieldSEOTitle:
		s.fields.SEOTitle = value
	case FieldSEODescription:
		s.fields.SEODescription = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	s.touch(field)
	return nil
}

// AddTag appends a trimmed tag. Blank tags and exact duplicates are ignored
// and reported as false.
func (s *Session) AddTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false
	}
	for _, t := range s.fields.Tags {
		if t == tag {
			return false
		}
	}
	s.fields.Tags = append(s.fields.Tags, tag)
	s.touch(FieldTags)
	return true
}

// RemoveTag drops tag if present.
func (s *Session) RemoveTag(tag string) bool {
	for i, t := range s.fields.Tags {
		if t == tag {
			s.fields.Tags = append(s.fields.Tags[:i:i], s.fields.Tags[i+1:]...)
			s.touch(FieldTags)
			return true
		}
	}
	return false
}

// AttachCover stores an uploaded image as a data URL. An image above limit
// sets a coverImage error and leaves the field untouched.
func (s *Session) AttachCover(mimeType string, data []byte, limit int64) error {
	if err := validate.CoverImage(int64(len(data)), limit); err != nil {
		s.errors[FieldCoverImage] = err.Error()
		return err
	}
	url := CoverDataURL(mimeType, data)
	s.fields.CoverImage = &url
	s.touch(FieldCoverImage)
	return nil
}

// CoverDataURL encodes an image as the data URL stored in coverImage.
func CoverDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ClearCover removes the cover image.
func (s *Session) ClearCover() {
	s.fields.CoverImage = nil
	s.touch(FieldCoverImage)
}

func (s *Session) touch(field string) {
	s.dirty = true
	s.generation++
	delete(s.errors, field)
}

// Load replaces the fields with a restored draft and marks the session dirty.
func (s *Session) Load(f models.DraftFields) {
	if f.Tags == nil {
		f.Tags = []string{}
	}
	s.fields = f.Clone()
	s.dirty = true
	s.generation++
	s.errors = validate.Errors{}
}

// Reset restores empty defaults and clears every flag.
func (s *Session) Reset() {
	s.fields = models.NewDraftFields()
	s.dirty = false
	s.lastSavedAt = nil
	s.isAutoSaving = false
	s.errors = validate.Errors{}
	s.generation++
}

// Fields returns a deep copy of the current fields.
func (s *Session) Fields() models.DraftFields {
	return s.fields.Clone()
}

// Dirty reports whether there are unsaved changes.
func (s *Session) Dirty() bool {
	return s.dirty
}

// Generation identifies the current edit; it changes on every mutation.
func (s *Session) Generation() uint64 {
	return s.generation
}

// SetErrors replaces the field errors.
func (s *Session) SetErrors(e validate.Errors) {
	if e == nil {
		e = validate.Errors{}
	}
	s.errors = e
}

// BeginSave flags an autosave in flight.
func (s *Session) BeginSave() {
	s.isAutoSaving = true
}

// FinishSave records a completed save. The dirty flag is only cleared when no
// edit landed after the saved snapshot was taken; it reports whether it was.
func (s *Session) FinishSave(at time.Time, savedGeneration uint64) bool {
	s.isAutoSaving = false
	s.lastSavedAt = &at
	if s.generation == savedGeneration {
		s.dirty = false
		return true
	}
	return false
}

// AutoSaving reports whether an autosave is in flight.
func (s *Session) AutoSaving() bool {
	return s.isAutoSaving
}

// AbortSave clears the in-flight flag after a failed save.
func (s *Session) AbortSave() {
	s.isAutoSaving = false
}

// State returns a read-only copy of the session.
func (s *Session) State() State {
	errs := make(validate.Errors, len(s.errors))
	for k, v := range s.errors {
		errs[k] = v
	}
	var saved *time.Time
	if s.lastSavedAt != nil {
		t := *s.lastSavedAt
		saved = &t
	}
	return State{
		Fields:            s.fields.Clone(),
		HasUnsavedChanges: s.dirty,
		LastSavedAt:       saved,
		IsAutoSaving:      s.isAutoSaving,
		Errors:            errs,
	}
}

// RestoreIfPresent looks for a persisted draft. A non-blank draft is offered
// through confirm: accepting loads it, declining erases it. A draft that
// cannot be decoded is logged and treated as absent.
func (s *Session) RestoreIfPresent(ctx context.Context, store storage.Store, confirm func(string) bool, logger *slog.Logger) (restored bool, err error) {
	f, ok, err := Read(ctx, store)
	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			logger.Warn("draft: failed to load draft", slog.String("error", err.Error()))
			return false, nil
		}
		return false, err
	}
	if !ok || f.IsBlank() {
		return false, nil
	}
	if confirm(RestorePrompt) {
		s.Load(f)
		return true, nil
	}
	if err := store.Remove(ctx, models.DraftKey); err != nil {
		return false, fmt.Errorf("draft: discard: %w", err)
	}
	return false, nil
}
