// Package validate checks composer input before the guarded workflow
// transitions. Every function here is pure.
package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/postdesk/internal/models"
)

// Field names used as error keys. They match the JSON keys of DraftFields.
const (
	FieldTitle         = "title"
	FieldContent       = "content"
	FieldScheduledDate = "scheduledDate"
	FieldCoverImage    = "coverImage"
)

const (
	titleMin   = 3
	titleMax   = 100
	contentMin = 10

	// MaxCoverBytes is the default size ceiling for an attached cover image.
	MaxCoverBytes = 5 << 20
)

// Errors maps a field name to a human-readable message.
type Errors map[string]string

// Valid reports whether no rule failed.
func (e Errors) Valid() bool {
	return len(e) == 0
}

// Error implements error with a stable, key-sorted rendering.
func (e Errors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e[k]
	}
	return strings.Join(parts, "; ")
}

// notBlank rejects whitespace-only strings; Required alone accepts them.
func notBlank(msg string) validation.Rule {
	return validation.NewStringRuleWithError(
		func(s string) bool { return strings.TrimSpace(s) != "" },
		validation.NewError("validation_not_blank", msg),
	)
}

// Draft checks the content step: title and content. Only the first failing
// rule per field is reported.
func Draft(f models.DraftFields) Errors {
	err := validation.ValidateStruct(&f,
		validation.Field(&f.Title,
			validation.Required.Error("Title is required"),
			notBlank("Title is required"),
			validation.RuneLength(titleMin, 0).Error(fmt.Sprintf("Title must be at least %d characters", titleMin)),
			validation.RuneLength(0, titleMax).Error(fmt.Sprintf("Title must be less than %d characters", titleMax)),
		),
		validation.Field(&f.Content,
			validation.Required.Error("Content is required"),
			notBlank("Content is required"),
			validation.RuneLength(contentMin, 0).Error(fmt.Sprintf("Content must be at least %d characters", contentMin)),
		),
	)
	return toErrors(err)
}

// Publish runs Draft and additionally requires a date when the post is scheduled.
func Publish(f models.DraftFields) Errors {
	errs := Draft(f)
	if f.PublishTiming == models.TimingSchedule && strings.TrimSpace(f.ScheduledDate) == "" {
		errs[FieldScheduledDate] = "Scheduled date is required"
	}
	return errs
}

// CoverImage checks an upload against the size ceiling. A non-positive limit
// falls back to MaxCoverBytes.
func CoverImage(size, limit int64) error {
	if limit <= 0 {
		limit = MaxCoverBytes
	}
	if size > limit {
		return fmt.Errorf("Image must be less than %dMB", limit>>20)
	}
	return nil
}

func toErrors(err error) Errors {
	out := Errors{}
	if err == nil {
		return out
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		// Internal ozzo errors are not field-scoped.
		out["_"] = err.Error()
		return out
	}
	for field, ferr := range verrs {
		if ferr != nil {
			out[field] = ferr.Error()
		}
	}
	return out
}
