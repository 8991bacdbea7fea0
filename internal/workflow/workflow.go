// Package workflow drives the two-step composer: content editing, then
// publishing options, ending in a committed post or a discarded draft.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/autosave"
	"github.com/starford/postdesk/internal/draft"
	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/posts"
	"github.com/starford/postdesk/internal/storage"
	"github.com/starford/postdesk/internal/validate"
)

// Step is the position of the composer in its state machine.
type Step string

const (
	StepContent           Step = "content"
	StepPublishingOptions Step = "publishing_options"
	StepCommitted         Step = "committed"
	StepDiscarded         Step = "discarded"
)

// Open reports whether the composer accepts edits in this step.
func (s Step) Open() bool {
	return s == StepContent || s == StepPublishingOptions
}

// User-facing messages.
const (
	MsgDraftSaved     = "Draft saved successfully!"
	MsgPublished      = "Post published successfully!"
	MsgFixFields      = "Please fix the highlighted fields"
	MsgSaveFailed     = "Failed to save draft"
	MsgPublishFailed  = "Failed to publish post"
	MsgConfirmDiscard = "You have unsaved changes. Are you sure you want to close?"
)

// DefaultAuthor is recorded on posts when no author is configured.
const DefaultAuthor = "You"

// Notifier receives fire-and-forget user notifications.
type Notifier interface {
	Notify(message string, severity models.Severity)
}

// Observer is optionally implemented by a Notifier that also wants
// persistence events.
type Observer interface {
	DraftSaved(at time.Time)
	PostsChanged()
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(message string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(message string) bool

func (f ConfirmFunc) Confirm(message string) bool { return f(message) }

// Always answers every prompt with the same value.
func Always(answer bool) Confirmer {
	return ConfirmFunc(func(string) bool { return answer })
}

// ValidationError is returned when a guarded transition is blocked.
type ValidationError struct {
	Fields validate.Errors
}

func (e *ValidationError) Error() string {
	return "workflow: validation failed: " + e.Fields.Error()
}

// Options tunes a Workflow. A zero interval, author, cover limit, clock or id
// generator selects the default; zero latencies mean none.
type Options struct {
	AutosaveInterval time.Duration
	AutosaveLatency  time.Duration
	SaveLatency      time.Duration
	PublishLatency   time.Duration
	Author           string
	MaxCoverBytes    int64

	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = autosave.DefaultInterval
	}
	if o.Author == "" {
		o.Author = DefaultAuthor
	}
	if o.MaxCoverBytes <= 0 {
		o.MaxCoverBytes = validate.MaxCoverBytes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = func() string { return "post-" + uuid.NewString() }
	}
	return o
}

// View is a read-only snapshot of the composer.
type View struct {
	Step Step `json:"step"`
	draft.State
	Busy bool `json:"busy"`
}

// Workflow is the single composer instance. All methods are safe for
// concurrent use. Store writes happen under the mutex, so no autosave lands
// after Close or Teardown returns.
type Workflow struct {
	store    storage.Store
	posts    *posts.Repository
	notifier Notifier
	logger   *slog.Logger
	opts     Options

	mu        sync.Mutex
	session   *draft.Session
	step      Step
	busy      bool
	stopped   bool
	scheduler *autosave.Scheduler
}

// New creates a workflow in the discarded step; call Open to start composing.
func New(store storage.Store, repo *posts.Repository, notifier Notifier, logger *slog.Logger, opts Options) *Workflow {
	w := &Workflow{
		store:    store,
		posts:    repo,
		notifier: notifier,
		logger:   logger,
		opts:     opts.withDefaults(),
		session:  draft.NewSession(),
		step:     StepDiscarded,
	}
	w.scheduler = autosave.New(w.opts.AutosaveInterval, w.onTimer)
	w.scheduler.Close()
	return w
}

// Open starts a fresh composer in the content step and offers to restore a
// persisted draft through confirm. Reopening a composer with unsaved changes
// asks MsgConfirmDiscard first; declining leaves it untouched and opened is
// false. It fails with ErrBusy while a save or publish is in flight.
func (w *Workflow) Open(ctx context.Context, confirm Confirmer) (opened, restored bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return false, false, apperr.ErrBusy
	}
	if w.step.Open() && w.session.Dirty() && !confirm.Confirm(MsgConfirmDiscard) {
		return false, false, nil
	}

	w.scheduler.Cancel()
	w.session = draft.NewSession()
	w.step = StepContent
	w.stopped = false
	w.scheduler.Reopen()

	restored, err = w.session.RestoreIfPresent(ctx, w.store, confirm.Confirm, w.logger)
	if err != nil {
		w.logger.Error("workflow: restore draft", slog.String("error", err.Error()))
		return true, false, fmt.Errorf("workflow: open: %w", err)
	}
	if restored {
		w.logger.Info("workflow: draft restored")
		w.scheduler.Arm()
	}
	w.logger.Debug("workflow: composer opened",
		slog.Bool("restored", restored),
		slog.Duration("autosave_interval", w.scheduler.Interval()),
	)
	return true, restored, nil
}

// MaxCoverBytes returns the cover image size ceiling.
func (w *Workflow) MaxCoverBytes() int64 {
	return w.opts.MaxCoverBytes
}

// View returns the current snapshot.
func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

func (w *Workflow) viewLocked() View {
	return View{Step: w.step, State: w.session.State(), Busy: w.busy}
}

// mutate applies fn to the open session and re-arms the autosave timer when
// the session ends up dirty. Edits are refused with ErrBusy while a save or
// publish is in flight.
func (w *Workflow) mutate(fn func(s *draft.Session) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.step.Open() {
		return apperr.ErrClosed
	}
	if w.busy {
		return apperr.ErrBusy
	}
	if err := fn(w.session); err != nil {
		return err
	}
	if w.session.Dirty() {
		w.scheduler.Arm()
	}
	return nil
}

// Edit sets one scalar field.
func (w *Workflow) Edit(field, value string) error {
	return w.mutate(func(s *draft.Session) error { return s.Edit(field, value) })
}

// EditFields applies several scalar edits in order, stopping at the first
// unknown field.
func (w *Workflow) EditFields(values map[string]string, order []string) error {
	return w.mutate(func(s *draft.Session) error {
		for _, k := range order {
			v, ok := values[k]
			if !ok {
				continue
			}
			if err := s.Edit(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddTag adds a tag; it reports false for blank or duplicate input.
func (w *Workflow) AddTag(tag string) (added bool, err error) {
	err = w.mutate(func(s *draft.Session) error {
		added = s.AddTag(tag)
		return nil
	})
	return added, err
}

// RemoveTag removes a tag; it reports false when the tag was not present.
func (w *Workflow) RemoveTag(tag string) (removed bool, err error) {
	err = w.mutate(func(s *draft.Session) error {
		removed = s.RemoveTag(tag)
		return nil
	})
	return removed, err
}

// AttachCover stores an image as the cover. Oversized images wrap
// apperr.ErrTooLarge and leave the current cover in place.
func (w *Workflow) AttachCover(mimeType string, data []byte) error {
	return w.mutate(func(s *draft.Session) error {
		if err := s.AttachCover(mimeType, data, w.opts.MaxCoverBytes); err != nil {
			return fmt.Errorf("%w: %s", apperr.ErrTooLarge, err.Error())
		}
		return nil
	})
}

// ClearCover removes the cover image.
func (w *Workflow) ClearCover() error {
	return w.mutate(func(s *draft.Session) error {
		s.ClearCover()
		return nil
	})
}

// Continue moves from the content step to the publishing options step when
// the content validates, autosaving immediately on success.
func (w *Workflow) Continue(ctx context.Context) error {
	w.mu.Lock()
	if w.step != StepContent {
		w.mu.Unlock()
		return apperr.ErrIllegalTransition
	}
	if err := w.guardLocked(validate.Draft); err != nil {
		w.mu.Unlock()
		return err
	}
	w.step = StepPublishingOptions
	s := w.session
	w.mu.Unlock()

	if err := w.AutoSave(ctx); err != nil && !errors.Is(err, apperr.ErrBusy) {
		w.mu.Lock()
		if w.session == s && w.step == StepPublishingOptions {
			w.step = StepContent
		}
		w.mu.Unlock()
		return err
	}
	return nil
}

// Back returns to the content step.
func (w *Workflow) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepPublishingOptions {
		return apperr.ErrIllegalTransition
	}
	w.step = StepContent
	return nil
}

// guardLocked runs check against the session, recording and reporting any
// failure.
func (w *Workflow) guardLocked(check func(models.DraftFields) validate.Errors) error {
	errs := check(w.session.Fields())
	w.session.SetErrors(errs)
	if errs.Valid() {
		return nil
	}
	w.notifier.Notify(MsgFixFields, models.SeverityError)
	return &ValidationError{Fields: errs}
}

func (w *Workflow) onTimer() {
	w.mu.Lock()
	dirty := w.step.Open() && w.session.Dirty()
	w.mu.Unlock()
	if !dirty {
		return
	}
	if err := w.AutoSave(context.Background()); err != nil && !errors.Is(err, apperr.ErrClosed) {
		w.logger.Warn("workflow: autosave failed", slog.String("error", err.Error()))
	}
}

// AutoSave writes the current fields under the draft key. A pending timer is
// cancelled first. If an edit lands while the save settles the session stays
// dirty and the timer is armed again.
func (w *Workflow) AutoSave(ctx context.Context) error {
	w.mu.Lock()
	if !w.step.Open() || w.stopped {
		w.mu.Unlock()
		return apperr.ErrClosed
	}
	s := w.session
	if s.AutoSaving() {
		w.mu.Unlock()
		return apperr.ErrBusy
	}
	w.scheduler.Cancel()
	fields := s.Fields()
	gen := s.Generation()
	if err := draft.Write(ctx, w.store, fields); err != nil {
		w.mu.Unlock()
		w.logger.Error("workflow: autosave", slog.String("error", err.Error()))
		w.notifier.Notify(MsgSaveFailed, models.SeverityError)
		return fmt.Errorf("workflow: autosave: %w", err)
	}
	s.BeginSave()
	w.mu.Unlock()

	sleep(ctx, w.opts.AutosaveLatency)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session != s {
		return nil
	}
	at := w.opts.Now()
	if !s.FinishSave(at, gen) && w.step.Open() {
		w.scheduler.Arm()
	}
	w.logger.Debug("workflow: draft autosaved", slog.Time("saved_at", at))
	if o, ok := w.notifier.(Observer); ok {
		o.DraftSaved(at)
	}
	return nil
}

// SaveDraft validates the content and stores it under the draft key with
// publish timing forced to draft, then closes the composer.
func (w *Workflow) SaveDraft(ctx context.Context) error {
	s, fields, err := w.begin(ctx, false)
	if err != nil {
		return err
	}
	fields.PublishTiming = models.TimingDraft

	sleep(ctx, w.opts.SaveLatency)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	if w.session != s {
		return apperr.ErrClosed
	}
	if err := draft.Write(ctx, w.store, fields); err != nil {
		w.logger.Error("workflow: save draft", slog.String("error", err.Error()))
		w.notifier.Notify(MsgSaveFailed, models.SeverityError)
		return fmt.Errorf("workflow: save draft: %w", err)
	}
	w.logger.Info("workflow: draft saved", slog.String("title", fields.Title))
	w.notifier.Notify(MsgDraftSaved, models.SeveritySuccess)
	if o, ok := w.notifier.(Observer); ok {
		o.DraftSaved(w.opts.Now())
	}
	w.finishLocked(StepCommitted)
	return nil
}

// Publish commits the draft as a post at the front of the collection, removes
// the persisted draft and closes the composer. It is only legal from the
// publishing options step.
func (w *Workflow) Publish(ctx context.Context) (*models.Post, error) {
	s, fields, err := w.begin(ctx, true)
	if err != nil {
		return nil, err
	}
	invoked := w.opts.Now()

	sleep(ctx, w.opts.PublishLatency)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = false
	if w.session != s {
		return nil, apperr.ErrClosed
	}

	p := w.buildPost(fields, invoked)
	if err := w.posts.Prepend(ctx, p); err != nil {
		w.logger.Error("workflow: publish", slog.String("error", err.Error()))
		w.notifier.Notify(MsgPublishFailed, models.SeverityError)
		return nil, fmt.Errorf("workflow: publish: %w", err)
	}
	if err := w.store.Remove(ctx, models.DraftKey); err != nil {
		w.logger.Warn("workflow: remove draft after publish", slog.String("error", err.Error()))
	}
	w.logger.Info("workflow: post committed",
		slog.String("id", p.ID),
		slog.String("status", string(p.Status)),
	)
	w.notifier.Notify(MsgPublished, models.SeveritySuccess)
	if o, ok := w.notifier.(Observer); ok {
		o.PostsChanged()
	}
	w.finishLocked(StepCommitted)
	return &p, nil
}

// begin checks the step and validation guards for a save or publish and
// raises the busy flag. The returned session identifies the composer the
// action belongs to.
func (w *Workflow) begin(ctx context.Context, publish bool) (*draft.Session, models.DraftFields, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, models.DraftFields{}, err
	}
	if !w.step.Open() {
		return nil, models.DraftFields{}, apperr.ErrClosed
	}
	if w.busy {
		return nil, models.DraftFields{}, apperr.ErrBusy
	}
	check := validate.Draft
	if publish {
		if w.step != StepPublishingOptions {
			return nil, models.DraftFields{}, apperr.ErrIllegalTransition
		}
		check = validate.Publish
	}
	if err := w.guardLocked(check); err != nil {
		return nil, models.DraftFields{}, err
	}
	w.busy = true
	return w.session, w.session.Fields(), nil
}

func (w *Workflow) buildPost(f models.DraftFields, at time.Time) models.Post {
	status := models.StatusFor(f.PublishTiming)
	p := models.Post{
		ID:          w.opts.NewID(),
		DraftFields: f,
		Status:      status,
		CreatedAt:   at,
		UpdatedAt:   at,
		Author:      w.opts.Author,
	}
	if p.SEOTitle == "" {
		p.SEOTitle = p.Title
	}
	if status == models.StatusPublished {
		t := at
		p.PublishedAt = &t
	}
	return p
}

// Close discards the composer. With unsaved changes the user is asked first;
// declining leaves everything as it was and returns false.
func (w *Workflow) Close(confirm Confirmer) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return false, apperr.ErrBusy
	}
	if !w.step.Open() {
		return true, nil
	}
	if w.session.Dirty() && !confirm.Confirm(MsgConfirmDiscard) {
		return false, nil
	}
	w.finishLocked(StepDiscarded)
	w.logger.Info("workflow: composer closed")
	return true, nil
}

// Teardown cancels any pending autosave and prevents new ones until the
// next Open.
func (w *Workflow) Teardown() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.scheduler.Close()
}

// finishLocked resets the session and moves to a terminal step.
func (w *Workflow) finishLocked(step Step) {
	w.scheduler.Close()
	w.session = draft.NewSession()
	w.step = step
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
