package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/draft"
	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/posts"
	"github.com/starford/postdesk/internal/storage"
)

type note struct {
	message  string
	severity models.Severity
}

type recorder struct {
	mu      sync.Mutex
	notes   []note
	saved   int
	changed int
}

func (r *recorder) Notify(message string, severity models.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note{message, severity})
}

func (r *recorder) DraftSaved(time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved++
}

func (r *recorder) PostsChanged() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed++
}

func (r *recorder) last() note {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return note{}
	}
	return r.notes[len(r.notes)-1]
}

// countingStore counts writes per key.
type countingStore struct {
	*storage.Memory
	mu     sync.Mutex
	writes map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: storage.NewMemory(), writes: map[string]int{}}
}

func (c *countingStore) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	c.writes[key]++
	c.mu.Unlock()
	return c.Memory.Set(ctx, key, value)
}

func (c *countingStore) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[key]
}

// failingStore rejects writes to one key.
type failingStore struct {
	*storage.Memory
	key string
}

func (f failingStore) Set(ctx context.Context, key, value string) error {
	if key == f.key {
		return errors.New("quota exceeded")
	}
	return f.Memory.Set(ctx, key, value)
}

type fixture struct {
	w     *Workflow
	store storage.Store
	repo  *posts.Repository
	rec   *recorder
}

func newFixture(t *testing.T, store storage.Store, opts Options) fixture {
	t.Helper()
	rec := &recorder{}
	repo := posts.NewRepository(store)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := New(store, repo, rec, logger, opts)
	t.Cleanup(w.Teardown)
	_, _, err := w.Open(context.Background(), Always(false))
	require.NoError(t, err)
	return fixture{w: w, store: store, repo: repo, rec: rec}
}

func fillValid(t *testing.T, w *Workflow) {
	t.Helper()
	require.NoError(t, w.Edit(draft.FieldTitle, "A valid title"))
	require.NoError(t, w.Edit(draft.FieldContent, "hello world this is long enough"))
}

func TestContinue_BlockedByValidation(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{})
	require.NoError(t, f.w.Edit(draft.FieldContent, "hello world this is long enough"))

	err := f.w.Continue(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Title is required", verr.Fields[draft.FieldTitle])
	assert.Len(t, verr.Fields, 1)

	v := f.w.View()
	assert.Equal(t, StepContent, v.Step)
	assert.Equal(t, "Title is required", v.Errors[draft.FieldTitle])
	assert.Equal(t, note{MsgFixFields, models.SeverityError}, f.rec.last())
}

func TestContinue_AutosavesAndAdvances(t *testing.T) {
	store := newCountingStore()
	f := newFixture(t, store, Options{AutosaveInterval: time.Hour})
	fillValid(t, f.w)

	require.NoError(t, f.w.Continue(context.Background()))

	v := f.w.View()
	assert.Equal(t, StepPublishingOptions, v.Step)
	assert.False(t, v.HasUnsavedChanges)
	assert.NotNil(t, v.LastSavedAt)
	assert.Equal(t, 1, store.count(models.DraftKey))

	stored, ok, err := draft.Read(context.Background(), store)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A valid title", stored.Title)
}

func TestBack(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{})
	assert.ErrorIs(t, f.w.Back(), apperr.ErrIllegalTransition)

	fillValid(t, f.w)
	require.NoError(t, f.w.Continue(context.Background()))
	require.NoError(t, f.w.Back())
	assert.Equal(t, StepContent, f.w.View().Step)
}

func TestPublish_OnlyFromPublishingOptions(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{})
	fillValid(t, f.w)

	_, err := f.w.Publish(context.Background())
	assert.ErrorIs(t, err, apperr.ErrIllegalTransition)
	assert.False(t, f.w.View().Busy)
}

func TestPublish_ScheduleRequiresDate(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{})
	ctx := context.Background()
	fillValid(t, f.w)
	require.NoError(t, f.w.Edit(draft.FieldPublishTiming, string(models.TimingSchedule)))
	require.NoError(t, f.w.Continue(ctx))

	_, err := f.w.Publish(ctx)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Scheduled date is required", verr.Fields["scheduledDate"])

	all, err := f.repo.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, StepPublishingOptions, f.w.View().Step)
}

func TestPublish_Now(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{})
	ctx := context.Background()
	fillValid(t, f.w)
	require.NoError(t, f.w.Edit(draft.FieldPublishTiming, string(models.TimingNow)))
	require.NoError(t, f.w.Continue(ctx))

	invoked := time.Now()
	p, err := f.w.Publish(ctx)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p.ID, "post-"), p.ID)
	assert.Equal(t, models.StatusPublished, p.Status)
	require.NotNil(t, p.PublishedAt)
	assert.False(t, p.PublishedAt.Before(invoked))
	assert.Equal(t, "A valid title", p.SEOTitle)
	assert.Equal(t, DefaultAuthor, p.Author)
	assert.Zero(t, p.Views)
	assert.Zero(t, p.Likes)

	all, err := f.repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, p.ID, all[0].ID)

	_, ok, _ := f.store.Get(ctx, models.DraftKey)
	assert.False(t, ok, "draft key must be removed")

	v := f.w.View()
	assert.Equal(t, StepCommitted, v.Step)
	assert.Equal(t, models.NewDraftFields(), v.Fields)
	assert.Equal(t, note{MsgPublished, models.SeveritySuccess}, f.rec.last())
	assert.Equal(t, 1, f.rec.changed)
}

func TestPublish_StatusDerivation(t *testing.T) {
	tests := []struct {
		timing    models.PublishTiming
		date      string
		status    models.Status
		published bool
	}{
		{models.TimingNow, "", models.StatusPublished, true},
		{models.TimingSchedule, "2026-12-01T09:00", models.StatusScheduled, false},
		{models.TimingDraft, "", models.StatusDraft, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.timing), func(t *testing.T) {
			f := newFixture(t, storage.NewMemory(), Options{})
			ctx := context.Background()
			fillValid(t, f.w)
			require.NoError(t, f.w.Edit(draft.FieldPublishTiming, string(tt.timing)))
			require.NoError(t, f.w.Edit(draft.FieldScheduledDate, tt.date))
			require.NoError(t, f.w.Edit(draft.FieldSEOTitle, "Custom SEO"))
			require.NoError(t, f.w.Continue(ctx))

			p, err := f.w.Publish(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.published, p.PublishedAt != nil)
			assert.Equal(t, "Custom SEO", p.SEOTitle)

			raw, _, _ := f.store.Get(ctx, models.PostsKey)
			var decoded []map[string]any
			require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
			_, has := decoded[0]["publishedAt"]
			assert.Equal(t, tt.published, has)
		})
	}
}

func TestPublish_CollectionOrdering(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	var ids []string
	for i := 0; i < 4; i++ {
		f := newFixture(t, store, Options{})
		fillValid(t, f.w)
		require.NoError(t, f.w.Continue(ctx))
		p, err := f.w.Publish(ctx)
		require.NoError(t, err)
		ids = append(ids, p.ID)

		all, err := f.repo.All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, i+1)
		assert.Equal(t, p.ID, all[0].ID)
	}
	all, _ := posts.NewRepository(store).All(ctx)
	assert.Equal(t, ids[3], all[0].ID)
	assert.Equal(t, ids[0], all[3].ID)
}

func TestPublish_PersistenceFailureKeepsCollection(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	seed := posts.NewRepository(mem)
	existing := models.Post{ID: "post-old", DraftFields: models.NewDraftFields(), Status: models.StatusPublished}
	require.NoError(t, seed.Prepend(ctx, existing))
	before, _, _ := mem.Get(ctx, models.PostsKey)

	f := newFixture(t, failingStore{Memory: mem, key: models.PostsKey}, Options{})
	fillValid(t, f.w)
	require.NoError(t, f.w.Continue(ctx))

	_, err := f.w.Publish(ctx)
	require.Error(t, err)

	after, _, _ := mem.Get(ctx, models.PostsKey)
	assert.Equal(t, before, after)
	assert.Equal(t, note{MsgPublishFailed, models.SeverityError}, f.rec.last())

	v := f.w.View()
	assert.Equal(t, StepPublishingOptions, v.Step, "failed publish keeps the composer open")
	assert.False(t, v.Busy)
	_, ok, _ := mem.Get(ctx, models.DraftKey)
	assert.True(t, ok, "draft survives a failed publish")
}

func TestPublish_BusyGuard(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{PublishLatency: 200 * time.Millisecond})
	ctx := context.Background()
	fillValid(t, f.w)
	require.NoError(t, f.w.Continue(ctx))

	done := make(chan error, 1)
	go func() {
		_, err := f.w.Publish(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.w.View().Busy }, time.Second, 5*time.Millisecond)

	_, err := f.w.Publish(ctx)
	assert.ErrorIs(t, err, apperr.ErrBusy)
	assert.ErrorIs(t, f.w.SaveDraft(ctx), apperr.ErrBusy)
	_, err = f.w.Close(Always(true))
	assert.ErrorIs(t, err, apperr.ErrBusy)
	_, _, err = f.w.Open(ctx, Always(true))
	assert.ErrorIs(t, err, apperr.ErrBusy)

	assert.ErrorIs(t, f.w.Edit(draft.FieldTitle, "Changed mid-publish"), apperr.ErrBusy)
	_, err = f.w.AddTag("late")
	assert.ErrorIs(t, err, apperr.ErrBusy)
	assert.ErrorIs(t, f.w.ClearCover(), apperr.ErrBusy)

	require.NoError(t, <-done)
	all, _ := f.repo.All(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "A valid title", all[0].Title)
	assert.Empty(t, all[0].Tags)
}

func TestSaveDraft(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{})
	ctx := context.Background()
	fillValid(t, f.w)
	require.NoError(t, f.w.Edit(draft.FieldPublishTiming, string(models.TimingNow)))
	f.w.AddTag("go")

	require.NoError(t, f.w.SaveDraft(ctx))

	stored, ok, err := draft.Read(ctx, f.store)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.TimingDraft, stored.PublishTiming)
	assert.Equal(t, []string{"go"}, stored.Tags)

	all, _ := f.repo.All(ctx)
	assert.Empty(t, all, "save draft never touches the collection")
	assert.Equal(t, StepCommitted, f.w.View().Step)
	assert.Equal(t, note{MsgDraftSaved, models.SeveritySuccess}, f.rec.last())
}

func TestSaveDraft_RequiresValidContent(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{})
	require.NoError(t, f.w.Edit(draft.FieldTitle, "Hi"))
	require.NoError(t, f.w.Edit(draft.FieldContent, "short"))

	err := f.w.SaveDraft(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Title must be at least 3 characters", verr.Fields[draft.FieldTitle])
	assert.Equal(t, "Content must be at least 10 characters", verr.Fields[draft.FieldContent])

	_, ok, _ := f.store.Get(context.Background(), models.DraftKey)
	assert.False(t, ok)
}

func TestClose(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{AutosaveInterval: time.Hour})
	require.NoError(t, f.w.Edit(draft.FieldTitle, "Unsaved"))

	var asked []string
	closed, err := f.w.Close(ConfirmFunc(func(m string) bool {
		asked = append(asked, m)
		return false
	}))
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Equal(t, []string{MsgConfirmDiscard}, asked)
	v := f.w.View()
	assert.Equal(t, StepContent, v.Step)
	assert.Equal(t, "Unsaved", v.Fields.Title)
	assert.True(t, v.HasUnsavedChanges)

	closed, err = f.w.Close(Always(true))
	require.NoError(t, err)
	assert.True(t, closed)
	v = f.w.View()
	assert.Equal(t, StepDiscarded, v.Step)
	assert.Equal(t, models.NewDraftFields(), v.Fields)

	assert.ErrorIs(t, f.w.Edit(draft.FieldTitle, "x"), apperr.ErrClosed)
}

func TestClose_CleanSessionSkipsPrompt(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{})
	closed, err := f.w.Close(ConfirmFunc(func(string) bool {
		t.Fatal("confirm must not be asked without unsaved changes")
		return false
	}))
	require.NoError(t, err)
	assert.True(t, closed)
}

func TestOpen_DeclineRestoreErasesDraft(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	prev := models.NewDraftFields()
	prev.Title = "Draft X"
	require.NoError(t, draft.Write(ctx, store, prev))

	f := newFixture(t, store, Options{})
	v := f.w.View()
	assert.Equal(t, StepContent, v.Step)
	assert.Equal(t, models.NewDraftFields(), v.Fields)
	_, ok, _ := store.Get(ctx, models.DraftKey)
	assert.False(t, ok)
}

func TestOpen_AcceptRestore(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()
	prev := models.NewDraftFields()
	prev.Title = "Draft X"
	require.NoError(t, draft.Write(ctx, store, prev))

	w := New(store, posts.NewRepository(store), &recorder{}, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{AutosaveInterval: time.Hour})
	t.Cleanup(w.Teardown)
	opened, restored, err := w.Open(ctx, Always(true))
	require.NoError(t, err)
	assert.True(t, opened)
	assert.True(t, restored)
	v := w.View()
	assert.Equal(t, "Draft X", v.Fields.Title)
	assert.True(t, v.HasUnsavedChanges)
}

func TestOpen_ReopenDirtyAsksBeforeDiscarding(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{AutosaveInterval: time.Hour})
	fillValid(t, f.w)

	var prompts []string
	decline := ConfirmFunc(func(msg string) bool {
		prompts = append(prompts, msg)
		return false
	})
	opened, restored, err := f.w.Open(context.Background(), decline)
	require.NoError(t, err)
	assert.False(t, opened)
	assert.False(t, restored)
	assert.Equal(t, []string{MsgConfirmDiscard}, prompts)
	v := f.w.View()
	assert.Equal(t, "A valid title", v.Fields.Title)
	assert.True(t, v.HasUnsavedChanges)

	opened, _, err = f.w.Open(context.Background(), Always(true))
	require.NoError(t, err)
	assert.True(t, opened)
	v = f.w.View()
	assert.Empty(t, v.Fields.Title)
	assert.False(t, v.HasUnsavedChanges)
}

func TestOpen_ReopenCleanSkipsPrompt(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{})
	opened, _, err := f.w.Open(context.Background(), ConfirmFunc(func(string) bool {
		t.Fatal("confirm must not be asked without unsaved changes")
		return false
	}))
	require.NoError(t, err)
	assert.True(t, opened)
}

func TestAttachCover_TooLarge(t *testing.T) {
	f := newFixture(t, storage.NewMemory(), Options{MaxCoverBytes: 4})
	err := f.w.AttachCover("image/png", []byte("12345"))
	assert.ErrorIs(t, err, apperr.ErrTooLarge)
	v := f.w.View()
	assert.Nil(t, v.Fields.CoverImage)
	assert.Equal(t, "Image must be less than 0MB", v.Errors[draft.FieldCoverImage])

	require.NoError(t, f.w.AttachCover("image/png", []byte("1234")))
	assert.NotNil(t, f.w.View().Fields.CoverImage)
}

func TestAutosave_DebounceWritesOnce(t *testing.T) {
	store := newCountingStore()
	f := newFixture(t, store, Options{AutosaveInterval: 80 * time.Millisecond})

	for i := 0; i < 5; i++ {
		require.NoError(t, f.w.Edit(draft.FieldContent, strings.Repeat("x", i+1)))
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, store.count(models.DraftKey), "no write while edits keep arriving")

	require.Eventually(t, func() bool { return store.count(models.DraftKey) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, store.count(models.DraftKey))

	v := f.w.View()
	assert.False(t, v.HasUnsavedChanges)
	assert.NotNil(t, v.LastSavedAt)
	stored, _, _ := draft.Read(context.Background(), store)
	assert.Equal(t, "xxxxx", stored.Content)
}

func TestAutosave_NoWriteAfterTeardown(t *testing.T) {
	store := newCountingStore()
	f := newFixture(t, store, Options{AutosaveInterval: 30 * time.Millisecond})

	require.NoError(t, f.w.Edit(draft.FieldTitle, "pending"))
	f.w.Teardown()
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 0, store.count(models.DraftKey))
	assert.ErrorIs(t, f.w.AutoSave(context.Background()), apperr.ErrClosed)
}

func TestAutosave_NoWriteAfterClose(t *testing.T) {
	store := newCountingStore()
	f := newFixture(t, store, Options{AutosaveInterval: 30 * time.Millisecond})

	require.NoError(t, f.w.Edit(draft.FieldTitle, "pending"))
	_, err := f.w.Close(Always(true))
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 0, store.count(models.DraftKey))
}

func TestAutosave_EditDuringSaveStaysDirty(t *testing.T) {
	store := newCountingStore()
	f := newFixture(t, store, Options{AutosaveInterval: time.Hour, AutosaveLatency: 100 * time.Millisecond})
	require.NoError(t, f.w.Edit(draft.FieldTitle, "first"))

	done := make(chan error, 1)
	go func() { done <- f.w.AutoSave(context.Background()) }()
	require.Eventually(t, func() bool { return f.w.View().IsAutoSaving }, time.Second, 2*time.Millisecond)

	assert.ErrorIs(t, f.w.AutoSave(context.Background()), apperr.ErrBusy)
	require.NoError(t, f.w.Edit(draft.FieldTitle, "second"))
	require.NoError(t, <-done)

	v := f.w.View()
	assert.True(t, v.HasUnsavedChanges, "edit after the snapshot keeps the session dirty")
	assert.False(t, v.IsAutoSaving)
	assert.NotNil(t, v.LastSavedAt)
	assert.True(t, f.w.scheduler.Pending())
	assert.Equal(t, 1, store.count(models.DraftKey))
}

func TestAutosave_FailureNotifies(t *testing.T) {
	f := newFixture(t, failingStore{Memory: storage.NewMemory(), key: models.DraftKey}, Options{AutosaveInterval: time.Hour})
	fillValid(t, f.w)

	err := f.w.Continue(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepContent, f.w.View().Step)
	assert.True(t, f.w.View().HasUnsavedChanges)
	assert.Equal(t, note{MsgSaveFailed, models.SeverityError}, f.rec.last())
}

var _ Observer = (*recorder)(nil)

func TestAlways(t *testing.T) {
	var n atomic.Int32
	c := ConfirmFunc(func(string) bool { n.Add(1); return true })
	assert.True(t, c.Confirm("?"))
	assert.False(t, Always(false).Confirm("?"))
	assert.Equal(t, int32(1), n.Load())
}
