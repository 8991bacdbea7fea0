// Package posts manages the persisted, newest-first collection of committed posts.
package posts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/checksum"
	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/storage"
)

// StatusAll matches every status in a Filter.
const StatusAll = "all"

// Filter narrows a listing. An empty Status is the same as StatusAll.
type Filter struct {
	Status string
	Query  string
}

// Counts holds per-status totals.
type Counts struct {
	All       int `json:"all"`
	Published int `json:"published"`
	Scheduled int `json:"scheduled"`
	Draft     int `json:"draft"`
}

// Repository reads and rewrites the whole collection on every mutation.
// Mutations are serialised so each read-modify-write sees the previous one.
type Repository struct {
	store storage.Store
	mu    sync.Mutex
}

// NewRepository creates a repository over store.
func NewRepository(store storage.Store) *Repository {
	return &Repository{store: store}
}

// All returns the full collection, newest first. A missing key is an empty collection.
func (r *Repository) All(ctx context.Context) ([]models.Post, error) {
	all, _, err := r.load(ctx)
	return all, err
}

// Version returns a checksum of the stored collection. It changes on every
// write and is empty when nothing is stored.
func (r *Repository) Version(ctx context.Context) (string, error) {
	_, version, err := r.load(ctx)
	return version, err
}

// load decodes the collection and computes its version from a single read.
func (r *Repository) load(ctx context.Context) ([]models.Post, string, error) {
	raw, ok, err := r.store.Get(ctx, models.PostsKey)
	if err != nil {
		return nil, "", fmt.Errorf("posts: read: %w", err)
	}
	if !ok {
		return []models.Post{}, "", nil
	}
	version := checksum.Sum([]byte(raw))
	if strings.TrimSpace(raw) == "" {
		return []models.Post{}, version, nil
	}
	var out []models.Post
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, "", fmt.Errorf("posts: decode: %w", err)
	}
	if out == nil {
		out = []models.Post{}
	}
	return out, version, nil
}

// Get returns the post with the given id.
func (r *Repository) Get(ctx context.Context, id string) (*models.Post, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, apperr.ErrNotFound
}

// Prepend adds p at the front of the collection. The stored collection is
// only replaced once the new one is fully encoded.
func (r *Repository) Prepend(ctx context.Context, p models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.All(ctx)
	if err != nil {
		return err
	}
	next := make([]models.Post, 0, len(all)+1)
	next = append(next, p)
	next = append(next, all...)
	return r.write(ctx, next)
}

// Delete removes the post with the given id. A non-empty ifMatch must admit
// the current Version (see checksum.Matches) or apperr.ErrConflict is returned.
func (r *Repository) Delete(ctx context.Context, id, ifMatch string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, version, err := r.load(ctx)
	if err != nil {
		return err
	}
	if ifMatch != "" && !checksum.Matches(ifMatch, version) {
		return apperr.ErrConflict
	}
	next := make([]models.Post, 0, len(all))
	for _, p := range all {
		if p.ID != id {
			next = append(next, p)
		}
	}
	if len(next) == len(all) {
		return apperr.ErrNotFound
	}
	return r.write(ctx, next)
}

// ValidStatus reports whether Status names a known filter.
func (f Filter) ValidStatus() bool {
	switch f.Status {
	case "", StatusAll, string(models.StatusDraft), string(models.StatusScheduled), string(models.StatusPublished):
		return true
	}
	return false
}

// Find returns posts matching f in collection order. The query matches title
// or content, case-insensitively.
func (r *Repository) Find(ctx context.Context, f Filter) ([]models.Post, error) {
	out, _, err := r.FindVersion(ctx, f)
	return out, err
}

// FindVersion is Find plus the Version of the collection the result was
// taken from.
func (r *Repository) FindVersion(ctx context.Context, f Filter) ([]models.Post, string, error) {
	all, version, err := r.load(ctx)
	if err != nil {
		return nil, "", err
	}
	q := strings.ToLower(f.Query)
	out := make([]models.Post, 0, len(all))
	for _, p := range all {
		if f.Status != "" && f.Status != StatusAll && string(p.Status) != f.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Title), q) && !strings.Contains(strings.ToLower(p.Content), q) {
			continue
		}
		out = append(out, p)
	}
	return out, version, nil
}

// Counts returns the number of posts per status.
func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	all, err := r.All(ctx)
	if err != nil {
		return Counts{}, err
	}
	c := Counts{All: len(all)}
	for _, p := range all {
		switch p.Status {
		case models.StatusPublished:
			c.Published++
		case models.StatusScheduled:
			c.Scheduled++
		case models.StatusDraft:
			c.Draft++
		}
	}
	return c, nil
}

func (r *Repository) write(ctx context.Context, all []models.Post) error {
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("posts: encode: %w", err)
	}
	if err := r.store.Set(ctx, models.PostsKey, string(data)); err != nil {
		return fmt.Errorf("posts: write: %w", err)
	}
	return nil
}

const excerptLen = 150

// Excerpt returns the first 150 characters of content, with "..." appended
// when it was cut.
func Excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLen {
		return content
	}
	return string(runes[:excerptLen]) + "..."
}
