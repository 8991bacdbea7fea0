// Package postservice serves the read side of the dashboard and Markdown
// import/export. The HTTP API, the MCP server and the CLI share it.
package postservice

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/postdesk/internal/apperr"
	"github.com/starford/postdesk/internal/draft"
	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/parser"
	"github.com/starford/postdesk/internal/posts"
	"github.com/starford/postdesk/internal/storage"
	"github.com/starford/postdesk/internal/validate"
)

// PostListItem is a lightweight item in a list response.
type PostListItem struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Excerpt     string            `json:"excerpt"`
	Category    string            `json:"category"`
	Tags        []string          `json:"tags"`
	Status      models.Status     `json:"status"`
	Visibility  models.Visibility `json:"visibility"`
	Author      string            `json:"author"`
	WordCount   int               `json:"wordCount"`
	Views       int               `json:"views"`
	Likes       int               `json:"likes"`
	CreatedAt   time.Time         `json:"createdAt"`
	PublishedAt *time.Time        `json:"publishedAt,omitempty"`
	HasCover    bool              `json:"hasCover"`
}

// Service coordinates the posts collection and the persisted draft.
type Service struct {
	store storage.Store
	repo  *posts.Repository
}

// NewService creates a post service.
func NewService(store storage.Store, repo *posts.Repository) *Service {
	return &Service{store: store, repo: repo}
}

// ListPosts returns the posts matching f, newest first, plus the collection
// version.
func (s *Service) ListPosts(ctx context.Context, f posts.Filter) ([]PostListItem, string, error) {
	all, version, err := s.repo.FindVersion(ctx, f)
	if err != nil {
		return nil, "", err
	}
	items := make([]PostListItem, len(all))
	for i, p := range all {
		items[i] = PostListItem{
			ID:          p.ID,
			Title:       p.Title,
			Excerpt:     posts.Excerpt(p.Content),
			Category:    p.Category,
			Tags:        nonNilSlice(p.Tags),
			Status:      p.Status,
			Visibility:  p.Visibility,
			Author:      p.Author,
			WordCount:   parser.WordCount(p.Content),
			Views:       p.Views,
			Likes:       p.Likes,
			CreatedAt:   p.CreatedAt,
			PublishedAt: p.PublishedAt,
			HasCover:    p.CoverImage != nil,
		}
	}
	return items, version, nil
}

// GetPost returns one post by id.
func (s *Service) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return s.repo.Get(ctx, id)
}

// PostMarkdown renders one post as Markdown with frontmatter.
func (s *Service) PostMarkdown(ctx context.Context, id string) ([]byte, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return parser.Render(*p)
}

// Stats returns per-status totals.
func (s *Service) Stats(ctx context.Context) (posts.Counts, error) {
	return s.repo.Counts(ctx)
}

// DeletePost removes a post, optionally guarded by a collection version.
func (s *Service) DeletePost(ctx context.Context, id, ifMatch string) error {
	return s.repo.Delete(ctx, id, ifMatch)
}

// ReadDraft returns the persisted draft, if any.
func (s *Service) ReadDraft(ctx context.Context) (models.DraftFields, bool, error) {
	return draft.Read(ctx, s.store)
}

// ImportDraft parses a Markdown document and stores it as the draft when it
// passes content validation. Invalid input is reported through errs and
// nothing is written.
func (s *Service) ImportDraft(ctx context.Context, markdown []byte) (f models.DraftFields, errs validate.Errors, err error) {
	res, err := parser.Parse(markdown)
	if err != nil {
		return models.DraftFields{}, nil, fmt.Errorf("postservice: parse: %w", err)
	}
	f = parser.ToDraft(res)
	if errs = validate.Draft(f); !errs.Valid() {
		return f, errs, nil
	}
	if err := draft.Write(ctx, s.store, f); err != nil {
		return f, nil, err
	}
	return f, errs, nil
}

// SetDraftCover attaches an image to the persisted draft, starting an empty
// draft when none is stored. Oversized images wrap apperr.ErrTooLarge.
func (s *Service) SetDraftCover(ctx context.Context, mimeType string, data []byte, limit int64) error {
	if err := validate.CoverImage(int64(len(data)), limit); err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrTooLarge, err.Error())
	}
	f, ok, err := draft.Read(ctx, s.store)
	if err != nil {
		return err
	}
	if !ok {
		f = models.NewDraftFields()
	}
	url := draft.CoverDataURL(mimeType, data)
	f.CoverImage = &url
	return draft.Write(ctx, s.store, f)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
