// Package testutil provides shared test helpers for seeding the posts
// collection.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/posts"
)

// SeedTime is the creation time of posts added by SeedPost.
var SeedTime = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

// SeedPost prepends a post with the given title and status to repo.
func SeedPost(t *testing.T, repo *posts.Repository, id, title string, status models.Status) models.Post {
	t.Helper()
	p := models.Post{
		ID:          id,
		DraftFields: models.NewDraftFields(),
		Status:      status,
		Author:      "You",
		CreatedAt:   SeedTime,
		UpdatedAt:   SeedTime,
	}
	p.Title = title
	p.Content = "Body of " + title + " with enough text."
	if status == models.StatusPublished {
		at := SeedTime
		p.PublishedAt = &at
	}
	if err := repo.Prepend(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}
