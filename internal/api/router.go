// Package api implements the postdesk REST API using chi.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/postdesk/internal/postservice"
	"github.com/starford/postdesk/internal/workflow"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events. When it also implements
// workflow.Observer it is told about deleted posts.
func NewRouter(wf *workflow.Workflow, svc *postservice.Service, sseHandler http.Handler) chi.Router {
	obs, _ := sseHandler.(workflow.Observer)
	ch := NewComposerHandler(wf)
	ph := NewPostsHandler(svc, obs)

	r := chi.NewRouter()

	r.Route("/composer", func(r chi.Router) {
		r.Get("/", ch.Get)
		r.Post("/open", ch.Open)
		r.Patch("/fields", ch.EditFields)
		r.Post("/tags", ch.AddTag)
		r.Delete("/tags/{tag}", ch.RemoveTag)
		r.Put("/cover", ch.AttachCover)
		r.Delete("/cover", ch.ClearCover)
		r.Post("/continue", ch.Continue)
		r.Post("/back", ch.Back)
		r.Post("/autosave", ch.AutoSave)
		r.Post("/save-draft", ch.SaveDraft)
		r.Post("/publish", ch.Publish)
		r.Post("/close", ch.Close)
	})

	r.Get("/posts", ph.ListPosts)
	r.Get("/posts/stats", ph.Stats)
	r.Get("/posts/{id}", ph.GetPost)
	r.Get("/posts/{id}/markdown", ph.Markdown)
	r.Delete("/posts/{id}", ph.DeletePost)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
