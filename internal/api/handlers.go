package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/postdesk/internal/checksum"
	"github.com/starford/postdesk/internal/posts"
	"github.com/starford/postdesk/internal/postservice"
	"github.com/starford/postdesk/internal/workflow"
)

// PostsHandler serves the posts page.
type PostsHandler struct {
	svc *postservice.Service
	obs workflow.Observer // may be nil
}

// NewPostsHandler creates a PostsHandler. obs, if non-nil, hears about
// deletions.
func NewPostsHandler(svc *postservice.Service, obs workflow.Observer) *PostsHandler {
	return &PostsHandler{svc: svc, obs: obs}
}

// ListPosts handles GET /api/posts?status=&q=. The collection version is
// returned as the ETag.
func (h *PostsHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := posts.Filter{Status: q.Get("status"), Query: q.Get("q")}
	if !f.ValidStatus() {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid status filter"))
		return
	}

	items, version, err := h.svc.ListPosts(r.Context(), f)
	if err != nil {
		writeError(w, "list posts", err)
		return
	}
	if version != "" {
		w.Header().Set("ETag", checksum.ETag(version))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts": items,
		"total": len(items),
	})
}

// Stats handles GET /api/posts/stats.
func (h *PostsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, "post stats", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetPost handles GET /api/posts/{id}.
func (h *PostsHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get post", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Markdown handles GET /api/posts/{id}/markdown.
func (h *PostsHandler) Markdown(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	md, err := h.svc.PostMarkdown(r.Context(), id)
	if err != nil {
		writeError(w, "export post", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.md"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(md)
}

// DeletePost handles DELETE /api/posts/{id}. An If-Match header guards the
// delete against a concurrently rewritten collection.
func (h *PostsHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePost(r.Context(), chi.URLParam(r, "id"), r.Header.Get("If-Match")); err != nil {
		writeError(w, "delete post", err)
		return
	}
	if h.obs != nil {
		h.obs.PostsChanged()
	}
	w.WriteHeader(http.StatusNoContent)
}
