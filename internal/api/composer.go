package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/postdesk/internal/draft"
	"github.com/starford/postdesk/internal/workflow"
)

// fieldOrder is the order PATCH /composer/fields applies edits in.
var fieldOrder = []string{
	draft.FieldTitle,
	draft.FieldContent,
	draft.FieldCategory,
	draft.FieldPublishTiming,
	draft.FieldScheduledDate,
	draft.FieldVisibility,
	draft.FieldSEOTitle,
	draft.FieldSEODescription,
}

// ComposerHandler exposes the single composer workflow.
type ComposerHandler struct {
	wf *workflow.Workflow
}

// NewComposerHandler creates a ComposerHandler.
func NewComposerHandler(wf *workflow.Workflow) *ComposerHandler {
	return &ComposerHandler{wf: wf}
}

// queryConfirm answers confirmation prompts from a boolean query flag.
func queryConfirm(r *http.Request, name string) workflow.Confirmer {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return workflow.Always(v)
}

func (h *ComposerHandler) writeView(w http.ResponseWriter, status int) {
	writeJSON(w, status, h.wf.View())
}

// Get handles GET /api/composer.
func (h *ComposerHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, http.StatusOK)
}

// openConfirm answers the discard prompt from the confirm flag and the
// restore prompt from the restore flag.
func openConfirm(r *http.Request) workflow.Confirmer {
	discard, restore := queryConfirm(r, "confirm"), queryConfirm(r, "restore")
	return workflow.ConfirmFunc(func(message string) bool {
		if message == workflow.MsgConfirmDiscard {
			return discard.Confirm(message)
		}
		return restore.Confirm(message)
	})
}

// Open handles POST /api/composer/open?restore=bool&confirm=bool. confirm
// answers the discard prompt when a composer with unsaved changes is open.
func (h *ComposerHandler) Open(w http.ResponseWriter, r *http.Request) {
	opened, restored, err := h.wf.Open(r.Context(), openConfirm(r))
	if err != nil {
		writeError(w, "open composer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opened":   opened,
		"restored": restored,
		"composer": h.wf.View(),
	})
}

// EditFields handles PATCH /api/composer/fields with a JSON object of
// scalar field values.
func (h *ComposerHandler) EditFields(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	for k := range req {
		if !knownField(k) {
			writeJSON(w, http.StatusBadRequest, errorBody("unknown field: "+k))
			return
		}
	}
	if err := h.wf.EditFields(req, fieldOrder); err != nil {
		if errors.Is(err, draft.ErrUnknownField) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		writeError(w, "edit fields", err)
		return
	}
	h.writeView(w, http.StatusOK)
}

func knownField(name string) bool {
	for _, f := range fieldOrder {
		if f == name {
			return true
		}
	}
	return false
}

// AddTag handles POST /api/composer/tags with {"tag": "..."}.
func (h *ComposerHandler) AddTag(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	var req struct {
		Tag string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	added, err := h.wf.AddTag(req.Tag)
	if err != nil {
		writeError(w, "add tag", err)
		return
	}
	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	h.writeView(w, status)
}

// RemoveTag handles DELETE /api/composer/tags/{tag}.
func (h *ComposerHandler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	removed, err := h.wf.RemoveTag(chi.URLParam(r, "tag"))
	if err != nil {
		writeError(w, "remove tag", err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, errorBody("tag not found"))
		return
	}
	h.writeView(w, http.StatusOK)
}

// AttachCover handles PUT /api/composer/cover (multipart/form-data, field "file").
func (h *ComposerHandler) AttachCover(w http.ResponseWriter, r *http.Request) {
	limit := coverUploadLimit(h.wf.MaxCoverBytes())
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("upload too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid multipart form"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	mimeType := http.DetectContentType(data)
	if !isImage(mimeType) {
		writeJSON(w, http.StatusUnsupportedMediaType, errorBody("cover must be an image"))
		return
	}
	if err := h.wf.AttachCover(mimeType, data); err != nil {
		writeError(w, "attach cover", err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// ClearCover handles DELETE /api/composer/cover.
func (h *ComposerHandler) ClearCover(w http.ResponseWriter, r *http.Request) {
	if err := h.wf.ClearCover(); err != nil {
		writeError(w, "clear cover", err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// Continue handles POST /api/composer/continue.
func (h *ComposerHandler) Continue(w http.ResponseWriter, r *http.Request) {
	if err := h.wf.Continue(r.Context()); err != nil {
		writeError(w, "continue", err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// Back handles POST /api/composer/back.
func (h *ComposerHandler) Back(w http.ResponseWriter, r *http.Request) {
	if err := h.wf.Back(); err != nil {
		writeError(w, "back", err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// AutoSave handles POST /api/composer/autosave.
func (h *ComposerHandler) AutoSave(w http.ResponseWriter, r *http.Request) {
	if err := h.wf.AutoSave(r.Context()); err != nil {
		writeError(w, "autosave", err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// SaveDraft handles POST /api/composer/save-draft.
func (h *ComposerHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.wf.SaveDraft(r.Context()); err != nil {
		writeError(w, "save draft", err)
		return
	}
	h.writeView(w, http.StatusOK)
}

// Publish handles POST /api/composer/publish.
func (h *ComposerHandler) Publish(w http.ResponseWriter, r *http.Request) {
	p, err := h.wf.Publish(r.Context())
	if err != nil {
		writeError(w, "publish", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Close handles POST /api/composer/close?confirm=bool.
func (h *ComposerHandler) Close(w http.ResponseWriter, r *http.Request) {
	closed, err := h.wf.Close(queryConfirm(r, "confirm"))
	if err != nil {
		writeError(w, "close", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"closed":   closed,
		"composer": h.wf.View(),
	})
}
