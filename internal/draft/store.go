package draft

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/storage"
)

// Read decodes the persisted draft. ok is false when none is stored.
func Read(ctx context.Context, store storage.Store) (models.DraftFields, bool, error) {
	raw, ok, err := store.Get(ctx, models.DraftKey)
	if err != nil || !ok {
		return models.DraftFields{}, false, err
	}
	f := models.NewDraftFields()
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return models.DraftFields{}, false, fmt.Errorf("draft: decode: %w", err)
	}
	if f.Tags == nil {
		f.Tags = []string{}
	}
	return f, true, nil
}

// Write persists f under the draft key.
func Write(ctx context.Context, store storage.Store, f models.DraftFields) error {
	if f.Tags == nil {
		f.Tags = []string{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("draft: encode: %w", err)
	}
	if err := store.Set(ctx, models.DraftKey, string(data)); err != nil {
		return fmt.Errorf("draft: write: %w", err)
	}
	return nil
}
