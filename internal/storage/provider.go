// Package storage defines the key-value persistence used by the composer and
// the posts collection, along with its backends.
package storage

import (
	"context"
	"fmt"
	"regexp"
)

// Store is a string key-value store that survives restarts.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set replaces the value under key. Implementations write atomically.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

var keyRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// checkKey rejects keys that cannot be mapped safely onto every backend.
func checkKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	return nil
}
