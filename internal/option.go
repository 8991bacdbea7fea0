package internal

import "github.com/starford/postdesk/internal/storage"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	store  storage.Store
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithStore replaces the configured backend with an already opened store.
func WithStore(store storage.Store) Option {
	return func(a *application) {
		a.store = store
	}
}
