// Package app provides the application context and dependency wiring for
// the icsync CLI: configuration, logging, and the shared remote client.
package app

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/eventloom/icsync/internal/discourse"
	"github.com/eventloom/icsync/pkg/errors"
)

// App holds the CLI application's configuration and dependencies.
type App struct {
	version string
	commit  string
	date    string

	config *Config
	logger *zerolog.Logger

	// Remote client, lazy-initialized so read-only commands that never
	// reach the API do not require credentials.
	mu     sync.Mutex
	client *discourse.Client
}

// New creates an App with the given version information.
func New(version, commit, date string) (*App, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := NewLogger(config)
	return &App{
		version: version,
		commit:  commit,
		date:    date,
		config:  config,
		logger:  &logger,
	}, nil
}

// Version returns the version string.
func (a *App) Version() string { return a.version }

// Config returns the application configuration.
func (a *App) Config() *Config { return a.config }

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger { return a.logger }

// Client returns the remote API client, creating it on first use.
func (a *App) Client() (*discourse.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	if a.config.BaseURL == "" || a.config.APIKey == "" {
		return nil, errors.NewConfigError("app",
			"ICSYNC_BASE_URL and ICSYNC_API_KEY must be set", errors.ErrCredentialsRequired)
	}

	client, err := discourse.New(discourse.Credentials{
		BaseURL:  a.config.BaseURL,
		APIKey:   a.config.APIKey,
		Username: a.config.APIUsername,
	}, discourse.WithLogger(*a.logger))
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}
