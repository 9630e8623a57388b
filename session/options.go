package session

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackline/trackline"
)

type (
	Option func(*config)

	config struct {
		logger        logrus.FieldLogger
		store         trackline.ProjectStore
		autosaveDelay time.Duration
		closeTimeout  time.Duration
		project       *trackline.Project
	}
)

const (
	DefaultAutosaveDelay = 2 * time.Second
	DefaultCloseTimeout  = 5 * time.Second
)

// WithLogger sets the logger; the default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) { c.logger = l }
}

// WithStore persists the project (debounced, after every change and on
// Close) and the outcome of every export to store.
func WithStore(store trackline.ProjectStore) Option {
	return func(c *config) { c.store = store }
}

// WithAutosaveDelay sets how long the project must stay unchanged before it
// is saved to the store.
func WithAutosaveDelay(d time.Duration) Option {
	return func(c *config) { c.autosaveDelay = d }
}

// WithCloseTimeout bounds how long Close waits for a cancelled export.
func WithCloseTimeout(d time.Duration) Option {
	return func(c *config) { c.closeTimeout = d }
}

// WithProject starts the session from a copy of p instead of an empty
// project. The session name replaces the project name.
func WithProject(p *trackline.Project) Option {
	return func(c *config) { c.project = p }
}

func newConfig(opts []Option) config {
	c := config{
		logger:        logrus.StandardLogger(),
		autosaveDelay: DefaultAutosaveDelay,
		closeTimeout:  DefaultCloseTimeout,
	}
	for _, o := range opts {
		o(&c)
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	return c
}
