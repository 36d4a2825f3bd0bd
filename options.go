package bundi

import (
	"net/http"

	"go.uber.org/zap"
)

// Option configures Create.
type Option interface {
	apply(*options)
}

// options holds application configuration.
type options struct {
	adapter   HTTPAdapter
	autoInit  bool
	logger    *zap.Logger
	config    *Config
	metadata  *MetadataRegistry
	server    *http.Server
	overrides []Provider
}

// optionFunc adapts a function to Option.
type optionFunc func(*options)

func (f optionFunc) apply(o *options) {
	f(o)
}

func defaultOptions() *options {
	return &options{autoInit: true}
}

// WithAdapter sets the HTTP adapter. The default is a ChiAdapter.
func WithAdapter(adapter HTTPAdapter) Option {
	return optionFunc(func(o *options) {
		o.adapter = adapter
	})
}

// WithAutoInit controls whether Create initializes the application. When
// disabled, call Init after configuring global prefix and enhancers, or let
// Listen do it.
func WithAutoInit(enabled bool) Option {
	return optionFunc(func(o *options) {
		o.autoInit = enabled
	})
}

// WithLogger sets the application logger.
func WithLogger(logger *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = logger
	})
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return optionFunc(func(o *options) {
		o.config = cfg
	})
}

// WithMetadata sets the metadata registry read for Injectable metadata.
// Registrations in DefaultMetadata remain visible.
func WithMetadata(registry *MetadataRegistry) Option {
	return optionFunc(func(o *options) {
		o.metadata = registry
	})
}

// WithServer uses an existing HTTP server for Listen and Close. Its Handler
// is replaced by the application handler.
func WithServer(server *http.Server) Option {
	return optionFunc(func(o *options) {
		o.server = server
	})
}

// WithProviderOverride replaces the provider registered under p.Provide in
// every module declaring it, before anything is instantiated. Create fails
// when no module declares the token.
func WithProviderOverride(p Provider) Option {
	return optionFunc(func(o *options) {
		o.overrides = append(o.overrides, p)
	})
}
