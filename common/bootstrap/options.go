package bootstrap

import (
	"github.com/sellerhub/marking/common/config"
	"github.com/sellerhub/marking/common/db"
	"github.com/sellerhub/marking/common/logger"
)

// Option customizes component setup
type Option func(*options)

type options struct {
	skipDB        bool
	skipRedis     bool
	skipCache     bool
	skipTelemetry bool

	dbInitHook   func(*db.DB) error
	customConfig *config.Config
	customLogger *logger.Logger
}

func defaultOptions() *options {
	return &options{}
}

// WithoutDB skips database initialization
func WithoutDB() Option {
	return func(o *options) { o.skipDB = true }
}

// WithoutRedis skips Redis initialization
func WithoutRedis() Option {
	return func(o *options) { o.skipRedis = true }
}

// WithoutCache skips cache initialization
func WithoutCache() Option {
	return func(o *options) { o.skipCache = true }
}

// WithoutTelemetry skips telemetry initialization
func WithoutTelemetry() Option {
	return func(o *options) { o.skipTelemetry = true }
}

// WithDBInitHook runs fn right after the database connects; used for
// migrate-at-boot
func WithDBInitHook(fn func(*db.DB) error) Option {
	return func(o *options) { o.dbInitHook = fn }
}

// WithConfig overrides environment-based configuration
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.customConfig = cfg }
}

// WithLogger overrides the default logger
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.customLogger = log }
}
