package main

import (
	"time"

	"github.com/dmitrymomot/dispatchkit/pkg/httpserver"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

// Config is read from the environment and an optional .env file.
type Config struct {
	AppEnv    string `env:"APP_ENV" envDefault:"development"`
	Service   string `env:"APP_NAME" envDefault:"dispatchd"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT"`

	// Descriptor is the path of the YAML descriptor. The built-in demo
	// descriptor is used when it is empty.
	Descriptor    string        `env:"DISPATCH_DESCRIPTOR"`
	ContextPath   string        `env:"DISPATCH_CONTEXT_PATH"`
	UnloadDelay   time.Duration `env:"DISPATCH_UNLOAD_DELAY" envDefault:"2s"`
	UnloadRetries int           `env:"DISPATCH_UNLOAD_RETRIES" envDefault:"21"`
	MaxInstances  int           `env:"DISPATCH_MAX_INSTANCES" envDefault:"20"`

	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"dispatchd"`

	HTTP httpserver.Config
}

// loggerOptions turns the logging settings into logger options. Unknown
// levels and formats are errors rather than panics.
func (c Config) loggerOptions() ([]logger.Option, error) {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := []logger.Option{
		logger.WithEnvironment(c.AppEnv, c.Service),
		logger.WithLevel(level),
	}
	if c.LogFormat != "" {
		f, err := logger.ParseFormat(c.LogFormat)
		if err != nil {
			return nil, err
		}
		opts = append(opts, logger.WithFormat(f))
	}
	return opts, nil
}
