package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read when no other dotenv file is configured.
const DefaultEnvFile = ".env"

// Option configures a Load call.
type Option func(*options)

type options struct {
	files    []string
	prefix   string
	overload bool
}

// WithEnvFiles reads the given dotenv files instead of DefaultEnvFile.
// Files that do not exist are skipped.
func WithEnvFiles(files ...string) Option {
	for _, f := range files {
		if f == "" {
			panic("WithEnvFiles: file name cannot be empty")
		}
	}
	return func(o *options) { o.files = files }
}

// WithPrefix prepends prefix to every variable name of the struct.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithOverload lets dotenv files replace variables already set in the
// process environment.
func WithOverload() Option {
	return func(o *options) { o.overload = true }
}

// Load reads the dotenv files into the process environment and parses the
// environment into v according to its env struct tags.
//
// Every call parses afresh; nothing is cached between calls, so tests can
// load the same type with different environments.
//
// Example:
//
//	type Config struct {
//		ContextPath string        `env:"DISPATCH_CONTEXT_PATH"`
//		UnloadDelay time.Duration `env:"DISPATCH_UNLOAD_DELAY" envDefault:"2s"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		// handle error
//	}
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}
	o := options{files: []string{DefaultEnvFile}}
	for _, opt := range opts {
		opt(&o)
	}

	if err := loadEnvFiles(o.files, o.overload); err != nil {
		return err
	}
	if err := env.ParseWithOptions(v, env.Options{Prefix: o.prefix}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
// Use it for configuration the process cannot start without.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

func loadEnvFiles(files []string, overload bool) error {
	load := godotenv.Load
	if overload {
		load = godotenv.Overload
	}
	for _, f := range files {
		if err := load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errors.Join(ErrLoadingEnvFile, fmt.Errorf("%s: %w", f, err))
		}
	}
	return nil
}
