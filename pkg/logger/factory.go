package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format is the output encoding of a logger.
type Format string

const (
	// FormatJSON writes one JSON object per record.
	FormatJSON Format = "json"
	// FormatText writes logfmt style key=value lines.
	FormatText Format = "text"
)

// Environment names understood by WithEnvironment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// ParseFormat converts a format name to a Format. The empty name is JSON.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatText:
		return f, nil
	default:
		return "", fmt.Errorf("invalid log format %q: must be %q or %q", name, FormatJSON, FormatText)
	}
}

// ParseLevel converts a level name to slog.Level. The empty name is info.
func ParseLevel(name string) (slog.Level, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return l, nil
}

// Option configures logger creation.
type Option func(*config)

func WithLevel(l slog.Level) Option {
	return func(c *config) { c.level = l }
}

// WithLevelName sets the level from its name ("debug", "info", "warn", "error").
// Panics for unknown names.
func WithLevelName(name string) Option {
	l, err := ParseLevel(name)
	if err != nil {
		panic(err)
	}
	return WithLevel(l)
}

// WithFormat sets the output format. Panics for unknown formats so a
// misconfigured service fails at startup.
func WithFormat(f Format) Option {
	if f != FormatJSON && f != FormatText {
		panic(fmt.Errorf("invalid log format %q: must be %q or %q", f, FormatJSON, FormatText))
	}
	return func(c *config) { c.format = f }
}

// WithOutput sets the destination. Nil is ignored.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

// WithSource records the file and line of the log call.
func WithSource() Option {
	return func(c *config) { c.source = true }
}

// WithAttr adds static attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(c *config) { c.attrs = append(c.attrs, attrs...) }
}

// WithContextExtractors registers functions that add attributes taken from
// the context of each log call. Nil extractors are skipped.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(c *config) {
		for _, ex := range extractors {
			if ex != nil {
				c.extractors = append(c.extractors, ex)
			}
		}
	}
}

// preset holds the defaults applied by WithEnvironment.
type preset struct {
	env    string
	level  slog.Level
	format Format
}

var presets = map[string]preset{
	EnvDevelopment: {EnvDevelopment, slog.LevelDebug, FormatText},
	"dev":          {EnvDevelopment, slog.LevelDebug, FormatText},
	EnvStaging:     {EnvStaging, slog.LevelInfo, FormatJSON},
	"stage":        {EnvStaging, slog.LevelInfo, FormatJSON},
	EnvProduction:  {EnvProduction, slog.LevelInfo, FormatJSON},
	"prod":         {EnvProduction, slog.LevelInfo, FormatJSON},
}

// WithEnvironment applies the level and format defaults of env and tags
// every record with service and env. Unknown environments get the
// development defaults. An empty service leaves the config untouched.
// Later options override the defaults.
func WithEnvironment(env, service string) Option {
	return func(c *config) {
		if service == "" {
			return
		}
		p, ok := presets[strings.ToLower(env)]
		if !ok {
			p = presets[EnvDevelopment]
		}
		c.level = p.level
		c.format = p.format
		c.attrs = append(c.attrs,
			slog.String("service", service),
			slog.String("env", p.env),
		)
	}
}

func WithDevelopment(service string) Option { return WithEnvironment(EnvDevelopment, service) }
func WithProduction(service string) Option  { return WithEnvironment(EnvProduction, service) }

func SetAsDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

type config struct {
	level      slog.Level
	format     Format
	output     io.Writer
	source     bool
	attrs      []slog.Attr
	extractors []ContextExtractor
}

// New creates a logger. Without options it writes JSON at info level to
// stdout.
func New(opts ...Option) *slog.Logger {
	cfg := &config{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.level, AddSource: cfg.source}
	var handler slog.Handler
	if cfg.format == FormatText {
		handler = slog.NewTextHandler(cfg.output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(cfg.output, handlerOpts)
	}
	if len(cfg.attrs) > 0 {
		handler = handler.WithAttrs(cfg.attrs)
	}
	return slog.New(newContextHandler(handler, cfg.extractors))
}
