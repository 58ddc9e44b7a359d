package descriptor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/dispatchkit/core"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatchtype"
	"github.com/dmitrymomot/dispatchkit/pkg/pattern"
)

// Document is a parsed descriptor.
type Document struct {
	ContextPath    string          `yaml:"context_path"`
	Handlers       []Handler       `yaml:"handlers"`
	Filters        []Filter        `yaml:"filters"`
	FilterMappings []FilterMapping `yaml:"filter_mappings"`
	ErrorPages     map[int]string  `yaml:"error_pages"`
}

// Handler declares one handler registration.
type Handler struct {
	Name    string `yaml:"name"`
	Factory string `yaml:"factory"`
	// LoadPriority loads the handler on startup when non-negative.
	// A missing value keeps the handler lazy.
	LoadPriority *int         `yaml:"load_priority"`
	InitParams   []core.Param `yaml:"init_params"`
	Mappings     []string     `yaml:"mappings"`
}

// Filter declares one filter registration.
type Filter struct {
	Name       string       `yaml:"name"`
	Factory    string       `yaml:"factory"`
	InitParams []core.Param `yaml:"init_params"`
}

// FilterMapping binds a filter to a URL pattern or a handler name.
type FilterMapping struct {
	Filter      string   `yaml:"filter"`
	URLPattern  string   `yaml:"url_pattern"`
	Handler     string   `yaml:"handler"`
	Dispatchers []string `yaml:"dispatchers"`
	// Before inserts the mapping ahead of the mappings appended so far.
	Before bool `yaml:"before"`
}

// Load reads and parses the descriptor at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrReadDescriptor, err)
	}
	return Parse(data)
}

// Parse decodes a YAML descriptor and validates it. Unknown fields are errors.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrParseDescriptor, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks every rule that does not need the factory catalog.
func (doc *Document) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if doc.ContextPath != "" && !strings.HasPrefix(doc.ContextPath, "/") {
		invalid("context_path %q must start with /", doc.ContextPath)
	}

	handlers := make(map[string]bool, len(doc.Handlers))
	for i, h := range doc.Handlers {
		switch {
		case h.Name == "":
			invalid("handlers[%d]: name is required", i)
		case handlers[h.Name]:
			invalid("handlers[%d]: duplicate name %q", i, h.Name)
		}
		handlers[h.Name] = true
		if h.Factory == "" {
			invalid("handler %q: factory is required", h.Name)
		}
		for _, p := range h.Mappings {
			if err := pattern.Validate(p); err != nil {
				invalid("handler %q: %w", h.Name, err)
			}
		}
	}

	filters := make(map[string]bool, len(doc.Filters))
	for i, f := range doc.Filters {
		switch {
		case f.Name == "":
			invalid("filters[%d]: name is required", i)
		case filters[f.Name]:
			invalid("filters[%d]: duplicate name %q", i, f.Name)
		}
		filters[f.Name] = true
		if f.Factory == "" {
			invalid("filter %q: factory is required", f.Name)
		}
	}

	for i, m := range doc.FilterMappings {
		if !filters[m.Filter] {
			invalid("filter_mappings[%d]: unknown filter %q", i, m.Filter)
		}
		if (m.URLPattern == "") == (m.Handler == "") {
			invalid("filter_mappings[%d]: exactly one of url_pattern and handler is required", i)
		}
		if m.URLPattern != "" {
			if err := pattern.Validate(m.URLPattern); err != nil {
				invalid("filter_mappings[%d]: %w", i, err)
			}
		}
		if _, err := dispatchtype.ParseSet(m.Dispatchers); err != nil {
			invalid("filter_mappings[%d]: %w", i, err)
		}
	}

	for status, path := range doc.ErrorPages {
		if status < 400 || status > 599 {
			invalid("error_pages: status %d is not a 4xx or 5xx code", status)
		}
		if !strings.HasPrefix(path, "/") {
			invalid("error_pages: path %q for status %d must start with /", path, status)
		}
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidDescriptor}, errs...)...)
	}
	return nil
}
