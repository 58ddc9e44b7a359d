package pattern

import (
	"slices"
	"strings"
	"sync"
)

// Route is the result of resolving a context-relative path.
type Route struct {
	Name        string // registered handler name
	Pattern     string // pattern that selected the handler
	Kind        Kind
	ServletPath string
	PathInfo    string
}

type prefixEntry struct {
	prefix string
	name   string
}

// Mapper selects the single most specific handler for a path:
// exact, then longest path prefix, then extension, then default.
// It is safe for concurrent use.
type Mapper struct {
	mu         sync.RWMutex
	exact      map[string]string
	prefixes   []prefixEntry // longest prefix first
	extensions map[string]string
	def        string
	hasDefault bool
}

// NewMapper returns an empty Mapper.
func NewMapper() *Mapper {
	return &Mapper{
		exact:      make(map[string]string),
		extensions: make(map[string]string),
	}
}

// Add maps pattern to the handler name. A pattern registered twice keeps the
// last name.
func (m *Mapper) Add(pattern, name string) error {
	kind := Classify(pattern)
	if kind == Invalid {
		return invalidPattern(pattern)
	}
	if name == "" {
		return ErrEmptyName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case Exact:
		m.exact[pattern] = name
	case Prefix:
		prefix := strings.TrimSuffix(pattern, "/*")
		m.prefixes = slices.DeleteFunc(m.prefixes, func(e prefixEntry) bool { return e.prefix == prefix })
		m.prefixes = append(m.prefixes, prefixEntry{prefix: prefix, name: name})
		slices.SortStableFunc(m.prefixes, func(a, b prefixEntry) int { return len(b.prefix) - len(a.prefix) })
	case Extension:
		m.extensions[strings.TrimPrefix(pattern, "*.")] = name
	case Default:
		m.def = name
		m.hasDefault = true
	}
	return nil
}

// Remove drops a pattern. Unknown patterns are ignored.
func (m *Mapper) Remove(pattern string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch Classify(pattern) {
	case Exact:
		delete(m.exact, pattern)
	case Prefix:
		prefix := strings.TrimSuffix(pattern, "/*")
		m.prefixes = slices.DeleteFunc(m.prefixes, func(e prefixEntry) bool { return e.prefix == prefix })
	case Extension:
		delete(m.extensions, strings.TrimPrefix(pattern, "*."))
	case Default:
		m.def = ""
		m.hasDefault = false
	}
}

// RemoveName drops every pattern mapped to name.
func (m *Mapper) RemoveName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for p, n := range m.exact {
		if n == name {
			delete(m.exact, p)
		}
	}
	for ext, n := range m.extensions {
		if n == name {
			delete(m.extensions, ext)
		}
	}
	m.prefixes = slices.DeleteFunc(m.prefixes, func(e prefixEntry) bool { return e.name == name })
	if m.hasDefault && m.def == name {
		m.def = ""
		m.hasDefault = false
	}
}

// Resolve returns the route for a decoded, context-relative path.
func (m *Mapper) Resolve(path string) (Route, bool) {
	if path == "" {
		path = "/"
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if name, ok := m.exact[path]; ok {
		return Route{Name: name, Pattern: path, Kind: Exact, ServletPath: path}, true
	}

	for _, e := range m.prefixes {
		if e.prefix == "" || matchPrefix(e.prefix, path) {
			return Route{
				Name:        e.name,
				Pattern:     e.prefix + "/*",
				Kind:        Prefix,
				ServletPath: e.prefix,
				PathInfo:    path[len(e.prefix):],
			}, true
		}
	}

	segment := path[strings.LastIndexByte(path, '/')+1:]
	if dot := strings.LastIndexByte(segment, '.'); dot >= 0 && dot < len(segment)-1 {
		if name, ok := m.extensions[segment[dot+1:]]; ok {
			return Route{Name: name, Pattern: "*." + segment[dot+1:], Kind: Extension, ServletPath: path}, true
		}
	}

	if m.hasDefault {
		return Route{Name: m.def, Pattern: "/", Kind: Default, ServletPath: path}, true
	}
	return Route{}, false
}

// Patterns returns every pattern mapped to name.
func (m *Mapper) Patterns(name string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for p, n := range m.exact {
		if n == name {
			out = append(out, p)
		}
	}
	for _, e := range m.prefixes {
		if e.name == name {
			out = append(out, e.prefix+"/*")
		}
	}
	for ext, n := range m.extensions {
		if n == name {
			out = append(out, "*."+ext)
		}
	}
	if m.hasDefault && m.def == name {
		out = append(out, "/")
	}
	slices.Sort(out)
	return out
}
