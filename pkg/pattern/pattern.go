package pattern

import (
	"strings"
)

// Kind classifies a mapping pattern.
type Kind int

const (
	Invalid Kind = iota
	Exact
	Prefix
	Extension
	Default
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "exact"
	case Prefix:
		return "prefix"
	case Extension:
		return "extension"
	case Default:
		return "default"
	default:
		return "invalid"
	}
}

// Classify returns the rule class of pattern.
func Classify(pattern string) Kind {
	switch {
	case pattern == "/":
		return Default
	case strings.HasPrefix(pattern, "*."):
		if len(pattern) == 2 || strings.Contains(pattern[2:], "/") {
			return Invalid
		}
		return Extension
	case strings.HasPrefix(pattern, "/"):
		if strings.HasSuffix(pattern, "/*") {
			return Prefix
		}
		if strings.Contains(pattern, "*") {
			return Invalid
		}
		return Exact
	case pattern == "":
		// The empty pattern maps the context root exactly.
		return Exact
	default:
		return Invalid
	}
}

// Validate returns ErrInvalidPattern when pattern belongs to no rule class.
func Validate(pattern string) error {
	if Classify(pattern) == Invalid {
		return invalidPattern(pattern)
	}
	return nil
}

// Match reports whether pattern selects candidate using filter semantics:
// exact, path-prefix and extension rules apply, the default pattern "/" never
// matches. Every filter whose pattern matches applies to the request.
func Match(pattern, candidate string) bool {
	if pattern == "" || candidate == "" {
		return false
	}
	if pattern == candidate {
		return true
	}
	if pattern == "/*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		return matchPrefix(prefix, candidate)
	}
	if ext, ok := strings.CutPrefix(pattern, "*."); ok {
		return matchExtension(ext, candidate)
	}
	return false
}

func matchPrefix(prefix, candidate string) bool {
	if !strings.HasPrefix(candidate, prefix) {
		return false
	}
	return len(candidate) == len(prefix) || candidate[len(prefix)] == '/'
}

func matchExtension(ext, candidate string) bool {
	if ext == "" {
		return false
	}
	segment := candidate[strings.LastIndexByte(candidate, '/')+1:]
	dot := strings.LastIndexByte(segment, '.')
	if dot < 0 || dot == len(segment)-1 {
		return false
	}
	return segment[dot+1:] == ext
}
