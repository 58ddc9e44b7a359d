package filterchain

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/dispatchkit/pkg/dispatchtype"
	"github.com/dmitrymomot/dispatchkit/pkg/pattern"
)

// AnyHandler as HandlerName maps a filter to every handler.
const AnyHandler = "*"

// Mapping binds a filter to requests by URL pattern or by handler name.
// Exactly one of URLPattern and HandlerName is set. An empty Dispatch set
// means REQUEST only.
type Mapping struct {
	FilterName  string
	URLPattern  string
	HandlerName string
	Dispatch    dispatchtype.Type
}

// Validate reports configuration errors of m.
func (m Mapping) Validate() error {
	switch {
	case m.FilterName == "":
		return errors.Join(ErrInvalidMapping, errors.New("filter name is empty"))
	case m.URLPattern == "" && m.HandlerName == "":
		return errors.Join(ErrInvalidMapping, fmt.Errorf("filter %q: url pattern or handler name required", m.FilterName))
	case m.URLPattern != "" && m.HandlerName != "":
		return errors.Join(ErrInvalidMapping, fmt.Errorf("filter %q: url pattern and handler name are exclusive", m.FilterName))
	}
	if m.URLPattern != "" {
		if err := pattern.Validate(m.URLPattern); err != nil {
			return errors.Join(ErrInvalidMapping, err)
		}
	}
	return nil
}

func (m Mapping) matchesPath(path string) bool {
	return m.URLPattern != "" && pattern.Match(m.URLPattern, path)
}

func (m Mapping) matchesHandler(name string) bool {
	if m.HandlerName == "" || name == "" {
		return false
	}
	return m.HandlerName == AnyHandler || m.HandlerName == name
}

func (m Mapping) activeFor(state dispatchtype.Type) bool {
	return dispatchtype.IsActiveFor(m.Dispatch, state)
}
