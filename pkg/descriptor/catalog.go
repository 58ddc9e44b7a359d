package descriptor

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dmitrymomot/dispatchkit/pkg/filterchain"
	"github.com/dmitrymomot/dispatchkit/pkg/instance"
)

// Catalog maps the factory names used in descriptors to constructors.
// Descriptors can only instantiate what the program put in its catalog.
type Catalog struct {
	mu       sync.RWMutex
	handlers map[string]instance.Factory
	filters  map[string]filterchain.Factory
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		handlers: make(map[string]instance.Factory),
		filters:  make(map[string]filterchain.Factory),
	}
}

// Handler adds a handler factory. It panics on an empty name, a nil
// factory or a name that is already taken.
func (c *Catalog) Handler(name string, f instance.Factory) *Catalog {
	if name == "" || f == nil {
		panic("descriptor: handler factory needs a name and a constructor")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.handlers[name]; ok {
		panic(fmt.Sprintf("descriptor: handler factory %q registered twice", name))
	}
	c.handlers[name] = f
	return c
}

// Filter adds a filter factory. It panics like Handler.
func (c *Catalog) Filter(name string, f filterchain.Factory) *Catalog {
	if name == "" || f == nil {
		panic("descriptor: filter factory needs a name and a constructor")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.filters[name]; ok {
		panic(fmt.Sprintf("descriptor: filter factory %q registered twice", name))
	}
	c.filters[name] = f
	return c
}

func (c *Catalog) handler(name string) (instance.Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.handlers[name]
	return f, ok
}

func (c *Catalog) filter(name string) (filterchain.Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.filters[name]
	return f, ok
}

// HandlerFactories lists the handler factory names in sorted order.
func (c *Catalog) HandlerFactories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.handlers))
}

// FilterFactories lists the filter factory names in sorted order.
func (c *Catalog) FilterFactories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.filters))
}
