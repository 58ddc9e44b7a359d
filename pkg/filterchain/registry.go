package filterchain

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/dmitrymomot/dispatchkit/pkg/dispatchtype"
	"github.com/dmitrymomot/dispatchkit/pkg/instance"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Registry holds filter registrations and their mappings.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	filters  map[string]*Registration
	order    []*Registration
	mappings []Mapping
	// mappings added with AddMappingBefore occupy mappings[:before]
	before int
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger:  logger.Noop(),
		filters: make(map[string]*Registration),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("filterchain"))
	return r
}

// AddFilter registers a filter. Names are unique.
func (r *Registry) AddFilter(reg *Registration) error {
	if reg == nil {
		return ErrNilRegistration
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.filters[reg.name]; ok {
		return errors.Join(ErrDuplicateFilter, errors.New(reg.name))
	}
	r.filters[reg.name] = reg
	r.order = append(r.order, reg)
	return nil
}

// AddMapping appends m to the mapping list.
func (r *Registry) AddMapping(m Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings = append(r.mappings, m)
	return nil
}

// AddMappingBefore inserts m ahead of every mapping added with AddMapping,
// after the mappings previously added with AddMappingBefore.
func (r *Registry) AddMappingBefore(m Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings = slices.Insert(r.mappings, r.before, m)
	r.before++
	return nil
}

// Filter returns the registration with the given name.
func (r *Registry) Filter(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.filters[name]
	return reg, ok
}

// Mappings returns the mappings in evaluation order.
func (r *Registry) Mappings() []Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.mappings)
}

// Build returns the filters to run, in order, for an invocation of handler
// at requestPath with the given dispatch state.
//
// URL mappings come first, then handler-name mappings, each in mapping
// order. Mappings naming an unregistered filter are skipped. A nil handler
// yields an empty chain. The result is a new slice on every call.
func (r *Registry) Build(handler *instance.Registration, requestPath string, state dispatchtype.Type) []*Registration {
	if handler == nil {
		return []*Registration{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := make([]*Registration, 0, len(r.mappings))
	for _, m := range r.mappings {
		if !m.activeFor(state) || !m.matchesPath(requestPath) {
			continue
		}
		if reg := r.lookup(m); reg != nil {
			chain = append(chain, reg)
		}
	}
	for _, m := range r.mappings {
		if !m.activeFor(state) || !m.matchesHandler(handler.Name()) {
			continue
		}
		if reg := r.lookup(m); reg != nil {
			chain = append(chain, reg)
		}
	}
	return chain
}

func (r *Registry) lookup(m Mapping) *Registration {
	reg, ok := r.filters[m.FilterName]
	if !ok {
		r.logger.Debug("skipping mapping of unregistered filter",
			logger.Filter(m.FilterName),
			logger.Pattern(m.URLPattern),
		)
		return nil
	}
	return reg
}

// Destroy destroys every initialized filter in reverse registration order.
// All filters are attempted; failures are returned joined.
func (r *Registry) Destroy() error {
	r.mu.RLock()
	regs := slices.Clone(r.order)
	r.mu.RUnlock()

	var errs []error
	for _, reg := range slices.Backward(regs) {
		if err := reg.Destroy(); err != nil {
			r.logger.Error("failed to destroy filter", logger.Filter(reg.name), logger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
