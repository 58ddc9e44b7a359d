package filterchain

import (
	"errors"
	"slices"
	"sync"

	"github.com/dmitrymomot/dispatchkit/core"
)

// Factory builds a new, uninitialized filter.
type Factory func() (core.Filter, error)

// Static returns a Factory that always yields f.
func Static(f core.Filter) Factory {
	return func() (core.Filter, error) { return f, nil }
}

// Registration is one configured filter. The filter is created and
// initialized on first use and shared by every chain that selects it.
type Registration struct {
	name    string
	factory Factory
	params  []core.Param

	mu     sync.Mutex
	filter core.Filter
}

// NewRegistration creates a filter registration. It panics if name is empty
// or factory is nil.
func NewRegistration(name string, factory Factory, params ...core.Param) *Registration {
	if name == "" {
		panic("filterchain.NewRegistration: name cannot be empty")
	}
	if factory == nil {
		panic("filterchain.NewRegistration: factory cannot be nil")
	}
	return &Registration{name: name, factory: factory, params: slices.Clone(params)}
}

// Name returns the filter name.
func (r *Registration) Name() string { return r.name }

// Config returns the configuration handed to Filter.Init.
func (r *Registration) Config() core.Config {
	return core.NewConfig(r.name, r.params...)
}

// Filter returns the initialized filter, creating it on first call.
// A failed creation is retried by the next call.
func (r *Registration) Filter() (f core.Filter, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filter != nil {
		return r.filter, nil
	}

	defer func() {
		if p := recover(); p != nil {
			f, err = nil, errors.Join(core.ErrInitializationFailed, core.Fault(p))
		}
	}()
	f, err = r.factory()
	if err != nil {
		return nil, errors.Join(core.ErrInitializationFailed, err)
	}
	if f == nil {
		return nil, errors.Join(core.ErrInitializationFailed, ErrNilFilter)
	}
	if err := f.Init(r.Config()); err != nil {
		return nil, errors.Join(core.ErrInitializationFailed, err)
	}
	r.filter = f
	return f, nil
}

// Initialized reports whether the filter has been created.
func (r *Registration) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter != nil
}

// Destroy destroys an initialized filter. The next Filter call creates a
// new one.
func (r *Registration) Destroy() (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filter == nil {
		return nil
	}
	f := r.filter
	r.filter = nil
	defer func() {
		if p := recover(); p != nil {
			err = errors.Join(core.ErrFinalizationFailed, core.Fault(p))
		}
	}()
	if err := f.Destroy(); err != nil {
		return errors.Join(core.ErrFinalizationFailed, err)
	}
	return nil
}
