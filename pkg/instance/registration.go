package instance

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/dispatchkit/core"
)

// Factory builds a new, uninitialized handler instance.
type Factory func() (core.Handler, error)

// RegistrationOption configures a Registration.
type RegistrationOption func(*Registration)

// WithInitParams sets the ordered init parameters passed to Handler.Init.
func WithInitParams(params ...core.Param) RegistrationOption {
	return func(r *Registration) { r.params = slices.Clone(params) }
}

// WithLoadPriority sets the load-on-startup priority. Handlers with a
// negative priority are created lazily on first use.
func WithLoadPriority(priority int) RegistrationOption {
	return func(r *Registration) { r.loadPriority = priority }
}

// Registration is the configuration and runtime state of one handler.
type Registration struct {
	name         string
	factory      Factory
	params       []core.Param
	loadPriority int

	// unix nanoseconds; 0 available, core.PermanentRetry permanently unavailable
	availableUntil atomic.Int64
	outstanding    atomic.Int64

	mu        sync.Mutex
	pooled    bool
	singleton *Instance
	pool      chan *Instance
	slots     chan struct{}
	gen       uint64
	unloaded  bool

	// wake is closed when the registration is unloaded so that allocations
	// waiting for a pooled instance give up.
	wake  chan struct{}
	awake bool
}

// NewRegistration creates a registration for a handler built by factory.
// It panics if name is empty or factory is nil.
func NewRegistration(name string, factory Factory, opts ...RegistrationOption) *Registration {
	if name == "" {
		panic("instance.NewRegistration: name cannot be empty")
	}
	if factory == nil {
		panic("instance.NewRegistration: factory cannot be nil")
	}
	r := &Registration{name: name, factory: factory, loadPriority: -1, wake: make(chan struct{})}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the handler name.
func (r *Registration) Name() string { return r.name }

// LoadPriority returns the load-on-startup priority; negative means lazy.
func (r *Registration) LoadPriority() int { return r.loadPriority }

// Outstanding returns the number of allocated instances not yet released.
func (r *Registration) Outstanding() int64 { return r.outstanding.Load() }

// retired reports whether an unload started and no Load followed.
// r.mu must be held.
func (r *Registration) retired() bool { return r.unloaded || r.awake }

// wakeWaiters releases every allocation blocked on the pool. r.mu must be held.
func (r *Registration) wakeWaiters() {
	if !r.awake {
		close(r.wake)
		r.awake = true
	}
}

// Config returns the configuration handed to Handler.Init.
func (r *Registration) Config() core.Config {
	return core.NewConfig(r.name, r.params...)
}

// Pooled reports whether the handler was discovered to need one instance per
// invocation. It is false until the first instance has been created.
func (r *Registration) Pooled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pooled
}

// Idle returns the number of pooled instances waiting to be allocated.
func (r *Registration) Idle() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool == nil {
		return 0
	}
	return len(r.pool)
}

// AvailableUntil returns the end of the unavailability window. The zero time
// means available; permanent reports a window that never ends.
func (r *Registration) AvailableUntil() (until time.Time, permanent bool) {
	v := r.availableUntil.Load()
	switch v {
	case 0:
		return time.Time{}, false
	case core.PermanentRetry:
		return time.Time{}, true
	default:
		return time.Unix(0, v), false
	}
}

// Instance is one handler instance handed out by Allocate.
type Instance struct {
	handler core.Handler
	reg     *Registration
	gen     uint64
	idle    atomic.Bool
}

// Handler returns the handler to invoke.
func (i *Instance) Handler() core.Handler { return i.handler }

// Registration returns the registration the instance was created for.
func (i *Instance) Registration() *Registration { return i.reg }
