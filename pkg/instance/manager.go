package instance

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"math"
	"runtime/pprof"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/dispatchkit/core"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/metrics"
)

const (
	DefaultUnloadDelay   = 2 * time.Second
	DefaultUnloadRetries = 21
	DefaultMaxInstances  = 20

	// unloadTicks splits the unload delay into polling ticks.
	unloadTicks = 20
	// progress is logged every unloadLogEvery ticks while draining.
	unloadLogEvery = 10
)

// Allocation outcomes reported to metrics.
const (
	resultOK          = "ok"
	resultUnavailable = "unavailable"
	resultFailed      = "failed"
	resultCanceled    = "canceled"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock replaces time.Now for availability windows.
func WithClock(now func() time.Time) Option {
	if now == nil {
		panic("WithClock: clock cannot be nil")
	}
	return func(m *Manager) { m.now = now }
}

// WithUnloadDelay sets the nominal drain delay of Unload. The wait polls
// every delay/20.
func WithUnloadDelay(d time.Duration) Option {
	if d <= 0 {
		panic("WithUnloadDelay: duration must be > 0")
	}
	return func(m *Manager) { m.unloadDelay = d }
}

// WithUnloadRetries sets how many ticks Unload waits at most.
func WithUnloadRetries(n int) Option {
	if n < 0 {
		panic("WithUnloadRetries: retries must be >= 0")
	}
	return func(m *Manager) { m.unloadRetries = n }
}

// WithMaxInstances bounds the pool of single-instance handlers.
func WithMaxInstances(n int) Option {
	if n <= 0 {
		panic("WithMaxInstances: max instances must be > 0")
	}
	return func(m *Manager) { m.maxInstances = n }
}

// WithMetrics records allocations and unloads in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// Manager allocates, releases and unloads handler instances.
type Manager struct {
	logger        *slog.Logger
	metrics       *metrics.Collector
	now           func() time.Time
	unloadDelay   time.Duration
	unloadRetries int
	maxInstances  int

	mu    sync.RWMutex
	regs  map[string]*Registration
	order []*Registration
}

// NewManager creates a Manager with the given options.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:        logger.Noop(),
		now:           time.Now,
		unloadDelay:   DefaultUnloadDelay,
		unloadRetries: DefaultUnloadRetries,
		maxInstances:  DefaultMaxInstances,
		regs:          make(map[string]*Registration),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("instance"))
	return m
}

// Register adds reg to the manager. Names are unique.
func (m *Manager) Register(reg *Registration) error {
	if reg == nil {
		return ErrNilRegistration
	}
	if reg.name == "" {
		return ErrEmptyName
	}
	if reg.factory == nil {
		return ErrNilFactory
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.regs[reg.name]; ok {
		return errors.Join(ErrDuplicateRegistration, errors.New(reg.name))
	}
	m.regs[reg.name] = reg
	m.order = append(m.order, reg)
	return nil
}

// Registration returns the registration with the given name.
func (m *Manager) Registration(name string) (*Registration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.regs[name]
	return reg, ok
}

// Registrations returns all registrations in registration order.
func (m *Manager) Registrations() []*Registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Allocate returns an instance of reg ready to serve.
//
// It fails with *core.UnavailableError while reg is unavailable. Ordinary
// handlers share one cached instance. Handlers embedding core.SingleInstance
// get an idle pooled instance, a new one while fewer than the configured
// maximum exist, or wait for a release until ctx is done.
func (m *Manager) Allocate(ctx context.Context, reg *Registration) (*Instance, error) {
	if reg == nil {
		return nil, ErrNilRegistration
	}
	if err := m.checkAvailable(reg); err != nil {
		m.metrics.Allocation(reg.name, resultUnavailable, reg.outstanding.Load())
		return nil, err
	}

	reg.mu.Lock()
	if !reg.pooled {
		inst, err := m.loadLocked(reg)
		if err != nil {
			reg.mu.Unlock()
			result := resultFailed
			if errors.Is(err, core.ErrUnavailable) {
				result = resultUnavailable
			}
			m.metrics.Allocation(reg.name, result, reg.outstanding.Load())
			return nil, err
		}
		if inst != nil {
			n := reg.outstanding.Add(1)
			reg.mu.Unlock()
			m.metrics.Allocation(reg.name, resultOK, n)
			return inst, nil
		}
	}
	reg.mu.Unlock()

	return m.allocatePooled(ctx, reg)
}

// loadLocked returns the cached singleton, creating and initializing it on
// first use. When the created handler turns out to need one instance per
// invocation, reg switches to pooled mode and the new instance is returned
// as the first pooled one. It returns nil, nil if reg is already pooled.
// reg.mu must be held.
func (m *Manager) loadLocked(reg *Registration) (*Instance, error) {
	if reg.retired() {
		return nil, m.unloadedError(reg)
	}
	if reg.pooled {
		return nil, nil
	}
	if reg.singleton != nil {
		return reg.singleton, nil
	}

	inst, err := m.create(reg, reg.gen)
	if err != nil {
		return nil, err
	}

	if core.IsSingleInstance(inst.handler) {
		reg.pooled = true
		reg.pool = make(chan *Instance, m.maxInstances)
		reg.slots = make(chan struct{}, m.maxInstances)
		for range m.maxInstances - 1 {
			reg.slots <- struct{}{}
		}
		if err := m.initialize(reg, inst); err != nil {
			reg.slots <- struct{}{}
			return nil, err
		}
		m.logger.Debug("handler uses one instance per invocation",
			logger.Handler(reg.name),
			slog.Int("max_instances", m.maxInstances),
		)
		return inst, nil
	}

	if err := m.initialize(reg, inst); err != nil {
		return nil, err
	}
	reg.singleton = inst
	return inst, nil
}

func (m *Manager) allocatePooled(ctx context.Context, reg *Registration) (*Instance, error) {
	reg.mu.Lock()
	if reg.retired() {
		reg.mu.Unlock()
		m.metrics.Allocation(reg.name, resultUnavailable, reg.outstanding.Load())
		return nil, m.unloadedError(reg)
	}
	pool, slots, wake := reg.pool, reg.slots, reg.wake
	reg.mu.Unlock()

	select {
	case inst := <-pool:
		return m.checkout(reg, inst)
	default:
	}

	select {
	case inst := <-pool:
		return m.checkout(reg, inst)
	case <-slots:
		return m.grow(reg, slots)
	default:
	}

	m.logger.DebugContext(ctx, "waiting for a pooled instance",
		logger.Handler(reg.name),
		logger.Outstanding(reg.outstanding.Load()),
	)
	select {
	case inst := <-pool:
		return m.checkout(reg, inst)
	case <-slots:
		return m.grow(reg, slots)
	case <-wake:
		m.metrics.Allocation(reg.name, resultUnavailable, reg.outstanding.Load())
		return nil, m.unloadedError(reg)
	case <-ctx.Done():
		m.metrics.Allocation(reg.name, resultCanceled, reg.outstanding.Load())
		return nil, ctx.Err()
	}
}

// checkout hands out an idle pooled instance.
func (m *Manager) checkout(reg *Registration, inst *Instance) (*Instance, error) {
	inst.idle.Store(false)
	// unavailability may have started while waiting
	if err := m.checkAvailable(reg); err != nil {
		inst.idle.Store(true)
		m.release(reg, inst)
		m.metrics.Allocation(reg.name, resultUnavailable, reg.outstanding.Load())
		return nil, err
	}
	n := reg.outstanding.Add(1)
	m.metrics.Allocation(reg.name, resultOK, n)
	return inst, nil
}

// grow creates a new pooled instance using a slot taken from slots.
func (m *Manager) grow(reg *Registration, slots chan struct{}) (*Instance, error) {
	reg.mu.Lock()
	gen, retired := reg.gen, reg.retired()
	reg.mu.Unlock()
	if retired {
		slots <- struct{}{}
		m.metrics.Allocation(reg.name, resultUnavailable, reg.outstanding.Load())
		return nil, m.unloadedError(reg)
	}

	inst, err := m.create(reg, gen)
	if err == nil {
		err = m.initialize(reg, inst)
	}
	if err != nil {
		slots <- struct{}{}
		m.metrics.Allocation(reg.name, resultFailed, reg.outstanding.Load())
		return nil, err
	}
	n := reg.outstanding.Add(1)
	m.metrics.Allocation(reg.name, resultOK, n)
	return inst, nil
}

func (m *Manager) create(reg *Registration, gen uint64) (inst *Instance, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Join(core.ErrInitializationFailed, core.Fault(p))
		}
	}()
	h, err := reg.factory()
	if err != nil {
		return nil, errors.Join(core.ErrInitializationFailed, err)
	}
	if h == nil {
		return nil, errors.Join(core.ErrInitializationFailed, ErrNilHandler)
	}
	return &Instance{handler: h, reg: reg, gen: gen}, nil
}

// initialize runs Handler.Init. A handler that reports itself unavailable
// from Init takes its registration out of service.
func (m *Manager) initialize(reg *Registration, inst *Instance) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Join(core.ErrInitializationFailed, core.Fault(p))
			m.logger.Error("handler init panicked", logger.Handler(reg.name), logger.Error(err))
		}
	}()
	if err := inst.handler.Init(reg.Config()); err != nil {
		if ue, ok := core.AsUnavailable(err); ok {
			return m.Unavailable(reg, ue)
		}
		m.logger.Error("handler init failed", logger.Handler(reg.name), logger.Error(err))
		return errors.Join(core.ErrInitializationFailed, err)
	}
	return nil
}

// Deallocate returns inst after an invocation. Pooled instances go back to
// the pool; an instance is never pooled twice.
func (m *Manager) Deallocate(reg *Registration, inst *Instance) error {
	if reg == nil {
		return ErrNilRegistration
	}
	if inst == nil {
		return ErrNilInstance
	}
	if inst.reg != reg {
		return ErrForeignInstance
	}

	reg.mu.Lock()
	pooled := reg.pooled
	reg.mu.Unlock()

	if pooled && !inst.idle.CompareAndSwap(false, true) {
		return ErrInstanceAlreadyPooled
	}
	n := reg.outstanding.Add(-1)
	if n < 0 {
		reg.outstanding.Add(1)
		if pooled {
			inst.idle.Store(false)
		}
		return ErrNotAllocated
	}
	m.metrics.Outstanding(reg.name, n)

	if pooled {
		m.release(reg, inst)
	}
	return nil
}

// release puts an idle instance back into the pool, or destroys it when its
// registration was unloaded after it was created.
func (m *Manager) release(reg *Registration, inst *Instance) {
	reg.mu.Lock()
	if inst.gen == reg.gen {
		select {
		case reg.pool <- inst:
			reg.mu.Unlock()
			return
		default:
		}
	}
	reg.mu.Unlock()
	if err := m.destroy(reg, inst); err != nil {
		m.logger.Warn("failed to destroy released instance", logger.Handler(reg.name), logger.Error(err))
	}
}

// MarkUnavailable takes reg out of service for the given number of seconds.
// A non-positive value is replaced by core.DefaultUnavailableSeconds.
func (m *Manager) MarkUnavailable(reg *Registration, seconds int) *core.UnavailableError {
	if seconds <= 0 {
		seconds = core.DefaultUnavailableSeconds
	}
	until := m.now().Add(time.Duration(seconds) * time.Second)
	reg.availableUntil.Store(until.UnixNano())
	m.metrics.Unavailable(reg.name, false)
	m.logger.Info("handler marked unavailable",
		logger.Handler(reg.name),
		slog.Int("seconds", seconds),
		slog.Time("until", until),
	)
	return &core.UnavailableError{Handler: reg.name, Seconds: seconds, Until: until}
}

// MarkPermanentlyUnavailable takes reg out of service until MarkAvailable.
func (m *Manager) MarkPermanentlyUnavailable(reg *Registration) *core.UnavailableError {
	if reg.availableUntil.Swap(core.PermanentRetry) != core.PermanentRetry {
		m.metrics.Unavailable(reg.name, true)
		m.logger.Info("handler marked permanently unavailable", logger.Handler(reg.name))
	}
	return &core.UnavailableError{Handler: reg.name, Permanent: true}
}

// MarkAvailable clears any unavailability window of reg.
func (m *Manager) MarkAvailable(reg *Registration) {
	if reg.availableUntil.Swap(0) != 0 {
		m.logger.Info("handler marked available", logger.Handler(reg.name))
	}
}

// Unavailable applies an unavailability reported by the handler itself and
// returns the error completed with the registration details.
func (m *Manager) Unavailable(reg *Registration, ue *core.UnavailableError) *core.UnavailableError {
	if ue == nil || ue.Permanent {
		return m.MarkPermanentlyUnavailable(reg)
	}
	return m.MarkUnavailable(reg, ue.Seconds)
}

// checkAvailable returns *core.UnavailableError while the window of reg is open.
func (m *Manager) checkAvailable(reg *Registration) error {
	until := reg.availableUntil.Load()
	if until == 0 {
		return nil
	}
	if until == core.PermanentRetry {
		return &core.UnavailableError{Handler: reg.name, Permanent: true}
	}
	now := m.now()
	remaining := time.Duration(until - now.UnixNano())
	if remaining <= 0 {
		reg.availableUntil.CompareAndSwap(until, 0)
		return nil
	}
	return &core.UnavailableError{
		Handler: reg.name,
		Seconds: int(math.Ceil(remaining.Seconds())),
		Until:   time.Unix(0, until),
	}
}

// unloadedError reports an allocation refused because reg is being or was
// unloaded and not loaded again. Without an open window it is permanent.
func (m *Manager) unloadedError(reg *Registration) error {
	if err := m.checkAvailable(reg); err != nil {
		return err
	}
	return &core.UnavailableError{Handler: reg.name, Permanent: true}
}

// Unload takes reg out of service and destroys its instances.
//
// reg is marked permanently unavailable first, so new allocations fail fast.
// Unload then polls until no instance is outstanding, for at most the
// configured number of ticks or until ctx is done, and proceeds either way.
// Every owned instance is destroyed; the first failure is returned joined
// with core.ErrFinalizationFailed and the rest are logged.
func (m *Manager) Unload(ctx context.Context, reg *Registration) error {
	if reg == nil {
		return ErrNilRegistration
	}
	start := time.Now()
	m.MarkPermanentlyUnavailable(reg)
	reg.mu.Lock()
	reg.wakeWaiters()
	reg.mu.Unlock()

	m.drain(ctx, reg)

	var err error
	labels := pprof.Labels("dispatch_handler", reg.name, "dispatch_phase", "unload")
	pprof.Do(ctx, labels, func(context.Context) {
		err = m.finalize(reg)
	})

	m.metrics.Unload(reg.name, time.Since(start))
	m.logger.Info("handler unloaded",
		logger.Handler(reg.name),
		slog.Duration("elapsed", time.Since(start)),
		logger.Error(err),
	)
	return err
}

func (m *Manager) drain(ctx context.Context, reg *Registration) {
	tick := max(m.unloadDelay/unloadTicks, time.Millisecond)
	timer := time.NewTimer(tick)
	defer timer.Stop()

	for i := 0; i < m.unloadRetries; i++ {
		n := reg.outstanding.Load()
		if n <= 0 {
			return
		}
		if i%unloadLogEvery == 0 {
			m.logger.InfoContext(ctx, "waiting for instances to be deallocated",
				logger.Handler(reg.name),
				logger.Outstanding(n),
			)
		}
		timer.Reset(tick)
		select {
		case <-ctx.Done():
			m.logger.WarnContext(ctx, "unload wait interrupted",
				logger.Handler(reg.name),
				logger.Error(ctx.Err()),
			)
			return
		case <-timer.C:
		}
	}
	if n := reg.outstanding.Load(); n > 0 {
		m.logger.WarnContext(ctx, "unload proceeding with outstanding instances",
			logger.Handler(reg.name),
			logger.Outstanding(n),
		)
	}
}

// finalize destroys the singleton and every idle pooled instance of reg.
// Instances still outstanding are destroyed when they are released.
func (m *Manager) finalize(reg *Registration) error {
	reg.mu.Lock()
	var owned []*Instance
	if reg.singleton != nil {
		owned = append(owned, reg.singleton)
		reg.singleton = nil
	}
	if reg.pool != nil {
	drain:
		for {
			select {
			case inst := <-reg.pool:
				owned = append(owned, inst)
			default:
				break drain
			}
		}
	}
	reg.gen++
	reg.unloaded = true
	reg.mu.Unlock()

	var first error
	for _, inst := range owned {
		err := m.destroy(reg, inst)
		if err == nil {
			continue
		}
		if first == nil {
			first = errors.Join(core.ErrFinalizationFailed, err)
			continue
		}
		m.logger.Error("failed to destroy instance", logger.Handler(reg.name), logger.Error(err))
	}
	return first
}

func (m *Manager) destroy(reg *Registration, inst *Instance) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = core.Fault(p)
		}
	}()
	return inst.handler.Destroy()
}

// Load creates and initializes an instance of reg ahead of the first
// request. A registration that was unloaded is put back into service.
func (m *Manager) Load(ctx context.Context, reg *Registration) error {
	if reg == nil {
		return ErrNilRegistration
	}
	reg.mu.Lock()
	if reg.unloaded {
		reg.unloaded = false
		if reg.awake {
			reg.wake = make(chan struct{})
			reg.awake = false
		}
		if reg.slots != nil {
			for len(reg.slots) > 0 {
				<-reg.slots
			}
			for range m.maxInstances {
				reg.slots <- struct{}{}
			}
		}
		reg.mu.Unlock()
		m.MarkAvailable(reg)
	} else {
		reg.mu.Unlock()
	}

	inst, err := m.Allocate(ctx, reg)
	if err != nil {
		return err
	}
	return m.Deallocate(reg, inst)
}

// LoadOnStartup loads every registration with a non-negative load priority,
// lowest priority first. Registrations with equal priority load in
// registration order. Failures are logged and returned joined; they do not
// stop the remaining loads.
func (m *Manager) LoadOnStartup(ctx context.Context) error {
	regs := slices.DeleteFunc(m.Registrations(), func(r *Registration) bool {
		return r.loadPriority < 0
	})
	slices.SortStableFunc(regs, func(a, b *Registration) int {
		return cmp.Compare(a.loadPriority, b.loadPriority)
	})

	var errs []error
	for _, reg := range regs {
		if err := m.Load(ctx, reg); err != nil {
			m.logger.ErrorContext(ctx, "failed to load handler on startup",
				logger.Handler(reg.name),
				logger.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UnloadAll unloads every registration in reverse registration order.
func (m *Manager) UnloadAll(ctx context.Context) error {
	regs := m.Registrations()
	slices.Reverse(regs)

	var errs []error
	for _, reg := range regs {
		if err := m.Unload(ctx, reg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
