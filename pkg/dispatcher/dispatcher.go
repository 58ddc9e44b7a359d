package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/dispatchkit/core"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatchtype"
	"github.com/dmitrymomot/dispatchkit/pkg/filterchain"
	"github.com/dmitrymomot/dispatchkit/pkg/instance"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/metrics"
	"github.com/dmitrymomot/dispatchkit/pkg/pattern"
)

// Invocation outcomes reported to metrics.
const (
	outcomeOK          = "ok"
	outcomeError       = "error"
	outcomeUnavailable = "unavailable"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithContextPath sets the path prefix the dispatcher is mounted under.
// It must be empty or start with "/".
func WithContextPath(path string) Option {
	if path != "" && !strings.HasPrefix(path, "/") {
		panic("WithContextPath: path must start with /")
	}
	return func(d *Dispatcher) { d.contextPath = strings.TrimSuffix(path, "/") }
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics records invocations in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = c }
}

// WithInstanceManager uses m instead of a manager created by New.
func WithInstanceManager(m *instance.Manager) Option {
	if m == nil {
		panic("WithInstanceManager: manager cannot be nil")
	}
	return func(d *Dispatcher) { d.manager = m }
}

// WithFilterRegistry uses r instead of a registry created by New.
func WithFilterRegistry(r *filterchain.Registry) Option {
	if r == nil {
		panic("WithFilterRegistry: registry cannot be nil")
	}
	return func(d *Dispatcher) { d.filters = r }
}

// WithErrorPage renders path through an error dispatch for responses that
// fail with status.
func WithErrorPage(status int, path string) Option {
	if status < 400 || status > 599 {
		panic("WithErrorPage: status must be a 4xx or 5xx code")
	}
	if !strings.HasPrefix(path, "/") {
		panic("WithErrorPage: path must start with /")
	}
	return func(d *Dispatcher) { d.errorPages[status] = path }
}

// Dispatcher routes requests to handlers and runs their filter chains.
// It holds every registry the engine needs; there is no global state.
type Dispatcher struct {
	contextPath string
	logger      *slog.Logger
	metrics     *metrics.Collector
	manager     *instance.Manager
	filters     *filterchain.Registry
	mapper      *pattern.Mapper
	errorPages  map[int]string
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:     logger.Noop(),
		mapper:     pattern.NewMapper(),
		errorPages: make(map[int]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.manager == nil {
		d.manager = instance.NewManager(instance.WithLogger(d.logger), instance.WithMetrics(d.metrics))
	}
	if d.filters == nil {
		d.filters = filterchain.NewRegistry(filterchain.WithLogger(d.logger))
	}
	d.logger = d.logger.With(logger.Component("dispatcher"))
	return d
}

// ContextPath returns the path prefix the dispatcher is mounted under.
func (d *Dispatcher) ContextPath() string { return d.contextPath }

// Manager returns the instance manager owning the handler registrations.
func (d *Dispatcher) Manager() *instance.Manager { return d.manager }

// Filters returns the filter registry.
func (d *Dispatcher) Filters() *filterchain.Registry { return d.filters }

// AddHandler registers a handler and maps it to patterns.
func (d *Dispatcher) AddHandler(reg *instance.Registration, patterns ...string) error {
	for _, p := range patterns {
		if err := pattern.Validate(p); err != nil {
			return err
		}
	}
	if err := d.manager.Register(reg); err != nil {
		return err
	}
	for _, p := range patterns {
		if err := d.mapper.Add(p, reg.Name()); err != nil {
			return err
		}
	}
	return nil
}

// AddFilter registers a filter.
func (d *Dispatcher) AddFilter(reg *filterchain.Registration) error {
	return d.filters.AddFilter(reg)
}

// AddFilterMapping appends a filter mapping.
func (d *Dispatcher) AddFilterMapping(m filterchain.Mapping) error {
	return d.filters.AddMapping(m)
}

// AddFilterMappingBefore inserts a filter mapping ahead of the appended ones.
func (d *Dispatcher) AddFilterMappingBefore(m filterchain.Mapping) error {
	return d.filters.AddMappingBefore(m)
}

// Start loads the handlers configured to load on startup.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.manager.LoadOnStartup(ctx)
}

// Shutdown unloads every handler and destroys every filter.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	return errors.Join(d.manager.UnloadAll(ctx), d.filters.Destroy())
}

// ServeHTTP handles a request arriving from the transport: it routes it,
// allocates the handler and runs the REQUEST filter chain.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := core.NewResponseFacade(w)
	req := core.NewRequestFacade(r.WithContext(WithContext(r.Context(), d)), d.contextPath)
	defer func() {
		if err := resp.Finish(); err != nil {
			d.logger.WarnContext(req.Context(), "failed to finish response", logger.Error(err))
		}
	}()

	if !d.inContext(r.URL.Path) {
		d.handleError(resp, req, errors.Join(core.ErrHandlerNotFound, errors.New(r.URL.Path)))
		return
	}
	path := req.RelativePath()
	route, ok := d.mapper.Resolve(path)
	if !ok {
		d.handleError(resp, req, errors.Join(core.ErrHandlerNotFound, errors.New(path)))
		return
	}
	reg, ok := d.manager.Registration(route.Name)
	if !ok {
		d.handleError(resp, req, errors.Join(core.ErrHandlerNotFound, errors.New(route.Name)))
		return
	}
	req.SetMapping(route.ServletPath, route.PathInfo)
	req.SetAttribute(AttrDispatchType, dispatchtype.Request)
	req.SetAttribute(AttrDispatchState, dispatchtype.Request)
	req.SetAttribute(AttrRequestPath, path)
	req.SetAttribute(AttrHandler, reg.Name())

	inst, err := d.allocate(req.Context(), reg, dispatchtype.Request)
	if err != nil {
		d.handleError(resp, req, err)
		return
	}
	err = d.invoke(resp, req, reg, inst, path, dispatchtype.Request)
	if err != nil {
		d.handleError(resp, req, err)
	}
}

func (d *Dispatcher) inContext(path string) bool {
	if d.contextPath == "" {
		return true
	}
	rest, ok := strings.CutPrefix(path, d.contextPath)
	return ok && (rest == "" || rest[0] == '/')
}

// allocate obtains an instance of reg for an invocation of type typ.
func (d *Dispatcher) allocate(ctx context.Context, reg *instance.Registration, typ dispatchtype.Type) (*instance.Instance, error) {
	inst, err := d.manager.Allocate(ctx, reg)
	if err != nil {
		outcome := outcomeError
		if errors.Is(err, core.ErrUnavailable) {
			outcome = outcomeUnavailable
		}
		d.metrics.Invocation(reg.Name(), typ.String(), outcome, 0)
		d.logger.WarnContext(ctx, "handler allocation failed",
			logger.Handler(reg.Name()),
			logger.DispatchType(typ),
			logger.Error(err),
		)
		return nil, err
	}
	return inst, nil
}

// invoke runs the filter chain of reg around inst and deallocates inst when
// it returns. A handler reporting itself unavailable takes its registration
// out of service.
func (d *Dispatcher) invoke(w core.Response, r core.Request, reg *instance.Registration, inst *instance.Instance, path string, typ dispatchtype.Type) (err error) {
	start := time.Now()
	defer func() {
		if derr := d.manager.Deallocate(reg, inst); derr != nil {
			d.logger.ErrorContext(r.Context(), "failed to deallocate handler instance",
				logger.Handler(reg.Name()),
				logger.Error(derr),
			)
		}
	}()

	filters := d.filters.Build(reg, path, typ)
	d.metrics.FilterChain(typ.String(), len(filters))
	d.logger.DebugContext(r.Context(), "invoking handler",
		logger.Handler(reg.Name()),
		logger.DispatchType(typ),
		logger.RequestPath(path),
		slog.Int("filters", len(filters)),
	)

	err = run(filterchain.New(filters, inst.Handler()), w, r)

	outcome := outcomeOK
	if ue, ok := core.AsUnavailable(err); ok {
		err = d.manager.Unavailable(reg, ue)
		outcome = outcomeUnavailable
	} else if err != nil {
		outcome = outcomeError
	}
	d.metrics.Invocation(reg.Name(), typ.String(), outcome, time.Since(start))
	return err
}

// run executes chain, converting a panic into core.ErrRuntimeFault.
func run(chain core.FilterChain, w core.Response, r core.Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = core.Fault(p)
		}
	}()
	return chain.DoFilter(w, r)
}

// handleError turns a failed REQUEST invocation into an error response,
// through the configured error page when there is one.
func (d *Dispatcher) handleError(w *core.ResponseFacade, r *core.RequestFacade, err error) {
	status := core.StatusOf(err)
	ctx := r.Context()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		d.logger.ErrorContext(ctx, "request failed",
			logger.RequestPath(r.RelativePath()),
			slog.Int("status", status),
			logger.Error(err),
		)
	} else {
		d.logger.DebugContext(ctx, "request rejected",
			logger.RequestPath(r.RelativePath()),
			slog.Int("status", status),
			logger.Error(err),
		)
	}

	if w.Committed() {
		return
	}
	setRetryAfter(w, err)

	if _, ok := d.errorPages[status]; ok {
		perr := d.ErrorDispatch(w, r, status, err)
		if perr == nil {
			return
		}
		d.logger.ErrorContext(ctx, "error page failed", slog.Int("status", status), logger.Error(perr))
		if w.Committed() {
			return
		}
	}
	if serr := w.SendError(status, errorMessage(status, err)); serr != nil {
		d.logger.WarnContext(ctx, "failed to send error response", logger.Error(serr))
	}
}

// setRetryAfter sets the Retry-After header for a temporary unavailability.
func setRetryAfter(w core.Response, err error) {
	ue, ok := core.AsUnavailable(err)
	if !ok || ue.Permanent || ue.Seconds <= 0 {
		return
	}
	w.Header().Set("Retry-After", strconv.Itoa(ue.Seconds))
}

func errorMessage(status int, err error) string {
	var httpErr core.HTTPError
	if errors.As(err, &httpErr) && httpErr.Key != "" {
		return httpErr.Key
	}
	return http.StatusText(status)
}
