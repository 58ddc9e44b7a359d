package dispatcher

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/dmitrymomot/dispatchkit/core"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatchtype"
	"github.com/dmitrymomot/dispatchkit/pkg/instance"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
)

// RequestDispatcher forwards to or includes one target handler.
// Obtain it with Dispatcher.Named or Dispatcher.Path.
type RequestDispatcher struct {
	d   *Dispatcher
	reg *instance.Registration

	// named is set for dispatchers resolved by handler name.
	named string

	// path based targets
	path        string
	servletPath string
	pathInfo    string
	query       string
}

// Named returns a dispatcher for the handler registered under name.
// Named dispatches keep the request paths of the caller.
func (d *Dispatcher) Named(name string) (*RequestDispatcher, error) {
	reg, ok := d.manager.Registration(name)
	if !ok {
		return nil, errors.Join(core.ErrHandlerNotFound, fmt.Errorf("no handler named %q", name))
	}
	return &RequestDispatcher{d: d, reg: reg, named: name}, nil
}

// Path returns a dispatcher for the handler mapped to a context-relative
// path, optionally followed by a query string.
func (d *Dispatcher) Path(target string) (*RequestDispatcher, error) {
	p, query, _ := strings.Cut(target, "?")
	if !strings.HasPrefix(p, "/") {
		return nil, errors.Join(core.ErrInvalidTarget, fmt.Errorf("path %q must start with /", target))
	}
	p, ok := normalize(p)
	if !ok {
		return nil, errors.Join(core.ErrInvalidTarget, fmt.Errorf("path %q leaves the context", target))
	}
	route, ok := d.mapper.Resolve(p)
	if !ok {
		return nil, errors.Join(core.ErrHandlerNotFound, fmt.Errorf("no handler mapped to %q", p))
	}
	reg, ok := d.manager.Registration(route.Name)
	if !ok {
		return nil, errors.Join(core.ErrHandlerNotFound, fmt.Errorf("no handler named %q", route.Name))
	}
	return &RequestDispatcher{
		d:           d,
		reg:         reg,
		path:        p,
		servletPath: route.ServletPath,
		pathInfo:    route.PathInfo,
		query:       query,
	}, nil
}

// Handler returns the name of the target handler.
func (rd *RequestDispatcher) Handler() string { return rd.reg.Name() }

// Forward hands the request over to the target. The response must not be
// committed; buffered output is discarded. After the target returns without
// error the response is finished and accepts no more output.
//
// A path based forward exposes the target paths through r and records the
// caller paths in the dispatch.forward.* attributes, unless an earlier
// forward already recorded them.
func (rd *RequestDispatcher) Forward(w core.Response, r core.Request) error {
	return rd.forward(w, r, dispatchtype.Forward, nil)
}

func (rd *RequestDispatcher) forward(w core.Response, r core.Request, typ dispatchtype.Type, info *ErrorInfo) error {
	if w.Committed() {
		return core.ErrResponseCommitted
	}
	if err := w.ResetBuffer(); err != nil {
		return errors.Join(core.ErrResponseCommitted, err)
	}

	if err := rd.forwardWrapped(w, r, typ, info); err != nil {
		return err
	}

	if err := finish(w); err != nil {
		rd.d.logger.WarnContext(r.Context(), "failed to finish forwarded response",
			logger.Handler(rd.reg.Name()),
			logger.Error(err),
		)
		return err
	}
	return nil
}

func (rd *RequestDispatcher) forwardWrapped(w core.Response, r core.Request, typ dispatchtype.Type, info *ErrorInfo) error {
	frame := rd.frame(r, typ)
	frame.Error = info

	dreq := newDispatchRequest(r)
	if rd.named == "" {
		if r.Attribute(AttrForwardRequestURI) == nil {
			frame.Forward = &PathAttrs{
				RequestURI:  r.RequestURI(),
				ContextPath: r.ContextPath(),
				ServletPath: r.ServletPath(),
				PathInfo:    r.PathInfo(),
				QueryString: r.QueryString(),
			}
			dreq.setStrings(forwardAttrs(frame.Forward))
		}
		dreq.setPaths(rd.target())
		dreq.query = rd.query
	}
	install(dreq, frame)

	req := core.InsertRequest(r, dreq)
	defer core.RemoveRequest(req, dreq.Token())

	fresp := core.NewContainerResponseWrapper(w)
	resp := core.InsertResponse(w, fresp)
	defer core.RemoveResponse(resp, fresp.Token())

	return rd.d.dispatch(resp, req, rd.reg, frame)
}

// Include runs the target and appends its output to the response. The target
// cannot change the status, headers or other metadata of the response.
//
// A path based include records the target paths in the dispatch.include.*
// attributes; the request paths stay those of the caller. A named include
// sets dispatch.named.
func (rd *RequestDispatcher) Include(w core.Response, r core.Request) error {
	frame := rd.frame(r, dispatchtype.Include)

	dreq := newDispatchRequest(r)
	if rd.named != "" {
		dreq.SetAttribute(AttrNamed, rd.named)
	} else {
		frame.Include = rd.target()
		dreq.setStrings(includeAttrs(frame.Include))
		dreq.query = rd.query
	}
	install(dreq, frame)

	req := core.InsertRequest(r, dreq)
	defer core.RemoveRequest(req, dreq.Token())

	iresp := newIncludeResponse(w)
	resp := core.InsertResponse(w, iresp)
	defer core.RemoveResponse(resp, iresp.Token())

	return rd.d.dispatch(resp, req, rd.reg, frame)
}

func (rd *RequestDispatcher) frame(r core.Request, typ dispatchtype.Type) *Frame {
	prev := FrameOf(r)
	state := dispatchtype.Request
	if prev != nil {
		state = prev.State
	}
	return &Frame{
		Type:        typ,
		State:       state.With(typ),
		Handler:     rd.reg.Name(),
		RequestPath: rd.path,
		Named:       rd.named,
		Prev:        prev,
	}
}

// target returns the request paths of a path based target.
func (rd *RequestDispatcher) target() *PathAttrs {
	ctxPath := rd.d.contextPath
	return &PathAttrs{
		RequestURI:  (&url.URL{Path: ctxPath + rd.path}).EscapedPath(),
		ContextPath: ctxPath,
		ServletPath: rd.servletPath,
		PathInfo:    rd.pathInfo,
		QueryString: rd.query,
	}
}

func install(r *dispatchRequest, f *Frame) {
	r.SetAttribute(AttrDispatchType, f.Type)
	r.SetAttribute(AttrDispatchState, f.State)
	r.SetAttribute(AttrRequestPath, f.RequestPath)
	r.SetAttribute(AttrHandler, f.Handler)
	r.SetAttribute(AttrFrame, f)
	if e := f.Error; e != nil {
		r.SetAttribute(AttrErrorStatusCode, e.Status)
		r.setStrings(map[string]string{
			AttrErrorMessage:    e.Message,
			AttrErrorRequestURI: e.RequestURI,
			AttrErrorHandler:    e.Handler,
		})
		if e.Err != nil {
			r.SetAttribute(AttrErrorException, e.Err)
		}
	}
}

// dispatch allocates the target and runs its chain. An unavailable target
// produces a 503 response instead of running the chain.
func (d *Dispatcher) dispatch(w core.Response, r core.Request, reg *instance.Registration, f *Frame) error {
	inst, err := d.allocate(r.Context(), reg, f.Type)
	if err != nil {
		if _, ok := core.AsUnavailable(err); !ok {
			return err
		}
		setRetryAfter(w, err)
		if serr := w.SendError(http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable)); serr != nil {
			d.logger.WarnContext(r.Context(), "failed to send unavailable response", logger.Error(serr))
		}
		return nil
	}
	return d.invoke(w, r, reg, inst, f.RequestPath, f.Type)
}

// ErrorDispatch renders the error page configured for status with dispatch
// type ERROR. The error is described by the dispatch.error.* attributes.
func (d *Dispatcher) ErrorDispatch(w core.Response, r core.Request, status int, cause error) error {
	page, ok := d.errorPages[status]
	if !ok {
		return errors.Join(ErrNoErrorPage, fmt.Errorf("status %d", status))
	}
	rd, err := d.Path(page)
	if err != nil {
		return err
	}
	if w.Committed() {
		return core.ErrResponseCommitted
	}

	info := &ErrorInfo{
		Status:     status,
		Message:    errorMessage(status, cause),
		RequestURI: r.RequestURI(),
		Err:        cause,
	}
	if name, ok := r.Attribute(AttrHandler).(string); ok {
		info.Handler = name
	}
	w.WriteHeader(status)
	return rd.forward(w, r, dispatchtype.Error, info)
}

// finish closes the response after a forward. The transport response is
// finished directly; a response wrapped by caller code is closed through
// its wrappers.
func finish(w core.Response) error {
	if f, ok := w.(*core.ResponseFacade); ok {
		return f.Finish()
	}
	if c, ok := w.(io.Closer); ok {
		return c.Close()
	}
	return w.Flush()
}

// normalize cleans a context-relative path. It reports false when ".."
// segments would leave the context.
func normalize(p string) (string, bool) {
	depth := 0
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return "", false
			}
		default:
			depth++
		}
	}
	clean := path.Clean(p)
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}
	return clean, true
}
