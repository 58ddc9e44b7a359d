package dispatcher

import (
	"maps"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/dmitrymomot/dispatchkit/core"
)

// dispatchRequest is the request layer installed by forward, include and
// error dispatches. It owns every dispatch.* attribute set during the
// dispatch and, for path based forwards, the request paths of the target.
type dispatchRequest struct {
	*core.RequestWrapper

	// paths replaces the wrapped request paths when non-nil.
	paths *PathAttrs
	// query is merged into the parameters of the wrapped request.
	query string

	mu    sync.RWMutex
	attrs map[string]any
	order []string
}

func newDispatchRequest(r core.Request) *dispatchRequest {
	return &dispatchRequest{
		RequestWrapper: core.NewContainerRequestWrapper(r),
		attrs:          make(map[string]any),
	}
}

func (r *dispatchRequest) setPaths(p *PathAttrs) { r.paths = p }

func (r *dispatchRequest) RequestURI() string {
	if r.paths != nil {
		return r.paths.RequestURI
	}
	return r.Wrapped().RequestURI()
}

func (r *dispatchRequest) ContextPath() string {
	if r.paths != nil {
		return r.paths.ContextPath
	}
	return r.Wrapped().ContextPath()
}

func (r *dispatchRequest) ServletPath() string {
	if r.paths != nil {
		return r.paths.ServletPath
	}
	return r.Wrapped().ServletPath()
}

func (r *dispatchRequest) PathInfo() string {
	if r.paths != nil {
		return r.paths.PathInfo
	}
	return r.Wrapped().PathInfo()
}

func (r *dispatchRequest) QueryString() string {
	if r.paths != nil && r.paths.QueryString != "" {
		return r.paths.QueryString
	}
	return r.Wrapped().QueryString()
}

// HTTP returns the wrapped transport request adjusted to the dispatch target:
// the target path for forwards and the merged query for dispatches that
// carry one.
func (r *dispatchRequest) HTTP() *http.Request {
	base := r.Wrapped().HTTP()
	if r.paths == nil && r.query == "" {
		return base
	}
	hr := new(http.Request)
	*hr = *base
	u := *base.URL
	if r.paths != nil {
		u.Path = r.paths.ContextPath + r.paths.ServletPath + r.paths.PathInfo
		u.RawPath = ""
	}
	if r.query != "" {
		u.RawQuery = mergeQuery(r.query, base.URL.RawQuery)
	}
	hr.URL = &u
	hr.RequestURI = u.RequestURI()
	return hr
}

func (r *dispatchRequest) Attribute(name string) any {
	if !isDispatchAttr(name) {
		return r.Wrapped().Attribute(name)
	}
	r.mu.RLock()
	v, ok := r.attrs[name]
	r.mu.RUnlock()
	if ok {
		return v
	}
	return r.Wrapped().Attribute(name)
}

func (r *dispatchRequest) SetAttribute(name string, value any) {
	if !isDispatchAttr(name) {
		r.Wrapped().SetAttribute(name, value)
		return
	}
	if value == nil {
		r.RemoveAttribute(name)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attrs[name]; !ok {
		r.order = append(r.order, name)
	}
	r.attrs[name] = value
}

func (r *dispatchRequest) RemoveAttribute(name string) {
	if !isDispatchAttr(name) {
		r.Wrapped().RemoveAttribute(name)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attrs, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
}

// AttributeNames lists the wrapped names followed by the names set by this
// dispatch.
func (r *dispatchRequest) AttributeNames() []string {
	names := r.Wrapped().AttributeNames()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.order {
		if !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	return names
}

func (r *dispatchRequest) setStrings(attrs map[string]string) {
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		if v := attrs[k]; v != "" {
			r.SetAttribute(k, v)
		}
	}
}

// mergeQuery combines two raw query strings. Values of add come before the
// values of base for the same name.
func mergeQuery(add, base string) string {
	merged, _ := url.ParseQuery(add)
	if merged == nil {
		merged = url.Values{}
	}
	old, _ := url.ParseQuery(base)
	for k, vs := range old {
		merged[k] = append(merged[k], vs...)
	}
	return merged.Encode()
}

// includeResponse is the response layer installed by include. Content is
// written through; status, headers and the other response metadata of the
// outer response cannot be changed.
type includeResponse struct {
	*core.ResponseWrapper
	header http.Header
}

func newIncludeResponse(w core.Response) *includeResponse {
	return &includeResponse{
		ResponseWrapper: core.NewContainerResponseWrapper(w),
		header:          w.Header().Clone(),
	}
}

// Header returns a detached copy of the outer headers. Changes are dropped.
func (w *includeResponse) Header() http.Header { return w.header }

func (w *includeResponse) WriteHeader(int)             {}
func (w *includeResponse) SetContentType(string)       {}
func (w *includeResponse) SetBufferSize(int)           {}
func (w *includeResponse) SetLocale(string)            {}
func (w *includeResponse) AddCookie(*http.Cookie)      {}
func (w *includeResponse) SendError(int, string) error { return nil }
func (w *includeResponse) Reset() error                { return nil }
func (w *includeResponse) Close() error                { return nil }
