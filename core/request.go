package core

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
)

// Request is the inbound request as seen by handlers and filters.
//
// RequestURI includes the context path and is not decoded. ServletPath and
// PathInfo split the context-relative path according to the mapping that
// selected the handler.
type Request interface {
	HTTP() *http.Request
	Context() context.Context
	SetContext(ctx context.Context)
	Method() string
	RequestURI() string
	ContextPath() string
	ServletPath() string
	PathInfo() string
	QueryString() string
	Attribute(name string) any
	SetAttribute(name string, value any)
	RemoveAttribute(name string)
	AttributeNames() []string
}

// RequestFacade adapts a transport *http.Request into a Request.
// It is the innermost layer of every wrapper chain.
type RequestFacade struct {
	req         *http.Request
	contextPath string
	servletPath string
	pathInfo    string

	mu    sync.RWMutex
	attrs map[string]any
	order []string
}

// NewRequestFacade creates a facade for r served under contextPath.
// contextPath is "" for the root context or starts with "/" and has no trailing slash.
func NewRequestFacade(r *http.Request, contextPath string) *RequestFacade {
	return &RequestFacade{
		req:         r,
		contextPath: strings.TrimSuffix(contextPath, "/"),
		attrs:       make(map[string]any),
	}
}

// SetMapping records the servlet path and path info selected by routing.
func (f *RequestFacade) SetMapping(servletPath, pathInfo string) {
	f.servletPath = servletPath
	f.pathInfo = pathInfo
}

// RelativePath returns the decoded request path with the context path removed.
func (f *RequestFacade) RelativePath() string {
	p := f.req.URL.Path
	if f.contextPath != "" {
		p = strings.TrimPrefix(p, f.contextPath)
	}
	if p == "" {
		return "/"
	}
	return p
}

func (f *RequestFacade) HTTP() *http.Request            { return f.req }
func (f *RequestFacade) Context() context.Context       { return f.req.Context() }
func (f *RequestFacade) Method() string                 { return f.req.Method }
func (f *RequestFacade) ContextPath() string            { return f.contextPath }
func (f *RequestFacade) ServletPath() string            { return f.servletPath }
func (f *RequestFacade) PathInfo() string               { return f.pathInfo }
func (f *RequestFacade) QueryString() string            { return f.req.URL.RawQuery }
func (f *RequestFacade) SetContext(ctx context.Context) { f.req = f.req.WithContext(ctx) }

func (f *RequestFacade) RequestURI() string {
	return f.req.URL.EscapedPath()
}

func (f *RequestFacade) Attribute(name string) any {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.attrs[name]
}

// SetAttribute stores value under name. A nil value removes the attribute.
func (f *RequestFacade) SetAttribute(name string, value any) {
	if value == nil {
		f.RemoveAttribute(name)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.attrs[name]; !ok {
		f.order = append(f.order, name)
	}
	f.attrs[name] = value
}

func (f *RequestFacade) RemoveAttribute(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.attrs[name]; !ok {
		return
	}
	delete(f.attrs, name)
	f.order = slices.DeleteFunc(f.order, func(n string) bool { return n == name })
}

// AttributeNames returns attribute names in insertion order.
func (f *RequestFacade) AttributeNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.order)
}
