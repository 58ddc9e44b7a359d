package core

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// Token identifies one wrapper layer. Two layers never share a token.
type Token struct{ id uuid.UUID }

// NewToken returns a fresh token.
func NewToken() Token { return Token{id: uuid.New()} }

func (t Token) String() string { return t.id.String() }

// Layer is one link of a wrapper chain.
type Layer[T any] interface {
	Token() Token
	Wrapped() T
	SetWrapped(T)
}

// containerLayer is implemented by layers the engine installs itself.
// Insertion stops above them so engine layers stay below user layers.
type containerLayer interface {
	ContainerLayer() bool
}

func isContainerLayer(v any) bool {
	c, ok := v.(containerLayer)
	return ok && c.ContainerLayer()
}

// insert places layer directly below the user-installed layers of outer,
// that is above the first container layer or the facade. It returns the new
// outermost value.
func insert[T any](outer T, layer Layer[T]) T {
	var prev Layer[T]
	cur := outer
	for {
		l, ok := any(cur).(Layer[T])
		if !ok || isContainerLayer(cur) {
			break
		}
		prev = l
		cur = l.Wrapped()
	}
	layer.SetWrapped(cur)
	if prev == nil {
		return any(layer).(T)
	}
	prev.SetWrapped(any(layer).(T))
	return outer
}

// remove splices the layer carrying tok out of the chain starting at outer.
// Layers are compared by token only. Unknown tokens leave the chain unchanged.
func remove[T any](outer T, tok Token) T {
	var prev Layer[T]
	cur := outer
	for {
		l, ok := any(cur).(Layer[T])
		if !ok {
			return outer
		}
		if l.Token() == tok {
			next := l.Wrapped()
			if prev == nil {
				return next
			}
			prev.SetWrapped(next)
			return outer
		}
		prev = l
		cur = l.Wrapped()
	}
}

// RequestLayer is a Request that is also a wrapper layer.
type RequestLayer interface {
	Request
	Layer[Request]
}

// ResponseLayer is a Response that is also a wrapper layer.
type ResponseLayer interface {
	Response
	Layer[Response]
}

// InsertRequest installs w below the user layers of outer and returns the new outermost request.
func InsertRequest(outer Request, w RequestLayer) Request { return insert[Request](outer, w) }

// RemoveRequest removes the layer identified by tok and returns the new outermost request.
func RemoveRequest(outer Request, tok Token) Request { return remove(outer, tok) }

// InsertResponse installs w below the user layers of outer and returns the new outermost response.
func InsertResponse(outer Response, w ResponseLayer) Response { return insert[Response](outer, w) }

// RemoveResponse removes the layer identified by tok and returns the new outermost response.
func RemoveResponse(outer Response, tok Token) Response { return remove(outer, tok) }

// ContainsLayer reports whether a layer with tok is reachable from outer.
func ContainsLayer[T any](outer T, tok Token) bool {
	cur := outer
	for {
		l, ok := any(cur).(Layer[T])
		if !ok {
			return false
		}
		if l.Token() == tok {
			return true
		}
		cur = l.Wrapped()
	}
}

// RequestWrapper delegates every Request call to the wrapped request.
// Embed it and override the methods to change.
type RequestWrapper struct {
	token     Token
	req       Request
	container bool
}

// NewRequestWrapper wraps r in a new user layer.
func NewRequestWrapper(r Request) *RequestWrapper {
	return &RequestWrapper{token: NewToken(), req: r}
}

// NewContainerRequestWrapper wraps r in a layer owned by the engine.
func NewContainerRequestWrapper(r Request) *RequestWrapper {
	return &RequestWrapper{token: NewToken(), req: r, container: true}
}

func (w *RequestWrapper) Token() Token         { return w.token }
func (w *RequestWrapper) Wrapped() Request     { return w.req }
func (w *RequestWrapper) SetWrapped(r Request) { w.req = r }
func (w *RequestWrapper) ContainerLayer() bool { return w.container }

func (w *RequestWrapper) HTTP() *http.Request             { return w.req.HTTP() }
func (w *RequestWrapper) Context() context.Context        { return w.req.Context() }
func (w *RequestWrapper) SetContext(ctx context.Context)  { w.req.SetContext(ctx) }
func (w *RequestWrapper) Method() string                  { return w.req.Method() }
func (w *RequestWrapper) RequestURI() string              { return w.req.RequestURI() }
func (w *RequestWrapper) ContextPath() string             { return w.req.ContextPath() }
func (w *RequestWrapper) ServletPath() string             { return w.req.ServletPath() }
func (w *RequestWrapper) PathInfo() string                { return w.req.PathInfo() }
func (w *RequestWrapper) QueryString() string             { return w.req.QueryString() }
func (w *RequestWrapper) Attribute(name string) any       { return w.req.Attribute(name) }
func (w *RequestWrapper) SetAttribute(name string, v any) { w.req.SetAttribute(name, v) }
func (w *RequestWrapper) RemoveAttribute(name string)     { w.req.RemoveAttribute(name) }
func (w *RequestWrapper) AttributeNames() []string        { return w.req.AttributeNames() }

// ResponseWrapper delegates every Response call to the wrapped response.
// Embed it and override the methods to change.
type ResponseWrapper struct {
	token     Token
	resp      Response
	container bool
}

// NewResponseWrapper wraps r in a new user layer.
func NewResponseWrapper(r Response) *ResponseWrapper {
	return &ResponseWrapper{token: NewToken(), resp: r}
}

// NewContainerResponseWrapper wraps r in a layer owned by the engine.
func NewContainerResponseWrapper(r Response) *ResponseWrapper {
	return &ResponseWrapper{token: NewToken(), resp: r, container: true}
}

func (w *ResponseWrapper) Token() Token          { return w.token }
func (w *ResponseWrapper) Wrapped() Response     { return w.resp }
func (w *ResponseWrapper) SetWrapped(r Response) { w.resp = r }
func (w *ResponseWrapper) ContainerLayer() bool  { return w.container }

func (w *ResponseWrapper) Header() http.Header                  { return w.resp.Header() }
func (w *ResponseWrapper) Write(p []byte) (int, error)          { return w.resp.Write(p) }
func (w *ResponseWrapper) WriteHeader(code int)                 { w.resp.WriteHeader(code) }
func (w *ResponseWrapper) Status() int                          { return w.resp.Status() }
func (w *ResponseWrapper) SetContentType(ct string)             { w.resp.SetContentType(ct) }
func (w *ResponseWrapper) SetBufferSize(size int)               { w.resp.SetBufferSize(size) }
func (w *ResponseWrapper) BufferSize() int                      { return w.resp.BufferSize() }
func (w *ResponseWrapper) SetLocale(tag string)                 { w.resp.SetLocale(tag) }
func (w *ResponseWrapper) AddCookie(c *http.Cookie)             { w.resp.AddCookie(c) }
func (w *ResponseWrapper) SendError(code int, msg string) error { return w.resp.SendError(code, msg) }
func (w *ResponseWrapper) Committed() bool                      { return w.resp.Committed() }
func (w *ResponseWrapper) ResetBuffer() error                   { return w.resp.ResetBuffer() }
func (w *ResponseWrapper) Reset() error                         { return w.resp.Reset() }
func (w *ResponseWrapper) Flush() error                         { return w.resp.Flush() }

// Close closes the wrapped response when it supports closing.
func (w *ResponseWrapper) Close() error {
	if c, ok := w.resp.(io.Closer); ok {
		return c.Close()
	}
	return w.resp.Flush()
}
