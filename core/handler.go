package core

import (
	"net/http"
	"slices"
)

// Param is a single init parameter. Order of registration is preserved.
type Param struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Config is handed to Handler.Init and Filter.Init.
type Config struct {
	name   string
	params []Param
}

// NewConfig creates a Config with the given name and ordered init parameters.
func NewConfig(name string, params ...Param) Config {
	return Config{name: name, params: slices.Clone(params)}
}

// Name returns the registration name.
func (c Config) Name() string { return c.name }

// InitParameter returns the value of the named init parameter.
func (c Config) InitParameter(name string) (string, bool) {
	for _, p := range c.params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// InitParameterNames returns parameter names in registration order.
func (c Config) InitParameterNames() []string {
	names := make([]string, 0, len(c.params))
	for _, p := range c.params {
		names = append(names, p.Name)
	}
	return names
}

// Handler processes a request selected by routing.
// Init runs once per instance before the first Serve; Destroy runs once when
// the instance is unloaded.
type Handler interface {
	Init(cfg Config) error
	Serve(w Response, r Request) error
	Destroy() error
}

// HandlerFunc adapts a function to Handler with no-op Init and Destroy.
type HandlerFunc func(w Response, r Request) error

func (f HandlerFunc) Init(Config) error                 { return nil }
func (f HandlerFunc) Serve(w Response, r Request) error { return f(w, r) }
func (f HandlerFunc) Destroy() error                    { return nil }

// FromHTTP adapts a net/http handler. The Response is passed as the
// http.ResponseWriter and the request as seen through every wrapper layer.
func FromHTTP(h http.Handler) Handler {
	return HandlerFunc(func(w Response, r Request) error {
		h.ServeHTTP(w, r.HTTP())
		return nil
	})
}

// SingleInstancePerInvocation marks handlers that must not be shared between
// concurrent invocations. Embed SingleInstance to satisfy it.
type SingleInstancePerInvocation interface {
	singleInstancePerInvocation()
}

// SingleInstance is embedded by handler types that are served from a pool,
// one instance per concurrent invocation.
type SingleInstance struct{}

func (SingleInstance) singleInstancePerInvocation() {}

// IsSingleInstance reports whether h requires a dedicated instance per invocation.
func IsSingleInstance(h Handler) bool {
	_, ok := h.(SingleInstancePerInvocation)
	return ok
}

// FilterChain invokes the rest of a chain: the next filter or the target handler.
type FilterChain interface {
	DoFilter(w Response, r Request) error
}

// ChainFunc adapts a function to FilterChain.
type ChainFunc func(w Response, r Request) error

func (f ChainFunc) DoFilter(w Response, r Request) error { return f(w, r) }

// Filter intercepts a handler invocation. It decides whether to call next and
// may pass wrapped requests or responses down the chain.
type Filter interface {
	Init(cfg Config) error
	DoFilter(w Response, r Request, next FilterChain) error
	Destroy() error
}

// FilterFunc adapts a function to Filter with no-op Init and Destroy.
type FilterFunc func(w Response, r Request, next FilterChain) error

func (f FilterFunc) Init(Config) error { return nil }
func (f FilterFunc) DoFilter(w Response, r Request, next FilterChain) error {
	return f(w, r, next)
}
func (f FilterFunc) Destroy() error { return nil }

// FromMiddleware adapts a net/http middleware into a Filter. The rest of the
// chain runs inside the middleware's next handler; its error is returned.
func FromMiddleware(mw func(http.Handler) http.Handler) Filter {
	return FilterFunc(func(w Response, r Request, next FilterChain) error {
		var chainErr error
		called := false
		inner := http.HandlerFunc(func(_ http.ResponseWriter, hr *http.Request) {
			called = true
			if hr.Context() != r.Context() {
				r.SetContext(hr.Context())
			}
			chainErr = next.DoFilter(w, r)
		})
		mw(inner).ServeHTTP(w, r.HTTP())
		if !called {
			return nil
		}
		return chainErr
	})
}
