package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/dispatchkit/core"
	"github.com/dmitrymomot/dispatchkit/pkg/descriptor"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatcher"
	"github.com/dmitrymomot/dispatchkit/pkg/filterchain"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/requestid"
)

// newCatalog lists every handler and filter a descriptor may instantiate.
func newCatalog(log *slog.Logger) *descriptor.Catalog {
	return descriptor.NewCatalog().
		Handler("greeting", func() (core.Handler, error) { return &greeting{}, nil }).
		Handler("layout", func() (core.Handler, error) { return &layout{}, nil }).
		Handler("fragment", func() (core.Handler, error) { return &fragment{}, nil }).
		Handler("forward", func() (core.Handler, error) { return &forward{}, nil }).
		Handler("counter", func() (core.Handler, error) { return &counter{}, nil }).
		Handler("maintenance", func() (core.Handler, error) { return &maintenance{}, nil }).
		Handler("error-page", func() (core.Handler, error) { return core.HandlerFunc(errorPage), nil }).
		Filter("request-id", filterchain.Static(requestid.Filter())).
		Filter("access-log", func() (core.Filter, error) { return &accessLog{log: log}, nil }).
		Filter("served-by", func() (core.Filter, error) { return &servedBy{}, nil })
}

func param(cfg core.Config, name, def string) string {
	if v, ok := cfg.InitParameter(name); ok {
		return v
	}
	return def
}

// greeting greets the name query parameter in the language of the request.
type greeting struct {
	text string
}

func (h *greeting) Init(cfg core.Config) error {
	h.text = param(cfg, "greeting", "Hello")
	return nil
}

func (h *greeting) Serve(w core.Response, r core.Request) error {
	name := r.HTTP().URL.Query().Get("name")
	if name == "" {
		name = "world"
	}
	if lang := r.HTTP().Header.Get("Accept-Language"); lang != "" {
		w.SetLocale(strings.TrimSpace(strings.Split(lang, ",")[0]))
	}
	w.SetContentType("text/plain; charset=utf-8")
	_, err := fmt.Fprintf(w, "%s, %s!\n", h.text, name)
	return err
}

func (h *greeting) Destroy() error { return nil }

// layout wraps its own body between a header included by path and a
// footer included by name.
type layout struct {
	header string
	footer string
}

func (h *layout) Init(cfg core.Config) error {
	h.header = param(cfg, "header", "")
	h.footer = param(cfg, "footer", "")
	return nil
}

func (h *layout) Serve(w core.Response, r core.Request) error {
	d := dispatcher.FromContext(r.Context())
	if h.header != "" {
		rd, err := d.Path(h.header)
		if err != nil {
			return err
		}
		if err := rd.Include(w, r); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "page %s\n", r.PathInfo()); err != nil {
		return err
	}
	if h.footer == "" {
		return nil
	}
	rd, err := d.Named(h.footer)
	if err != nil {
		return err
	}
	return rd.Include(w, r)
}

func (h *layout) Destroy() error { return nil }

type fragment struct {
	text string
}

func (h *fragment) Init(cfg core.Config) error {
	h.text = param(cfg, "text", "")
	return nil
}

func (h *fragment) Serve(w core.Response, _ core.Request) error {
	_, err := fmt.Fprintln(w, h.text)
	return err
}

func (h *fragment) Destroy() error { return nil }

// forward hands every request over to a fixed target.
type forward struct {
	target string
}

func (h *forward) Init(cfg core.Config) error {
	h.target = param(cfg, "target", "")
	if h.target == "" {
		return fmt.Errorf("forward: target init parameter is required")
	}
	return nil
}

func (h *forward) Serve(w core.Response, r core.Request) error {
	rd, err := dispatcher.FromContext(r.Context()).Path(h.target)
	if err != nil {
		return err
	}
	return rd.Forward(w, r)
}

func (h *forward) Destroy() error { return nil }

// counter keeps unsynchronized per-instance state, so it is pooled.
type counter struct {
	core.SingleInstance
	served int
}

func (h *counter) Init(core.Config) error { return nil }

func (h *counter) Serve(w core.Response, r core.Request) error {
	h.served++
	_, err := fmt.Fprintf(w, "%s served %d times by this instance\n", r.ServletPath(), h.served)
	return err
}

func (h *counter) Destroy() error { return nil }

// maintenance takes itself out of service for a configured number of seconds
// whenever it is invoked.
type maintenance struct {
	seconds int
}

func (h *maintenance) Init(cfg core.Config) error {
	n, err := strconv.Atoi(param(cfg, "seconds", "60"))
	if err != nil {
		return fmt.Errorf("maintenance: seconds: %w", err)
	}
	h.seconds = n
	return nil
}

func (h *maintenance) Serve(core.Response, core.Request) error {
	return core.Unavailable(h.seconds)
}

func (h *maintenance) Destroy() error { return nil }

func errorPage(w core.Response, r core.Request) error {
	w.SetContentType("text/plain; charset=utf-8")
	_, err := fmt.Fprintf(w, "error %v at %v (%v)\n",
		r.Attribute(dispatcher.AttrErrorStatusCode),
		r.Attribute(dispatcher.AttrErrorRequestURI),
		r.Attribute(dispatcher.AttrErrorMessage),
	)
	return err
}

type accessLog struct {
	log *slog.Logger
}

func (f *accessLog) Init(core.Config) error { return nil }

func (f *accessLog) DoFilter(w core.Response, r core.Request, next core.FilterChain) error {
	start := time.Now()
	err := next.DoFilter(w, r)
	attrs := []slog.Attr{
		slog.String("method", r.Method()),
		slog.String("uri", r.RequestURI()),
		slog.Int("status", w.Status()),
		logger.Duration(time.Since(start)),
	}
	if frame := dispatcher.FrameOf(r); frame != nil {
		attrs = append(attrs, logger.DispatchType(frame.Type), logger.Handler(frame.Handler))
	} else if name, ok := r.Attribute(dispatcher.AttrHandler).(string); ok {
		attrs = append(attrs, logger.Handler(name))
	}
	if err != nil {
		attrs = append(attrs, logger.Error(err))
	}
	f.log.LogAttrs(r.Context(), slog.LevelInfo, "dispatch", attrs...)
	return err
}

func (f *accessLog) Destroy() error { return nil }

// servedBy sets a response header through a plain net/http middleware.
type servedBy struct {
	core.Filter
}

func (f *servedBy) Init(cfg core.Config) error {
	f.Filter = core.FromMiddleware(middleware.SetHeader("X-Served-By", param(cfg, "value", "dispatchd")))
	return nil
}

func (f *servedBy) Destroy() error { return nil }
