package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/dispatchkit/pkg/dispatcher"
	"github.com/dmitrymomot/dispatchkit/pkg/httpserver"
)

// newRouter serves the probes and metrics itself and hands every other
// request to the dispatcher.
func newRouter(d *dispatcher.Dispatcher, gatherer prometheus.Gatherer, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(log, httpserver.Check{
		Name: "handlers",
		Func: eagerHandlersAvailable(d),
	}))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Handle("/*", d)
	return r
}

// eagerHandlersAvailable fails while a handler loaded on startup is
// permanently out of service.
func eagerHandlersAvailable(d *dispatcher.Dispatcher) func(context.Context) error {
	return func(context.Context) error {
		var errs []error
		for _, reg := range d.Manager().Registrations() {
			if reg.LoadPriority() < 0 {
				continue
			}
			if _, permanent := reg.AvailableUntil(); permanent {
				errs = append(errs, fmt.Errorf("handler %q is out of service", reg.Name()))
			}
		}
		return errors.Join(errs...)
	}
}
