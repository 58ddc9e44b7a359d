// Command dispatchd serves the handlers and filters of a descriptor through
// the dispatch engine.
package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrymomot/dispatchkit/pkg/config"
	"github.com/dmitrymomot/dispatchkit/pkg/descriptor"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatcher"
	"github.com/dmitrymomot/dispatchkit/pkg/httpserver"
	"github.com/dmitrymomot/dispatchkit/pkg/instance"
	"github.com/dmitrymomot/dispatchkit/pkg/logger"
	"github.com/dmitrymomot/dispatchkit/pkg/metrics"
	"github.com/dmitrymomot/dispatchkit/pkg/requestid"
)

//go:embed dispatch.yaml
var defaultDescriptor []byte

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return err
	}
	logOpts, err := cfg.loggerOptions()
	if err != nil {
		return err
	}
	log := logger.New(append(logOpts, logger.WithContextExtractors(requestid.LoggerExtractor()))...)
	logger.SetAsDefault(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d, err := build(cfg, log, reg)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		log.ErrorContext(ctx, "handlers failed to load on startup", logger.Error(err))
		return errors.Join(err, d.Shutdown(ctx))
	}

	srv := httpserver.NewFromConfig(cfg.HTTP,
		httpserver.WithLogger(log),
		httpserver.WithDrainer(d),
	)
	return srv.Run(ctx, newRouter(d, reg, log))
}

// build creates the dispatcher described by the configured descriptor.
func build(cfg Config, log *slog.Logger, reg prometheus.Registerer) (*dispatcher.Dispatcher, error) {
	doc, err := loadDescriptor(cfg.Descriptor)
	if err != nil {
		return nil, err
	}

	m, err := metrics.New(reg, metrics.DefaultConfig(cfg.MetricsNamespace))
	if err != nil {
		return nil, err
	}
	manager := instance.NewManager(
		instance.WithLogger(log),
		instance.WithMetrics(m),
		instance.WithUnloadDelay(cfg.UnloadDelay),
		instance.WithUnloadRetries(cfg.UnloadRetries),
		instance.WithMaxInstances(cfg.MaxInstances),
	)

	opts := append(doc.Options(),
		dispatcher.WithLogger(log),
		dispatcher.WithMetrics(m),
		dispatcher.WithInstanceManager(manager),
	)
	if cfg.ContextPath != "" {
		opts = append(opts, dispatcher.WithContextPath(cfg.ContextPath))
	}
	d := dispatcher.New(opts...)
	if err := descriptor.Apply(d, doc, newCatalog(log)); err != nil {
		return nil, err
	}
	log.Info("dispatcher configured",
		slog.String("context_path", d.ContextPath()),
		slog.Int("handlers", len(manager.Registrations())),
		slog.Int("filter_mappings", len(d.Filters().Mappings())),
	)
	return d, nil
}

func loadDescriptor(path string) (*descriptor.Document, error) {
	if path == "" {
		return descriptor.Parse(defaultDescriptor)
	}
	return descriptor.Load(path)
}
