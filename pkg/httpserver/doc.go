// Package httpserver runs an http.Handler with graceful shutdown.
//
// Run blocks until its context is cancelled or the process receives SIGINT
// or SIGTERM. Shutdown then stops the listener, waits for in-flight requests
// and drains every registered Drainer inside the shutdown timeout. A
// dispatcher is registered as a Drainer so its handlers are unloaded only
// after the last request returned:
//
//	d := dispatcher.New(dispatcher.WithLogger(log))
//	srv := httpserver.NewFromConfig(cfg.HTTP,
//		httpserver.WithLogger(log),
//		httpserver.WithDrainer(d),
//	)
//	if err := srv.Run(ctx, d); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// LivenessHandler and ReadinessHandler serve the usual probes.
//
// Run wraps listen errors with ErrStart; Shutdown wraps shutdown and drain
// errors with ErrShutdown.
package httpserver
