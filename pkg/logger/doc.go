// Package logger builds *slog.Logger values with functional options and
// provides attribute helpers that keep key names consistent across the
// dispatch engine.
//
// New picks a JSON or text handler, applies static attributes and, when
// ContextExtractor functions are registered, wraps the handler so that every
// record also carries attributes read from the context of the log call. The
// request id extractor of package requestid is the usual example.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(os.Getenv("APP_ENV"), "dispatchd"),
//	    logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "handler loaded",
//	    logger.Handler("greeting"),
//	    logger.Duration(time.Since(start)),
//	)
//
// WithEnvironment selects debug level text output for development and info
// level JSON for staging and production. Options given after it override
// those defaults.
//
// Components that accept an optional logger default to Noop, which discards
// every record.
//
// Error and Errors return an empty attribute for nil errors, so
//
//	log.Info("shutdown complete", logger.Error(err))
//
// needs no nil check.
package logger
