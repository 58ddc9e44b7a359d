// Package requestid attaches correlation ids to requests.
//
// Middleware serves plain net/http stacks and Filter serves the dispatch
// engine: both reuse a valid X-Request-ID header or generate a UUID, store
// the id in the request context and echo it in the response header.
//
//	router.Use(requestid.Middleware)
//
//	_ = d.AddFilter(filterchain.NewRegistration("request-id", filterchain.Static(requestid.Filter())))
//	_ = d.AddFilterMapping(filterchain.Mapping{FilterName: "request-id", URLPattern: "/*"})
//
// LoggerExtractor feeds the id into every log record written with a context:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//
// Ids longer than 128 characters or containing characters other than
// letters, digits, '-' and '_' are replaced.
package requestid
