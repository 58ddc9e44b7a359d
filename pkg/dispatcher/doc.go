// Package dispatcher routes requests to handlers and runs their filter chains.
//
// A Dispatcher is an http.Handler. Each request is matched against the
// handler patterns, an instance of the handler is allocated and the filters
// mapped for the REQUEST dispatch type run in front of it.
//
// Handlers reach other handlers through a RequestDispatcher:
//
//	d := dispatcher.FromContext(r.Context())
//	rd, err := d.Path("/views/list?page=2")
//	if err != nil {
//		return err
//	}
//	return rd.Forward(w, r)
//
// Forward hands the whole response over to the target. Include appends the
// output of the target and leaves status and headers alone. Both install
// their own request and response layers below any wrappers the caller added
// and remove them when the target returns, so the caller sees its objects
// exactly as before.
//
// During a dispatch the request exposes the dispatch.* attributes: the
// dispatch type, the caller paths of a forward, the target paths of an
// include and, for error pages, the dispatch.error.* description of the
// failure. Each dispatch scopes its attributes; they disappear on return.
//
// Error pages are configured with WithErrorPage. A request failing with a
// mapped status is forwarded to its page with dispatch type ERROR.
package dispatcher
