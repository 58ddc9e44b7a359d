// Package core defines the request and response abstractions the dispatch engine
// works with, the Handler and Filter contracts, and the error taxonomy shared by
// every other package in the module.
//
// # Request and Response
//
// The transport hands the engine a plain *http.Request and http.ResponseWriter.
// NewRequestFacade and NewResponseFacade adapt them into Request and Response:
//
//	req := core.NewRequestFacade(r, "/shop")
//	resp := core.NewResponseFacade(w)
//	defer resp.Finish()
//
// A Request exposes the servlet-style path split (context path, servlet path,
// path info, query string) and a per-request attribute map. A Response buffers
// output until it is flushed or the buffer fills, which lets a forward discard
// output that has not been committed yet.
//
// # Wrappers
//
// Requests and responses can be decorated. RequestWrapper and ResponseWrapper are
// embeddable bases that delegate every call to the wrapped value and carry a
// unique Token. The wrappers form an intrusive singly linked list from the
// outermost value down to the facade. InsertRequest and RemoveRequest (and the
// response counterparts) splice a layer in or out by token, so code that
// installed a layer removes exactly that layer and nothing else:
//
//	w := core.NewRequestWrapper(req)
//	outer := core.InsertRequest(req, w)
//	defer func() { outer = core.RemoveRequest(outer, w.Token()) }()
//
// # Handlers and Filters
//
// Handler is the unit of request processing selected by routing. Filter is an
// interceptor composed around a handler invocation. Both receive a Config with
// their name and ordered init parameters. A handler type that embeds
// SingleInstance is served from a pool, one instance per concurrent invocation.
//
// # Errors
//
// Handlers signal temporary or permanent unavailability by returning the error
// produced by Unavailable or PermanentlyUnavailable. Every other error class is
// a sentinel that callers test with errors.Is.
package core
