// Package filterchain selects and runs the filters wrapping a handler
// invocation.
//
// A Registry holds filter registrations and the ordered list of mappings that
// bind them to requests, either by URL pattern or by handler name. Build
// selects the filters for one invocation: first every URL mapping matching the
// request path, then every handler-name mapping matching the target handler,
// each in registration order, keeping only mappings whose dispatch set is
// active for the current dispatch type. All matching filters apply, not only
// the most specific one.
//
//	reg := filterchain.NewRegistry()
//	_ = reg.AddFilter(filterchain.NewRegistration("audit", filterchain.Static(audit)))
//	_ = reg.AddMapping(filterchain.Mapping{
//		FilterName: "audit",
//		URLPattern: "/app/*",
//		Dispatch:   dispatchtype.Request | dispatchtype.Forward,
//	})
//
//	filters := reg.Build(handlerReg, "/app/orders", dispatchtype.Request)
//	err := filterchain.New(filters, handler).DoFilter(w, r)
//
// Filters are created and initialized lazily, once, on first use.
package filterchain
