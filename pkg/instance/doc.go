// Package instance manages the lifecycle of handler instances.
//
// A Registration describes one handler: its name, the factory that builds
// instances, ordered init parameters and a load priority. The Manager owns
// every piece of shared mutable state of the dispatch engine:
//
//   - the cached singleton of an ordinary handler, created and initialized
//     exactly once even under concurrent first requests;
//   - the bounded pool of handlers that embed core.SingleInstance and need
//     one instance per concurrent invocation;
//   - the outstanding counter and the availability window.
//
// Typical use:
//
//	m := instance.NewManager(instance.WithLogger(log))
//	reg := instance.NewRegistration("orders", newOrdersHandler,
//		instance.WithInitParams(core.Param{Name: "page_size", Value: "50"}),
//		instance.WithLoadPriority(1),
//	)
//	_ = m.Register(reg)
//
//	inst, err := m.Allocate(ctx, reg)
//	if err != nil {
//		// *core.UnavailableError carries the retry window
//	}
//	defer m.Deallocate(reg, inst)
//	err = inst.Handler().Serve(w, r)
//
// Unload takes a handler out of service: it marks it permanently
// unavailable, waits a bounded amount of time for outstanding instances to be
// returned and then destroys every instance it owns. The wait is a courtesy,
// not a guarantee; instances returned after the deadline are destroyed on
// return.
package instance
