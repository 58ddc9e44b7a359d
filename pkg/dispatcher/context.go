package dispatcher

import "context"

type ctxKey struct{}

// WithContext returns a copy of ctx carrying d.
func WithContext(ctx context.Context, d *Dispatcher) context.Context {
	return context.WithValue(ctx, ctxKey{}, d)
}

// FromContext returns the dispatcher serving the request of ctx, or nil.
func FromContext(ctx context.Context) *Dispatcher {
	d, _ := ctx.Value(ctxKey{}).(*Dispatcher)
	return d
}
