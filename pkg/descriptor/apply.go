package descriptor

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/dmitrymomot/dispatchkit/pkg/dispatcher"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatchtype"
	"github.com/dmitrymomot/dispatchkit/pkg/filterchain"
	"github.com/dmitrymomot/dispatchkit/pkg/instance"
)

// Options returns the dispatcher options the document sets: the context
// path and the error pages.
func (doc *Document) Options() []dispatcher.Option {
	opts := make([]dispatcher.Option, 0, len(doc.ErrorPages)+1)
	if doc.ContextPath != "" {
		opts = append(opts, dispatcher.WithContextPath(doc.ContextPath))
	}
	for _, status := range slices.Sorted(maps.Keys(doc.ErrorPages)) {
		opts = append(opts, dispatcher.WithErrorPage(status, doc.ErrorPages[status]))
	}
	return opts
}

// Apply registers the handlers, filters and filter mappings of doc with d.
// Every factory is resolved before anything is registered, so a document
// naming an unknown factory leaves d untouched.
func Apply(d *dispatcher.Dispatcher, doc *Document, cat *Catalog) error {
	handlers := make([]*instance.Registration, 0, len(doc.Handlers))
	var missing []error
	for _, h := range doc.Handlers {
		f, ok := cat.handler(h.Factory)
		if !ok {
			missing = append(missing, fmt.Errorf("handler %q: factory %q", h.Name, h.Factory))
			continue
		}
		opts := []instance.RegistrationOption{instance.WithInitParams(h.InitParams...)}
		if h.LoadPriority != nil {
			opts = append(opts, instance.WithLoadPriority(*h.LoadPriority))
		}
		handlers = append(handlers, instance.NewRegistration(h.Name, f, opts...))
	}
	filters := make([]*filterchain.Registration, 0, len(doc.Filters))
	for _, fl := range doc.Filters {
		f, ok := cat.filter(fl.Factory)
		if !ok {
			missing = append(missing, fmt.Errorf("filter %q: factory %q", fl.Name, fl.Factory))
			continue
		}
		filters = append(filters, filterchain.NewRegistration(fl.Name, f, fl.InitParams...))
	}
	if len(missing) > 0 {
		return errors.Join(append([]error{ErrUnknownFactory}, missing...)...)
	}

	for i, reg := range handlers {
		if err := d.AddHandler(reg, doc.Handlers[i].Mappings...); err != nil {
			return errors.Join(ErrInvalidDescriptor, err)
		}
	}
	for _, reg := range filters {
		if err := d.AddFilter(reg); err != nil {
			return errors.Join(ErrInvalidDescriptor, err)
		}
	}
	for _, m := range doc.FilterMappings {
		set, err := dispatchtype.ParseSet(m.Dispatchers)
		if err != nil {
			return errors.Join(ErrInvalidDescriptor, err)
		}
		mapping := filterchain.Mapping{
			FilterName:  m.Filter,
			URLPattern:  m.URLPattern,
			HandlerName: m.Handler,
			Dispatch:    set,
		}
		add := d.AddFilterMapping
		if m.Before {
			add = d.AddFilterMappingBefore
		}
		if err := add(mapping); err != nil {
			return errors.Join(ErrInvalidDescriptor, err)
		}
	}
	return nil
}
