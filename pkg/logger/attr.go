package logger

import (
	"fmt"
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Handler records the handler name under the key "handler".
func Handler(name string) slog.Attr {
	return slog.String("handler", name)
}

// Filter records the filter name under the key "filter".
func Filter(name string) slog.Attr {
	return slog.String("filter", name)
}

// DispatchType records the dispatch type under the key "dispatch_type".
// It accepts any fmt.Stringer, such as dispatchtype.Type.
func DispatchType(t fmt.Stringer) slog.Attr {
	if t == nil {
		return slog.Attr{}
	}
	return slog.String("dispatch_type", t.String())
}

// Outstanding records the number of allocated instances under the key "outstanding".
func Outstanding(n int64) slog.Attr {
	return slog.Int64("outstanding", n)
}

// RequestPath records the context-relative request path under the key "request_path".
func RequestPath(path string) slog.Attr {
	return slog.String("request_path", path)
}

// Pattern records a URL pattern under the key "pattern".
func Pattern(pattern string) slog.Attr {
	return slog.String("pattern", pattern)
}
