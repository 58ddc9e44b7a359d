package dispatcher

import (
	"github.com/dmitrymomot/dispatchkit/core"
	"github.com/dmitrymomot/dispatchkit/pkg/dispatchtype"
)

// Frame describes one dispatch. Nested dispatches form a stack through Prev.
type Frame struct {
	// Type is the base type of this dispatch.
	Type dispatchtype.Type
	// State combines Type with the types of every enclosing dispatch.
	State dispatchtype.Type
	// Handler is the name of the target handler.
	Handler string
	// RequestPath is the path filters were selected with. It is empty for
	// named dispatches.
	RequestPath string
	// Named is set for dispatches that resolved the target by name.
	Named string
	// Forward holds the request as it was before the first forward. It is
	// set only on the frame that captured it.
	Forward *PathAttrs
	// Include holds the path information of the included target.
	Include *PathAttrs
	// Error is set on error dispatches.
	Error *ErrorInfo
	Prev  *Frame
}

// ErrorInfo describes the failure an error page is rendered for.
type ErrorInfo struct {
	Status     int
	Message    string
	RequestURI string
	Handler    string
	Err        error
}

// FrameOf returns the frame of the innermost dispatch r is part of, or nil
// for a request that was not dispatched.
func FrameOf(r core.Request) *Frame {
	f, _ := r.Attribute(AttrFrame).(*Frame)
	return f
}

// Depth returns the number of frames on the stack ending at f.
func (f *Frame) Depth() int {
	n := 0
	for cur := f; cur != nil; cur = cur.Prev {
		n++
	}
	return n
}
