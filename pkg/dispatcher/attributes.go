package dispatcher

import "strings"

// Request attributes installed by a dispatch. They are scoped to the dispatch
// that sets them and disappear when it returns.
const (
	AttrForwardRequestURI  = "dispatch.forward.request_uri"
	AttrForwardContextPath = "dispatch.forward.context_path"
	AttrForwardServletPath = "dispatch.forward.servlet_path"
	AttrForwardPathInfo    = "dispatch.forward.path_info"
	AttrForwardQueryString = "dispatch.forward.query_string"

	AttrIncludeRequestURI  = "dispatch.include.request_uri"
	AttrIncludeContextPath = "dispatch.include.context_path"
	AttrIncludeServletPath = "dispatch.include.servlet_path"
	AttrIncludePathInfo    = "dispatch.include.path_info"
	AttrIncludeQueryString = "dispatch.include.query_string"

	AttrErrorStatusCode = "dispatch.error.status_code"
	AttrErrorMessage    = "dispatch.error.message"
	AttrErrorRequestURI = "dispatch.error.request_uri"
	AttrErrorHandler    = "dispatch.error.handler_name"
	AttrErrorException  = "dispatch.error.exception"

	// AttrDispatchType holds the dispatchtype.Type of the current invocation.
	AttrDispatchType = "dispatch.type"
	// AttrDispatchState holds the composite dispatchtype.Type of the current
	// invocation and every enclosing one.
	AttrDispatchState = "dispatch.state"
	// AttrRequestPath holds the path used to select filters.
	AttrRequestPath = "dispatch.request_path"
	// AttrHandler holds the name of the handler serving the current invocation.
	AttrHandler = "dispatch.handler"
	// AttrNamed holds the handler name of a named include.
	AttrNamed = "dispatch.named"
	// AttrFrame holds the *Frame of the current dispatch.
	AttrFrame = "dispatch.frame"
)

const attrPrefix = "dispatch."

func isDispatchAttr(name string) bool {
	return strings.HasPrefix(name, attrPrefix)
}

// PathAttrs is the path information of a request at one point of a dispatch.
type PathAttrs struct {
	RequestURI  string
	ContextPath string
	ServletPath string
	PathInfo    string
	QueryString string
}

func forwardAttrs(p *PathAttrs) map[string]string {
	return map[string]string{
		AttrForwardRequestURI:  p.RequestURI,
		AttrForwardContextPath: p.ContextPath,
		AttrForwardServletPath: p.ServletPath,
		AttrForwardPathInfo:    p.PathInfo,
		AttrForwardQueryString: p.QueryString,
	}
}

func includeAttrs(p *PathAttrs) map[string]string {
	return map[string]string{
		AttrIncludeRequestURI:  p.RequestURI,
		AttrIncludeContextPath: p.ContextPath,
		AttrIncludeServletPath: p.ServletPath,
		AttrIncludePathInfo:    p.PathInfo,
		AttrIncludeQueryString: p.QueryString,
	}
}
