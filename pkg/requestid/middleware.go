package requestid

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/dmitrymomot/dispatchkit/core"
)

const (
	Header      = "X-Request-ID"
	maxIDLength = 128
	idPattern   = "^[a-zA-Z0-9_-]+$"
)

var validIDRegex = regexp.MustCompile(idPattern)

// Middleware attaches a request id to every request reaching next. A valid
// X-Request-ID header is reused; otherwise a new UUID is generated.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := resolve(r)
		w.Header().Set(Header, requestID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), requestID)))
	})
}

// Filter returns a dispatch filter doing the work of Middleware for
// requests that did not pass through it. Map it for REQUEST dispatches;
// requests already carrying an id keep it.
func Filter() core.Filter {
	return core.FilterFunc(func(w core.Response, r core.Request, next core.FilterChain) error {
		if FromContext(r.Context()) == "" {
			requestID := resolve(r.HTTP())
			w.Header().Set(Header, requestID)
			r.SetContext(WithContext(r.Context(), requestID))
		}
		return next.DoFilter(w, r)
	})
}

func resolve(r *http.Request) string {
	if id := r.Header.Get(Header); isValidRequestID(id) {
		return id
	}
	return uuid.New().String()
}

func isValidRequestID(id string) bool {
	if len(id) == 0 || len(id) > maxIDLength {
		return false
	}
	return validIDRegex.MatchString(id)
}
