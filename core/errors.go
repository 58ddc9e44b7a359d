package core

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrUnavailable matches every *UnavailableError.
	ErrUnavailable = errors.New("handler is unavailable")
	// ErrInitializationFailed indicates that creating or initializing an instance failed.
	ErrInitializationFailed = errors.New("handler initialization failed")
	// ErrFinalizationFailed indicates that destroying an instance failed during unload.
	ErrFinalizationFailed = errors.New("handler finalization failed")
	// ErrResponseCommitted is returned when a forward is requested after output was committed.
	ErrResponseCommitted = errors.New("cannot forward after response has been committed")
	// ErrRuntimeFault wraps a panic recovered from a handler or filter.
	ErrRuntimeFault = errors.New("handler or filter panicked")
	// ErrHandlerNotFound indicates that no handler is registered under a name or path.
	ErrHandlerNotFound = errors.New("handler not found")
	// ErrInvalidTarget indicates a dispatch target that is neither a name nor a context-relative path.
	ErrInvalidTarget = errors.New("invalid dispatch target")
	// ErrResponseFinished is returned by writes after the response was finished.
	ErrResponseFinished = errors.New("response is finished")
)

// PermanentRetry is the availableUntil value of a permanently unavailable handler.
const PermanentRetry = int64(math.MaxInt64)

// DefaultUnavailableSeconds replaces a non-positive unavailability window.
const DefaultUnavailableSeconds = 60

// UnavailableError reports that a handler cannot serve requests.
// A temporary error carries the instant the handler becomes available again.
type UnavailableError struct {
	Handler   string
	Seconds   int
	Until     time.Time
	Permanent bool
}

// Unavailable returns an error a handler can return from Serve or Init to take
// itself out of service for the given number of seconds.
func Unavailable(seconds int) *UnavailableError {
	return &UnavailableError{Seconds: seconds}
}

// PermanentlyUnavailable returns an error a handler can return to take itself
// out of service until it is explicitly reset.
func PermanentlyUnavailable() *UnavailableError {
	return &UnavailableError{Permanent: true}
}

func (e *UnavailableError) Error() string {
	name := e.Handler
	if name == "" {
		name = "handler"
	}
	if e.Permanent {
		return fmt.Sprintf("%s is permanently unavailable", name)
	}
	if !e.Until.IsZero() {
		return fmt.Sprintf("%s is unavailable until %s", name, e.Until.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s is unavailable for %ds", name, e.Seconds)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// RetryAfter returns the remaining window rounded up to whole seconds.
// It returns 0 for permanent errors and for windows that already elapsed.
func (e *UnavailableError) RetryAfter(now time.Time) int {
	if e.Permanent {
		return 0
	}
	if e.Until.IsZero() {
		return max(e.Seconds, 0)
	}
	d := e.Until.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// AsUnavailable extracts an *UnavailableError from err.
func AsUnavailable(err error) (*UnavailableError, bool) {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// Fault converts a recovered panic value into an error joined with ErrRuntimeFault.
func Fault(v any) error {
	if err, ok := v.(error); ok {
		return errors.Join(ErrRuntimeFault, err)
	}
	return errors.Join(ErrRuntimeFault, fmt.Errorf("%v", v))
}
