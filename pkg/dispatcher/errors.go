package dispatcher

import "errors"

// ErrNoErrorPage is returned by ErrorDispatch when no page is configured for a status.
var ErrNoErrorPage = errors.New("no error page configured")
