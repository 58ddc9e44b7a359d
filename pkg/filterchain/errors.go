package filterchain

import "errors"

var (
	ErrNilRegistration = errors.New("filter registration is nil")
	ErrDuplicateFilter = errors.New("filter is already registered")
	ErrInvalidMapping  = errors.New("invalid filter mapping")
	ErrNilFilter       = errors.New("factory returned a nil filter")
)
