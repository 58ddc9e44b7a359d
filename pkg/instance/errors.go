package instance

import "errors"

var (
	ErrNilRegistration       = errors.New("registration is nil")
	ErrEmptyName             = errors.New("registration name is empty")
	ErrNilFactory            = errors.New("registration factory is nil")
	ErrNilHandler            = errors.New("factory returned a nil handler")
	ErrDuplicateRegistration = errors.New("handler is already registered")
	ErrNilInstance           = errors.New("instance is nil")
	ErrForeignInstance       = errors.New("instance belongs to another registration")
	ErrNotAllocated          = errors.New("instance is not allocated")
	ErrInstanceAlreadyPooled = errors.New("instance is already in the pool")
)
