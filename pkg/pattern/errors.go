package pattern

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPattern is returned for patterns outside the four rule classes.
	ErrInvalidPattern = errors.New("invalid mapping pattern")
	// ErrEmptyName is returned when a pattern is mapped to an empty handler name.
	ErrEmptyName = errors.New("handler name cannot be empty")
)

func invalidPattern(p string) error {
	return errors.Join(ErrInvalidPattern, fmt.Errorf("pattern %q", p))
}
