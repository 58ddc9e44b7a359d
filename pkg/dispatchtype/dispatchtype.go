package dispatchtype

import (
	"errors"
	"fmt"
	"strings"
)

// Type is a base dispatch type or a composition of base types.
type Type uint8

// Base types. Composite states are formed with With or bitwise OR.
const (
	Unset   Type = 0
	Error   Type = 1
	Forward Type = 2
	Include Type = 4
	Request Type = 8

	all = Error | Forward | Include | Request
)

// ErrUnknownType is returned by Parse for names outside the base types.
var ErrUnknownType = errors.New("unknown dispatch type")

// order used for String and Bases.
var bases = []struct {
	t    Type
	name string
}{
	{Request, "REQUEST"},
	{Forward, "FORWARD"},
	{Include, "INCLUDE"},
	{Error, "ERROR"},
}

// Normalize maps the Unset sentinel to Request and drops unknown bits.
func (t Type) Normalize() Type {
	t &= all
	if t == Unset {
		return Request
	}
	return t
}

// With returns the state reached by adding base. Adding a base already
// present returns t unchanged.
func (t Type) With(base Type) Type {
	return (t | base) & all
}

// Has reports whether every base of other is part of t.
func (t Type) Has(other Type) bool {
	return other != Unset && t&other == other
}

// Bases lists the base types of t in REQUEST, FORWARD, INCLUDE, ERROR order.
func (t Type) Bases() []Type {
	out := make([]Type, 0, 4)
	for _, b := range bases {
		if t&b.t != 0 {
			out = append(out, b.t)
		}
	}
	return out
}

func (t Type) String() string {
	if t&all == Unset {
		return "UNSET"
	}
	names := make([]string, 0, 4)
	for _, b := range bases {
		if t&b.t != 0 {
			names = append(names, b.name)
		}
	}
	return strings.Join(names, "|")
}

// Parse converts a base type name, case-insensitively.
func Parse(name string) (Type, error) {
	for _, b := range bases {
		if strings.EqualFold(strings.TrimSpace(name), b.name) {
			return b.t, nil
		}
	}
	return Unset, errors.Join(ErrUnknownType, fmt.Errorf("name %q", name))
}

// ParseSet folds names into one composite state. An empty list yields Unset.
func ParseSet(names []string) (Type, error) {
	var t Type
	for _, n := range names {
		b, err := Parse(n)
		if err != nil {
			return Unset, err
		}
		t = t.With(b)
	}
	return t, nil
}

// IsActiveFor reports whether a filter declared for filterSet runs in the
// current dispatch state. Every base of current must be declared. A filter
// that declares nothing behaves as if it declared REQUEST only, and an unset
// current state is a REQUEST.
func IsActiveFor(filterSet, current Type) bool {
	return filterSet.Normalize().Has(current.Normalize())
}
