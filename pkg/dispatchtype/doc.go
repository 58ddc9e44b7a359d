// Package dispatchtype encodes why a handler invocation happens.
//
// The four base types REQUEST, FORWARD, INCLUDE and ERROR are bit flags; every
// non-empty combination is a valid state, giving 15 composite states plus the
// Unset sentinel, which is treated as REQUEST. A state only grows: With ORs a
// base in and is idempotent.
//
// Filter mappings declare the set of types they apply to. IsActiveFor is the
// membership test used when building a filter chain:
//
//	set, _ := dispatchtype.ParseSet([]string{"REQUEST", "FORWARD"})
//	dispatchtype.IsActiveFor(set, dispatchtype.Forward)           // true
//	dispatchtype.IsActiveFor(dispatchtype.Unset, dispatchtype.Forward) // false, empty set means REQUEST only
package dispatchtype
