package descriptor

import "errors"

var (
	// ErrReadDescriptor is returned when the descriptor file cannot be read.
	ErrReadDescriptor = errors.New("failed to read descriptor")
	// ErrParseDescriptor is returned for malformed YAML or unknown fields.
	ErrParseDescriptor = errors.New("failed to parse descriptor")
	// ErrInvalidDescriptor is returned when a well-formed descriptor breaks a configuration rule.
	ErrInvalidDescriptor = errors.New("invalid descriptor")
	// ErrUnknownFactory is returned when a descriptor names a factory missing from the catalog.
	ErrUnknownFactory = errors.New("unknown factory")
)
