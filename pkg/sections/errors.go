package sections

import "go.trai.ch/zerr"

var (
	// ErrInvalidSchema is returned when a section schema fails validation.
	ErrInvalidSchema = zerr.New("invalid section schema")
)
