package render

import "go.trai.ch/zerr"

var (
	// ErrMissingSection is returned when a request carries no section slug.
	ErrMissingSection = zerr.New("missing required parameter: sectionSlug")
	// ErrSectionNotFound is returned when no schema exists for the section.
	ErrSectionNotFound = zerr.New("section not found")
	// ErrPresetNotFound is returned when the requested preset is unknown.
	ErrPresetNotFound = zerr.New("preset not found")
)
