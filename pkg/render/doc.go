// Package render turns a section render request into HTML and CSS, reusing
// cached previews when the same section, preset and settings were rendered
// before. Collaborators are passed in explicitly; see Orchestrator.
package render
