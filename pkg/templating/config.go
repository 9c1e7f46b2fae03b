package templating

// TemplateConfig holds all configuration options for the section renderer.
type TemplateConfig struct {
	// MaxOutputBytes caps the size of the markup produced by one render. Output
	// beyond the limit is cut off and reported as a diagnostic.
	MaxOutputBytes int `json:"max_output_bytes"`

	// MaxDiagnostics caps the number of diagnostics reported for one render.
	MaxDiagnostics int `json:"max_diagnostics"`

	// MaxRepeat is the upper bound for the repeat function, so a setting
	// value cannot make a template loop arbitrarily often.
	MaxRepeat int `json:"max_repeat"`

	// SanitizeRichText controls whether richtext and html settings are passed
	// through the sanitizer before reaching templates.
	SanitizeRichText bool `json:"sanitize_rich_text"`

	// ImageWidths are the widths imageURL snaps requested sizes to.
	ImageWidths []int `json:"image_widths"`
}

// DefaultConfig returns a TemplateConfig with safe default values.
func DefaultConfig() *TemplateConfig {
	return &TemplateConfig{
		MaxOutputBytes:   2 << 20, // 2MB
		MaxDiagnostics:   50,
		MaxRepeat:        500,
		SanitizeRichText: true,
		ImageWidths:      []int{160, 320, 640, 960, 1280, 1920},
	}
}
