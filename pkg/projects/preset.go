package projects

import (
	"time"

	"github.com/CTAG07/Trellis/pkg/sections"
)

// Colors is the palette group of a custom preset.
type Colors struct {
	Primary             string `json:"primary,omitempty"`
	Secondary           string `json:"secondary,omitempty"`
	Accent              string `json:"accent,omitempty"`
	Background          string `json:"background,omitempty"`
	BackgroundSecondary string `json:"background_secondary,omitempty"`
	Text                string `json:"text,omitempty"`
	TextSecondary       string `json:"text_secondary,omitempty"`
}

// Typography is the font group of a custom preset.
type Typography struct {
	HeadingFont  string  `json:"heading_font,omitempty"`
	BodyFont     string  `json:"body_font,omitempty"`
	HeadingScale float64 `json:"heading_scale,omitempty"`
	BodyScale    float64 `json:"body_scale,omitempty"`
}

// Buttons is the button shape group of a custom preset, in pixels.
type Buttons struct {
	BorderRadius      float64 `json:"border_radius,omitempty"`
	PaddingVertical   float64 `json:"padding_vertical,omitempty"`
	PaddingHorizontal float64 `json:"padding_horizontal,omitempty"`
}

// CustomPreset is a user-defined preset. Global presets are visible to every
// project; the others belong to ProjectSlug.
type CustomPreset struct {
	ID          string            `json:"id"`
	Slug        string            `json:"slug"`
	Name        string            `json:"name"`
	ProjectSlug string            `json:"project_slug,omitempty"`
	IsGlobal    bool              `json:"is_global"`
	Colors      Colors            `json:"colors"`
	Typography  Typography        `json:"typography"`
	Buttons     Buttons           `json:"buttons"`
	Settings    sections.Settings `json:"settings,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Flatten turns the structured groups into setting ids and overlays the raw
// settings, which win on conflict. Empty fields are left out.
func (p *CustomPreset) Flatten() sections.Settings {
	out := sections.Settings{}
	str := func(id, v string) {
		if v != "" {
			out[id] = sections.String(v)
		}
	}
	num := func(id string, v float64) {
		if v != 0 {
			out[id] = sections.Number(v)
		}
	}

	str("color_primary", p.Colors.Primary)
	str("color_secondary", p.Colors.Secondary)
	str("color_accent", p.Colors.Accent)
	str("color_background", p.Colors.Background)
	str("color_background_secondary", p.Colors.BackgroundSecondary)
	str("color_text", p.Colors.Text)
	str("color_text_secondary", p.Colors.TextSecondary)

	str("heading_font", p.Typography.HeadingFont)
	str("body_font", p.Typography.BodyFont)
	num("heading_scale", p.Typography.HeadingScale)
	num("body_scale", p.Typography.BodyScale)

	num("button_border_radius", p.Buttons.BorderRadius)
	num("button_padding_vertical", p.Buttons.PaddingVertical)
	num("button_padding_horizontal", p.Buttons.PaddingHorizontal)

	for k, v := range p.Settings {
		out[k] = v
	}
	return out
}

// Preset converts p to the form the resolver consumes.
func (p *CustomPreset) Preset() *sections.Preset {
	return &sections.Preset{Slug: p.Slug, Name: p.Name, Settings: p.Flatten()}
}
