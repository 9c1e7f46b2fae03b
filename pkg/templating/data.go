package templating

import (
	"html/template"

	"github.com/CTAG07/Trellis/pkg/sections"
)

// renderData is the value templates execute against:
//
//	section.id, section.settings.<id>, section.blocks[i].type,
//	section.blocks[i].settings.<id>
//
// with settings and blocks also available at the top level.
type renderData struct {
	root     map[string]any
	settings map[string]any
	blocks   []map[string]any
	injected map[string]bool
}

func (tm *TemplateManager) buildData(src Source, engine string, settings sections.Settings, blocks []sections.Block) *renderData {
	d := &renderData{
		settings: tm.templateValues(src, engine, "", settings),
		injected: map[string]bool{},
	}
	list := make([]any, 0, len(blocks))
	for i, b := range blocks {
		m := map[string]any{
			"type":     b.Type,
			"index":    i,
			"settings": tm.templateValues(src, engine, b.Type+".", b.Settings),
		}
		d.blocks = append(d.blocks, m)
		list = append(list, m)
	}
	d.root = map[string]any{
		"section": map[string]any{
			"id":       src.Name,
			"settings": d.settings,
			"blocks":   list,
		},
		"settings": d.settings,
		"blocks":   list,
	}
	return d
}

func (tm *TemplateManager) templateValues(src Source, engine, richPrefix string, settings sections.Settings) map[string]any {
	out := make(map[string]any, len(settings))
	for id, v := range settings {
		s, isString := v.Str()
		if isString && src.RichText[richPrefix+id] {
			if tm.config.SanitizeRichText {
				s = sanitizeHTML(s)
			}
			if engine == sections.EngineGoTemplate {
				out[id] = template.HTML(s)
			} else {
				out[id] = s
			}
			continue
		}
		out[id] = v.Interface()
	}
	return out
}

// undefined stands in for a setting the schema does not declare. It prints as
// nothing, is false in conditions and yields nothing for any field access.
type undefined map[string]any

func (undefined) String() string { return "" }

// inject reports every reference to an undefined setting and defines the id
// as an undefined value so execution continues.
func (d *renderData) inject(refs []reference, diags *diagnostics) {
	for _, ref := range refs {
		if !ref.block {
			if _, ok := d.settings[ref.id]; ok && !d.injected[ref.id] {
				continue
			}
			diags.add("%s: undefined setting %q", ref.location, ref.id)
			d.settings[ref.id] = undefined(nil)
			d.injected[ref.id] = true
			continue
		}
		key := "block:" + ref.id
		missing := d.injected[key]
		for _, b := range d.blocks {
			bs := b["settings"].(map[string]any)
			if _, ok := bs[ref.id]; !ok {
				bs[ref.id] = undefined(nil)
				missing = true
			}
		}
		if missing {
			diags.add("%s: undefined block setting %q", ref.location, ref.id)
			d.injected[key] = true
		}
	}
}

// cssValues is a copy of the render data with string values stripped of
// characters that could break out of a declaration.
func (d *renderData) cssValues() map[string]any {
	settings := make(map[string]any, len(d.settings))
	for k, v := range d.settings {
		switch tv := v.(type) {
		case string:
			settings[k] = cssValue(tv)
		case template.HTML:
			settings[k] = cssValue(string(tv))
		default:
			settings[k] = v
		}
	}
	section := map[string]any{}
	for k, v := range d.root["section"].(map[string]any) {
		section[k] = v
	}
	section["settings"] = settings
	return map[string]any{
		"section":  section,
		"settings": settings,
		"blocks":   d.root["blocks"],
	}
}
