package sections

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Layer is one source of setting values in a resolution pipeline.
type Layer struct {
	Name   string
	Values Settings
}

// Pipeline applies layers in order; a later layer overwrites ids set by an
// earlier one. Precedence is therefore the order of the slice.
type Pipeline []Layer

// Resolved is the merged outcome of a pipeline for one render.
type Resolved struct {
	Settings Settings
	// Unvalidated lists ids that were set by a layer but have no declaration
	// in the schema. They are kept in Settings.
	Unvalidated []string
	// Warnings are non-fatal problems found while resolving, such as values
	// that could not be coerced to their declared type or dropped blocks.
	Warnings []string
	Blocks   []Block
}

// Defaults returns the base layer of a schema: every declared setting with its
// default, or the empty value of its type when no default is declared.
func Defaults(schema *Schema) Layer {
	return Layer{Name: "defaults", Values: declDefaults(schema.Settings)}
}

func declDefaults(decls []SettingDecl) Settings {
	out := make(Settings, len(decls))
	for _, d := range decls {
		if d.Default != nil && !d.Default.IsNull() {
			out[d.ID] = *d.Default
			continue
		}
		out[d.ID] = EmptyValue(d.Type)
	}
	return out
}

// Resolve merges schema defaults, preset values and caller overrides, in that
// order of increasing precedence. Either of preset and overrides may be nil.
func Resolve(schema *Schema, preset, overrides Settings) Resolved {
	return Pipeline{
		Defaults(schema),
		{Name: "preset", Values: preset},
		{Name: "overrides", Values: overrides},
	}.Apply(schema)
}

// Apply runs the pipeline against the declarations of schema.
func (p Pipeline) Apply(schema *Schema) Resolved {
	return apply(p, schema.Settings)
}

func apply(layers []Layer, decls []SettingDecl) Resolved {
	declared := make(map[string]SettingDecl, len(decls))
	for _, d := range decls {
		declared[d.ID] = d
	}

	out := make(Settings, len(decls))
	unvalidated := map[string]struct{}{}
	var warnings []string

	for _, layer := range layers {
		for _, id := range layer.Values.Keys() {
			v := layer.Values[id]
			if v.IsNull() {
				// null means "not set" and leaves the lower layer in place
				continue
			}
			decl, ok := declared[id]
			if !ok {
				unvalidated[id] = struct{}{}
				out[id] = v
				continue
			}
			cv, err := Coerce(v, decl.Type)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("setting %q (%s): %v", id, layer.Name, err))
			}
			out[id] = cv
		}
	}

	res := Resolved{Settings: out, Warnings: warnings}
	for id := range unvalidated {
		res.Unvalidated = append(res.Unvalidated, id)
	}
	sort.Strings(res.Unvalidated)
	return res
}

// EmptyValue is the value a declared setting gets when it has no default.
func EmptyValue(settingType string) Value {
	switch settingType {
	case "number", "range":
		return Number(0)
	case "checkbox":
		return Bool(false)
	default:
		return String("")
	}
}

// Coerce converts v towards the declared setting type. When conversion is not
// possible the original value is returned with an error describing the
// mismatch.
func Coerce(v Value, settingType string) (Value, error) {
	if v.IsNull() {
		return EmptyValue(settingType), nil
	}
	switch settingType {
	case "number", "range":
		switch v.Kind() {
		case KindNumber:
			return v, nil
		case KindString:
			s := strings.TrimSpace(v.str)
			if s == "" {
				return Number(0), nil
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return v, fmt.Errorf("expected number, got %q", v.str)
			}
			return Number(f), nil
		}
		return v, fmt.Errorf("expected number, got %s", v.Kind())
	case "checkbox":
		switch v.Kind() {
		case KindBool:
			return v, nil
		case KindString:
			b, err := strconv.ParseBool(strings.TrimSpace(v.str))
			if err != nil {
				return v, fmt.Errorf("expected bool, got %q", v.str)
			}
			return Bool(b), nil
		case KindNumber:
			return Bool(v.num != 0), nil
		}
		return v, fmt.Errorf("expected bool, got %s", v.Kind())
	case "text", "textarea", "richtext", "html", "select", "radio", "color",
		"color_background", "font_picker", "image_picker", "url", "video_url",
		"page", "blog", "article", "collection", "product", "link_list":
		switch v.Kind() {
		case KindString:
			return v, nil
		case KindNumber, KindBool:
			return String(v.String()), nil
		}
		// image pickers and resource pickers may carry objects
		if settingType == "image_picker" || settingType == "product" || settingType == "collection" {
			return v, nil
		}
		return v, fmt.Errorf("expected string, got %s", v.Kind())
	default:
		return v, nil
	}
}
