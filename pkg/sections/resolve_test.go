package sections_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/CTAG07/Trellis/pkg/sections"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v sections.Value) *sections.Value { return &v }

func heroSchema() *sections.Schema {
	return &sections.Schema{
		Name: "Hero Banner",
		Slug: "hero-banner",
		Settings: []sections.SettingDecl{
			{ID: "heading", Type: "text", Label: "Heading", Default: ptr(sections.String("Welcome"))},
			{ID: "subheading", Type: "text", Label: "Subheading"},
			{ID: "height", Type: "range", Label: "Height", Default: ptr(sections.Number(480))},
			{ID: "show_button", Type: "checkbox", Label: "Show button", Default: ptr(sections.Bool(true))},
		},
		Blocks: []sections.BlockDecl{
			{Type: "button", Name: "Button", Limit: 2, Settings: []sections.SettingDecl{
				{ID: "label", Type: "text", Label: "Label", Default: ptr(sections.String("Shop now"))},
				{ID: "url", Type: "url", Label: "Link"},
			}},
		},
		MaxBlocks: 3,
		Presets: []sections.PresetDecl{
			{Name: "Dark Mode", Settings: sections.Settings{"heading": sections.String("Night")}},
		},
	}
}

func TestResolve_Precedence(t *testing.T) {
	schema := heroSchema()

	tests := []struct {
		name      string
		preset    sections.Settings
		overrides sections.Settings
		want      string
	}{
		{name: "default only", want: "Welcome"},
		{name: "preset wins over default", preset: sections.Settings{"heading": sections.String("Preset")}, want: "Preset"},
		{
			name:      "override wins over preset",
			preset:    sections.Settings{"heading": sections.String("Preset")},
			overrides: sections.Settings{"heading": sections.String("Override")},
			want:      "Override",
		},
		{name: "override without preset", overrides: sections.Settings{"heading": sections.String("Sale")}, want: "Sale"},
		{
			name:      "null override keeps preset",
			preset:    sections.Settings{"heading": sections.String("Preset")},
			overrides: sections.Settings{"heading": sections.Null()},
			want:      "Preset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := sections.Resolve(schema, tt.preset, tt.overrides)
			got, ok := res.Settings["heading"].Str()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_EveryDeclarationPresent(t *testing.T) {
	res := sections.Resolve(heroSchema(), nil, nil)

	want := sections.Settings{
		"heading":     sections.String("Welcome"),
		"subheading":  sections.String(""),
		"height":      sections.Number(480),
		"show_button": sections.Bool(true),
	}
	if diff := cmp.Diff(string(want.Canonical()), string(res.Settings.Canonical())); diff != "" {
		t.Errorf("resolved settings mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, res.Unvalidated)
	assert.Empty(t, res.Warnings)
}

func TestResolve_UnknownIDsPassThrough(t *testing.T) {
	res := sections.Resolve(heroSchema(),
		sections.Settings{"legacy_color": sections.String("#fff")},
		sections.Settings{"zz_extra": sections.Number(3)},
	)

	assert.Equal(t, []string{"legacy_color", "zz_extra"}, res.Unvalidated)
	v, ok := res.Settings["legacy_color"].Str()
	require.True(t, ok)
	assert.Equal(t, "#fff", v)
	n, ok := res.Settings["zz_extra"].Num()
	require.True(t, ok)
	assert.Equal(t, 3.0, n)
}

func TestResolve_CoercesToDeclaredType(t *testing.T) {
	res := sections.Resolve(heroSchema(), nil, sections.Settings{
		"height":      sections.String("600"),
		"show_button": sections.String("false"),
	})

	n, ok := res.Settings["height"].Num()
	require.True(t, ok)
	assert.Equal(t, 600.0, n)
	b, ok := res.Settings["show_button"].BoolValue()
	require.True(t, ok)
	assert.False(t, b)
	assert.Empty(t, res.Warnings)
}

func TestResolve_UncoercibleValueWarns(t *testing.T) {
	res := sections.Resolve(heroSchema(), nil, sections.Settings{"height": sections.String("tall")})

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], `"height"`)
	s, ok := res.Settings["height"].Str()
	require.True(t, ok)
	assert.Equal(t, "tall", s)
}

func TestPipeline_OrderIsPrecedence(t *testing.T) {
	schema := heroSchema()
	p := sections.Pipeline{
		{Name: "first", Values: sections.Settings{"heading": sections.String("a")}},
		{Name: "second", Values: sections.Settings{"heading": sections.String("b")}},
		{Name: "third", Values: sections.Settings{"subheading": sections.String("c")}},
	}

	res := p.Apply(schema)
	assert.Equal(t, "b", res.Settings["heading"].String())
	assert.Equal(t, "c", res.Settings["subheading"].String())
	_, declaredButUnset := res.Settings["height"]
	assert.False(t, declaredButUnset, "pipeline without a defaults layer only contains ids set by its layers")
}

func TestResolveBlocks_Limits(t *testing.T) {
	schema := heroSchema()
	inputs := []sections.BlockInput{
		{Type: "button", Settings: sections.Settings{"label": sections.String("One")}},
		{Type: "unknown"},
		{Type: "button"},
		{Type: "button", Settings: sections.Settings{"label": sections.String("Three")}},
	}

	blocks, warnings := sections.ResolveBlocks(schema, inputs)

	require.Len(t, blocks, 2)
	assert.Equal(t, "One", blocks[0].Settings["label"].String())
	assert.Equal(t, "Shop now", blocks[1].Settings["label"].String())
	assert.Equal(t, "", blocks[1].Settings["url"].String())
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "unknown block type")
	assert.Contains(t, warnings[1], "at most 2 instances")
}

func TestResolveBlocks_MaxBlocks(t *testing.T) {
	schema := heroSchema()
	schema.Blocks = append(schema.Blocks, sections.BlockDecl{Type: "text", Name: "Text"})
	inputs := []sections.BlockInput{{Type: "text"}, {Type: "text"}, {Type: "text"}, {Type: "text"}}

	blocks, warnings := sections.ResolveBlocks(schema, inputs)

	assert.Len(t, blocks, 3)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "at most 3 blocks")
}

func TestSchema_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, heroSchema().Validate())
	})
	t.Run("duplicate setting", func(t *testing.T) {
		s := heroSchema()
		s.Settings = append(s.Settings, sections.SettingDecl{ID: "heading", Type: "text"})
		err := s.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, sections.ErrInvalidSchema))
	})
	t.Run("unknown engine", func(t *testing.T) {
		s := heroSchema()
		s.Engine = "handlebars"
		assert.ErrorIs(t, s.Validate(), sections.ErrInvalidSchema)
	})
}

func TestValidateCustom(t *testing.T) {
	var missingArrays sections.Schema
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Custom"}`), &missingArrays))
	assert.ErrorIs(t, sections.ValidateCustom(&missingArrays, "hero-banner"), sections.ErrInvalidSchema)

	var ok sections.Schema
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Custom","settings":[],"blocks":[]}`), &ok))
	require.NoError(t, sections.ValidateCustom(&ok, "hero-banner"))
	assert.Equal(t, "hero-banner", ok.Slug)
}

func TestSchema_Preset(t *testing.T) {
	p, ok := heroSchema().Preset("dark-mode")
	require.True(t, ok)
	assert.Equal(t, "Dark Mode", p.Name)
	assert.Equal(t, "Night", p.Settings["heading"].String())

	_, ok = heroSchema().Preset("missing")
	assert.False(t, ok)
}
