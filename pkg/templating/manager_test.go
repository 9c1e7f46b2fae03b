package templating

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/Trellis/pkg/sections"
	"github.com/flosch/pongo2/v6"
)

// setupTestManager creates a TemplateManager with one partial and one pongo2
// include in a temporary template directory.
func setupTestManager(tb testing.TB) *TemplateManager {
	tb.Helper()

	templateDir := tb.TempDir()
	partial := `<a class="btn" href="{{.url}}">{{.label}}</a>`
	if err := os.WriteFile(filepath.Join(templateDir, "button.part.html"), []byte(partial), 0644); err != nil {
		tb.Fatalf("failed to write partial: %v", err)
	}
	include := `<span class="badge">{{ text }}</span>`
	if err := os.WriteFile(filepath.Join(templateDir, "badge.dj.html"), []byte(include), 0644); err != nil {
		tb.Fatalf("failed to write include: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tm, err := NewTemplateManager(logger, DefaultConfig(), templateDir)
	if err != nil {
		tb.Fatalf("NewTemplateManager failed: %v", err)
	}
	return tm
}

func heroSettings() sections.Settings {
	return sections.Settings{
		"heading": sections.String("Sale"),
		"height":  sections.Number(480),
	}
}

func buttonBlock(label, url string) sections.Block {
	return sections.Block{Type: "button", Settings: sections.Settings{
		"label": sections.String(label),
		"url":   sections.String(url),
	}}
}

func render(t *testing.T, tm *TemplateManager, src Source, settings sections.Settings, blocks ...sections.Block) Output {
	t.Helper()
	out, err := tm.Render(context.Background(), src, settings, blocks)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return out
}

func TestNewTemplateManager(t *testing.T) {
	tm := setupTestManager(t)
	names := tm.GetPartialNames()
	if len(names) != 1 || names[0] != "button.part.html" {
		t.Errorf("expected partials [button.part.html], got %v", names)
	}
	if !strings.HasPrefix(tm.Version(), EngineVersion+"+") {
		t.Errorf("expected version to extend %q, got %q", EngineVersion, tm.Version())
	}
}

func TestManager_VersionTracksConfigAndSnippets(t *testing.T) {
	tm := setupTestManager(t)
	initial := tm.Version()

	tm.SetConfig(DefaultConfig())
	if tm.Version() != initial {
		t.Errorf("expected an equal config to keep the version, got %q and %q", initial, tm.Version())
	}

	config := DefaultConfig()
	config.SanitizeRichText = false
	tm.SetConfig(config)
	unsanitized := tm.Version()
	if unsanitized == initial {
		t.Error("expected a config change to change the version")
	}

	if err := tm.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if tm.Version() != unsanitized {
		t.Error("expected Refresh of unchanged snippets to keep the version")
	}

	badge := filepath.Join(tm.GetTemplateDir(), "badge.dj.html")
	if err := os.WriteFile(badge, []byte(`<em>{{ text }}</em>`), 0644); err != nil {
		t.Fatalf("failed to rewrite include: %v", err)
	}
	if err := tm.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if tm.Version() == unsanitized {
		t.Error("expected an edited snippet to change the version")
	}
}

func TestNewTemplateManager_NoTemplateDir(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tm, err := NewTemplateManager(logger, nil, "")
	if err != nil {
		t.Fatalf("NewTemplateManager failed: %v", err)
	}
	out := render(t, tm, Source{Name: "plain", Template: "<p>{{.section.settings.heading}}</p>"}, heroSettings())
	if out.HTML != "<p>Sale</p>" {
		t.Errorf("expected '<p>Sale</p>', got '%s'", out.HTML)
	}
}

func TestManager_Refresh(t *testing.T) {
	tm := setupTestManager(t)
	initialCount := len(tm.GetPartialNames())

	newPath := filepath.Join(tm.GetTemplateDir(), "price.part.html")
	if err := os.WriteFile(newPath, []byte(`<b>{{.}}</b>`), 0644); err != nil {
		t.Fatalf("failed to write new partial: %v", err)
	}

	if err := tm.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if len(tm.GetPartialNames()) != initialCount+1 {
		t.Errorf("expected %d partials after refresh, got %d", initialCount+1, len(tm.GetPartialNames()))
	}
}

func TestManager_RenderGoTemplate(t *testing.T) {
	tm := setupTestManager(t)
	src := Source{
		Name:     "hero",
		Template: `<section><h1>{{.section.settings.heading}}</h1>{{range .section.blocks}}{{template "button.part.html" .settings}}{{end}}</section>`,
	}

	out := render(t, tm, src, heroSettings(), buttonBlock("Shop", "/sale"))

	if !strings.Contains(out.HTML, "<h1>Sale</h1>") {
		t.Errorf("expected heading in output, got '%s'", out.HTML)
	}
	if !strings.Contains(out.HTML, `<a class="btn" href="/sale">Shop</a>`) {
		t.Errorf("expected rendered button partial, got '%s'", out.HTML)
	}
	if len(out.Errors) != 0 {
		t.Errorf("expected no errors, got %v", out.Errors)
	}
}

func TestManager_RenderDjango(t *testing.T) {
	tm := setupTestManager(t)
	src := Source{
		Name:   "hero",
		Engine: sections.EngineDjango,
		Template: `<h1>{{ section.settings.heading }}</h1>` +
			`{% for b in section.blocks %}<a href="{{ b.settings.url }}">{{ b.settings.label|upper }}</a>{% endfor %}` +
			`{% include "badge.dj.html" with text="New" %}`,
	}

	out := render(t, tm, src, heroSettings(), buttonBlock("Shop", "/sale"))

	if !strings.Contains(out.HTML, "<h1>Sale</h1>") {
		t.Errorf("expected heading in output, got '%s'", out.HTML)
	}
	if !strings.Contains(out.HTML, `<a href="/sale">SHOP</a>`) {
		t.Errorf("expected block link in output, got '%s'", out.HTML)
	}
	if !strings.Contains(out.HTML, `<span class="badge">New</span>`) {
		t.Errorf("expected included badge in output, got '%s'", out.HTML)
	}
	if len(out.Errors) != 0 {
		t.Errorf("expected no errors, got %v", out.Errors)
	}
}

func TestManager_RenderUndefinedSetting(t *testing.T) {
	tm := setupTestManager(t)

	tests := []struct {
		name   string
		engine string
		tmpl   string
		want   string
	}{
		{"gotemplate section", sections.EngineGoTemplate, `<p>{{.section.settings.heading}}</p><p>{{.section.settings.missing}}</p>`, `undefined setting "missing"`},
		{"gotemplate block", sections.EngineGoTemplate, `{{range $b := .section.blocks}}<i>{{$b.settings.nope}}</i>{{end}}`, `undefined block setting "nope"`},
		{"django section", sections.EngineDjango, `<p>{{ section.settings.heading }}</p><p>{{ section.settings.missing }}</p>`, `undefined setting "missing"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := Source{Name: "hero", Engine: tt.engine, Template: tt.tmpl}
			out := render(t, tm, src, heroSettings(), buttonBlock("Shop", "/sale"))
			if len(out.Errors) != 1 {
				t.Fatalf("expected 1 error, got %v", out.Errors)
			}
			if !strings.Contains(out.Errors[0], tt.want) || !strings.HasPrefix(out.Errors[0], "hero:1:") {
				t.Errorf("unexpected diagnostic '%s'", out.Errors[0])
			}
			if out.HTML == "" {
				t.Error("expected output despite the undefined setting")
			}
		})
	}
}

func TestManager_RenderEngineFailure(t *testing.T) {
	tm := setupTestManager(t)

	tests := []struct {
		name string
		src  Source
	}{
		{"gotemplate parse error", Source{Name: "bad", Template: `{{if}}`}},
		{"django parse error", Source{Name: "bad", Engine: sections.EngineDjango, Template: `{% if %}`}},
		{"unknown engine", Source{Name: "bad", Engine: "liquid", Template: `x`}},
		{"stylesheet parse error", Source{Name: "bad", Template: `<p></p>`, Stylesheet: `{{end}}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.Render(context.Background(), tt.src, heroSettings(), nil)
			if !errors.Is(err, ErrEngineFailure) {
				t.Errorf("expected ErrEngineFailure, got %v", err)
			}
		})
	}
}

func TestManager_RenderExecErrorKeepsOutput(t *testing.T) {
	tm := setupTestManager(t)

	tests := []struct {
		name     string
		tmpl     string
		wantHTML string
		wantErrs []string
	}{
		{
			"failing index",
			`<h1>{{ .settings.heading }}</h1><p>{{ index .section.blocks 5 }}</p><footer>tail</footer>`,
			`<h1>Sale</h1><p></p><footer>tail</footer>`,
			[]string{"out of range"},
		},
		{
			"field of undefined setting",
			`<img src="{{ .settings.image.src }}"><footer>tail</footer>`,
			`<img src=""><footer>tail</footer>`,
			[]string{`undefined setting "image"`},
		},
		{
			"failures inside a partial",
			`<nav>{{ template "button.part.html" 5 }}</nav><footer>tail</footer>`,
			`<nav><a class="btn" href=""></a></nav><footer>tail</footer>`,
			[]string{"can't evaluate field url", "can't evaluate field label"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := render(t, tm, Source{Name: "hero", Template: tt.tmpl}, heroSettings())
			if out.HTML != tt.wantHTML {
				t.Errorf("expected html %q, got %q", tt.wantHTML, out.HTML)
			}
			if len(out.Errors) != len(tt.wantErrs) {
				t.Fatalf("expected %d errors, got %v", len(tt.wantErrs), out.Errors)
			}
			for i, want := range tt.wantErrs {
				if !strings.Contains(out.Errors[i], want) {
					t.Errorf("expected error %d to mention %q, got '%s'", i, want, out.Errors[i])
				}
			}
		})
	}
}

func TestManager_RenderStylesheetExecError(t *testing.T) {
	tm := setupTestManager(t)
	src := Source{
		Name:       "hero",
		Template:   `<p></p>`,
		Stylesheet: `.a{width:{{index .section.blocks 3}}}.b{height:{{.section.settings.height}}px}`,
	}

	out := render(t, tm, src, heroSettings())

	if out.CSS != ".a{width:}.b{height:480px}" {
		t.Errorf("expected the rest of the stylesheet rendered, got %q", out.CSS)
	}
	if len(out.Errors) != 1 || !strings.Contains(out.Errors[0], "hero.css") {
		t.Errorf("expected one stylesheet diagnostic, got %v", out.Errors)
	}
}

func TestDropDjangoTag(t *testing.T) {
	text := "<h1>{{ a }}</h1>\n<p>{{ b|upper }}</p><i>{{ c }}</i>"

	tests := []struct {
		name string
		err  error
		want string
		ok   bool
	}{
		{"second line tag", &pongo2.Error{Line: 2, Column: 7, Filename: "<string>"}, "<h1>{{ a }}</h1>\n<p></p><i>{{ c }}</i>", true},
		{"first line tag", &pongo2.Error{Line: 1, Column: 8}, "<h1></h1>\n<p>{{ b|upper }}</p><i>{{ c }}</i>", true},
		{"text outside a tag", &pongo2.Error{Line: 2, Column: 20}, "", false},
		{"included file", &pongo2.Error{Line: 1, Column: 8, Filename: "badge.dj.html"}, "", false},
		{"no position", &pongo2.Error{}, "", false},
		{"not a pongo2 error", errors.New("boom"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := dropDjangoTag(text, tt.err)
			if ok != tt.ok || got != tt.want {
				t.Errorf("dropDjangoTag() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestManager_RenderExtractsStyles(t *testing.T) {
	tm := setupTestManager(t)
	src := Source{
		Name:       "hero",
		Template:   `<style>.hero{color:red}</style><div class="hero">x</div><style>.hero{color:red}</style>`,
		Stylesheet: `.hero{min-height:{{.section.settings.height}}px}`,
	}

	out := render(t, tm, src, heroSettings())

	if out.HTML != `<div class="hero">x</div>` {
		t.Errorf("expected style blocks removed from markup, got '%s'", out.HTML)
	}
	want := ".hero{min-height:480px}\n.hero{color:red}"
	if out.CSS != want {
		t.Errorf("expected css %q, got %q", want, out.CSS)
	}
}

func TestManager_RenderStylesheetStripsBreakout(t *testing.T) {
	tm := setupTestManager(t)
	src := Source{
		Name:       "hero",
		Engine:     sections.EngineDjango,
		Template:   `<div></div>`,
		Stylesheet: `.hero{color:{{ section.settings.heading }}}`,
	}
	settings := sections.Settings{"heading": sections.String("red}</style><script>")}

	out := render(t, tm, src, settings)

	if strings.Contains(out.CSS, "</style>") || strings.Contains(out.CSS, "}<") {
		t.Errorf("expected breakout characters stripped, got %q", out.CSS)
	}
}

func TestManager_RenderRichText(t *testing.T) {
	tm := setupTestManager(t)
	src := Source{
		Name:     "text",
		Template: `<div>{{.section.settings.body}}</div>`,
		RichText: map[string]bool{"body": true},
	}
	settings := sections.Settings{"body": sections.String(`<p>Hi</p><script>alert(1)</script>`)}

	out := render(t, tm, src, settings)

	if !strings.Contains(out.HTML, "<p>Hi</p>") {
		t.Errorf("expected rich text markup preserved, got '%s'", out.HTML)
	}
	if strings.Contains(out.HTML, "script") {
		t.Errorf("expected script removed, got '%s'", out.HTML)
	}
}

func TestManager_RenderOutputLimit(t *testing.T) {
	tm := setupTestManager(t)
	config := DefaultConfig()
	config.MaxOutputBytes = 10
	tm.SetConfig(config)

	out := render(t, tm, Source{Name: "big", Template: `{{range repeat 100}}abcdef{{end}}`}, nil)

	if len(out.HTML) > 10 {
		t.Errorf("expected output capped at 10 bytes, got %d", len(out.HTML))
	}
	if len(out.Errors) != 1 || !strings.Contains(out.Errors[0], "truncated") {
		t.Errorf("expected a truncation diagnostic, got %v", out.Errors)
	}
}

func TestManager_RenderCapsDiagnostics(t *testing.T) {
	tm := setupTestManager(t)
	config := DefaultConfig()
	config.MaxDiagnostics = 2
	tm.SetConfig(config)

	tmpl := `{{.settings.a}}{{.settings.b}}{{.settings.c}}{{.settings.d}}`
	out := render(t, tm, Source{Name: "many", Template: tmpl}, nil)

	if len(out.Errors) != 3 {
		t.Fatalf("expected 2 diagnostics and a summary, got %v", out.Errors)
	}
	if out.Errors[2] != "... and 2 more" {
		t.Errorf("unexpected summary '%s'", out.Errors[2])
	}
}

func TestManager_RenderIsDeterministic(t *testing.T) {
	tm := setupTestManager(t)
	src := Source{
		Name:     "hero",
		Template: `<div style="{{cssVars "hero" .section.settings}}">{{.section.settings.heading}}</div>`,
	}

	first := render(t, tm, src, heroSettings())
	second := render(t, tm, src, heroSettings())

	if first.HTML != second.HTML || first.CSS != second.CSS {
		t.Errorf("expected identical renders, got '%s' and '%s'", first.HTML, second.HTML)
	}
}

func TestManager_RenderCanceledContext(t *testing.T) {
	tm := setupTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tm.Render(ctx, Source{Name: "x", Template: "x"}, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestManager_ExecuteTemplateString(t *testing.T) {
	tm := setupTestManager(t)
	var buf bytes.Buffer
	err := tm.ExecuteTemplateString(&buf, `{{add 1 2}} {{template "button.part.html" .}}`, map[string]string{"url": "/a", "label": "A"})
	if err != nil {
		t.Fatalf("ExecuteTemplateString failed: %v", err)
	}
	if buf.String() != `3 <a class="btn" href="/a">A</a>` {
		t.Errorf("unexpected output '%s'", buf.String())
	}

	if err = tm.ExecuteTemplateString(&buf, `{{if}}`, nil); err == nil {
		t.Fatal("expected an error for an invalid template, but got nil")
	}
}

func TestManager_SetConfig(t *testing.T) {
	tm := setupTestManager(t)
	newConfig := DefaultConfig()
	newConfig.MaxRepeat = 3
	tm.SetConfig(newConfig)

	if tm.GetConfig().MaxRepeat != 3 {
		t.Errorf("SetConfig failed to update MaxRepeat: expected 3, got %d", tm.GetConfig().MaxRepeat)
	}
	if len(tm.repeat(10)) != 3 {
		t.Error("repeat did not respect the new MaxRepeat")
	}
}

// BenchmarkRender_Hero measures a typical section render with blocks.
func BenchmarkRender_Hero(b *testing.B) {
	tm := setupTestManager(b)
	src := Source{
		Name:       "hero",
		Template:   `<section style="{{cssVars "hero" .section.settings}}"><h1>{{.section.settings.heading}}</h1>{{range .section.blocks}}{{template "button.part.html" .settings}}{{end}}</section>`,
		Stylesheet: `.hero{min-height:{{.section.settings.height}}px}`,
	}
	blocks := []sections.Block{buttonBlock("One", "/1"), buttonBlock("Two", "/2")}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tm.Render(context.Background(), src, heroSettings(), blocks)
	}
}
