package templating

import (
	"io"
	texttemplate "text/template"
	"text/template/parse"

	"github.com/CTAG07/Trellis/pkg/sections"
	"github.com/flosch/pongo2/v6"
)

// renderStylesheet executes the section stylesheet. Stylesheets are not HTML,
// so the go engine uses text/template and pongo2 runs with autoescape off;
// setting values are stripped of characters that could end a rule instead.
func (tm *TemplateManager) renderStylesheet(src Source, engine string, data *renderData, diags *diagnostics) (string, error) {
	if src.Stylesheet == "" {
		return "", nil
	}
	name := src.Name + ".css"

	var (
		out *limitedBuffer
		err error
	)
	switch engine {
	case sections.EngineDjango:
		text := "{% autoescape off %}" + src.Stylesheet + "{% endautoescape %}"
		tpl, perr := tm.djangoSet.FromString(text)
		if perr != nil {
			return "", engineFailure(engine, name, perr)
		}
		data.inject(scanDjangoTemplate(name, src.Stylesheet), diags)
		values := data.cssValues()
		out, err = tm.execute(
			func(w io.Writer) error { return tpl.ExecuteWriterUnbuffered(pongo2.Context(values), w) },
			tm.skipDjango(&text, &tpl),
			diags,
		)
	default:
		t, perr := texttemplate.New(name).Funcs(texttemplate.FuncMap(tm.funcMap)).Parse(src.Stylesheet)
		if perr != nil {
			return "", engineFailure(engine, name, perr)
		}
		data.inject(scanGoTemplate(t.Tree), diags)
		values := data.cssValues()
		out, err = tm.execute(
			func(w io.Writer) error { return t.Execute(w, values) },
			func(err error) bool {
				loc, ok := failedAt(err)
				return ok && pruneAction([]*parse.Tree{t.Tree}, loc)
			},
			diags,
		)
	}
	if err != nil {
		tm.reportExecError(err, out, diags)
	}
	return out.String(), nil
}
