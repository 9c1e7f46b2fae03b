package templating

import (
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/CTAG07/Trellis/pkg/sections"
	"github.com/flosch/pongo2/v6"
)

var registerFiltersOnce sync.Once

// emptyFS backs the pongo2 set when no template directory is configured.
type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

func newDjangoSet(templateDir string) (*pongo2.TemplateSet, error) {
	var loader pongo2.TemplateLoader = pongo2.NewFSLoader(emptyFS{})
	if templateDir != "" {
		if _, err := os.Stat(templateDir); err == nil {
			local, err := pongo2.NewLocalFileSystemLoader(templateDir)
			if err != nil {
				return nil, err
			}
			loader = local
		}
	}
	set := pongo2.NewSet("sections", loader)
	// ssi reads arbitrary files from disk
	if err := set.BanTag("ssi"); err != nil {
		return nil, err
	}
	return set, nil
}

func (tm *TemplateManager) renderDjango(src Source, data *renderData, diags *diagnostics) (string, error) {
	tpl, err := tm.djangoSet.FromString(src.Template)
	if err != nil {
		return "", engineFailure(sections.EngineDjango, src.Name, err)
	}

	data.inject(scanDjangoTemplate(src.Name, src.Template), diags)

	text := src.Template
	out, err := tm.execute(
		func(w io.Writer) error { return tpl.ExecuteWriterUnbuffered(pongo2.Context(data.root), w) },
		tm.skipDjango(&text, &tpl),
		diags,
	)
	if err != nil {
		tm.reportExecError(err, out, diags)
	}
	return out.String(), nil
}

// skipDjango drops the tag a pongo2 execution error points at from *text and
// reparses it into *tpl.
func (tm *TemplateManager) skipDjango(text *string, tpl **pongo2.Template) func(error) bool {
	return func(err error) bool {
		next, ok := dropDjangoTag(*text, err)
		if !ok {
			return false
		}
		reparsed, perr := tm.djangoSet.FromString(next)
		if perr != nil {
			return false
		}
		*text, *tpl = next, reparsed
		return true
	}
}

// registerFilters exposes the styling and content helpers to pongo2
// templates. Filters are global in pongo2, so they are registered once.
func registerFilters() {
	registerFiltersOnce.Do(func() {
		filters := map[string]pongo2.FilterFunction{
			"lighten": func(in, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
				return pongo2.AsValue(lighten(param.Interface(), in.String())), nil
			},
			"darken": func(in, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
				return pongo2.AsValue(darken(param.Interface(), in.String())), nil
			},
			"alpha": func(in, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
				return pongo2.AsValue(alpha(param.Interface(), in.String())), nil
			},
			"contrast_color": func(in, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
				return pongo2.AsValue(contrastColor(in.String())), nil
			},
			"handleize": func(in, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
				return pongo2.AsValue(handleize(in.String())), nil
			},
			"px": func(in, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
				return pongo2.AsValue(px(in.Interface())), nil
			},
			"richtext": func(in, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
				return pongo2.AsSafeValue(sanitizeHTML(in.String())), nil
			},
			"image_url": func(in, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
				src := imageSource(in.Interface())
				if src == "" || param.IsNil() {
					return pongo2.AsValue(src), nil
				}
				sep := "?"
				if strings.Contains(src, "?") {
					sep = "&"
				}
				return pongo2.AsValue(src + sep + "width=" + param.String()), nil
			},
		}
		for name, fn := range filters {
			if !pongo2.FilterExists(name) {
				_ = pongo2.RegisterFilter(name, fn)
			}
		}
	})
}
