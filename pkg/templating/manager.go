package templating

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template/parse"

	"github.com/CTAG07/Trellis/pkg/sections"
	"github.com/cespare/xxhash/v2"
	"github.com/flosch/pongo2/v6"
	"go.trai.ch/zerr"
)

// EngineVersion identifies the rendering behaviour of this package. It is part
// of every preview cache key, so it must change whenever the same template
// and settings could render differently.
const EngineVersion = "trellis-render/1"

// ErrEngineFailure is returned when a template cannot be rendered at all.
var ErrEngineFailure = zerr.New("template engine failure")

// Source is a section template together with how to render it.
type Source struct {
	Name       string
	Engine     string
	Template   string
	Stylesheet string
	// RichText holds the ids of settings whose values are HTML. Block settings
	// are keyed as "<block type>.<id>".
	RichText map[string]bool
}

// Output is the result of a render. Errors holds diagnostics; a render with
// diagnostics still produced output.
type Output struct {
	HTML   string
	CSS    string
	Errors []string
}

// TemplateManager is the central controller for the templating engine.
// It manages the shared partials, configuration and function map, and
// renders section sources with either engine.
// All methods are concurrent-safe.
type TemplateManager struct {
	logger       *slog.Logger
	config       *TemplateConfig
	partials     *template.Template
	partialNames []string
	djangoSet    *pongo2.TemplateSet
	funcMap      template.FuncMap
	templateDir  string
	// version is EngineVersion plus a digest of the config and the files in
	// templateDir, recomputed by SetConfig and Refresh.
	version       string
	snippetDigest uint64
	mu            sync.RWMutex
}

// NewTemplateManager creates, initializes, and returns a new TemplateManager.
// templateDir holds shared snippets: "*.part.html" files are parsed as
// html/template partials and the directory is the include root for pongo2
// templates. It may be empty. It performs an initial Refresh.
func NewTemplateManager(logger *slog.Logger, config *TemplateConfig, templateDir string) (*TemplateManager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	tm := &TemplateManager{
		logger:      logger,
		templateDir: templateDir,
		config:      config,
	}
	tm.funcMap = tm.makeFuncMap()
	registerFilters()

	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized")
	return tm, nil
}

func (tm *TemplateManager) makeFuncMap() template.FuncMap {
	return template.FuncMap{
		// Content (from funcs_content.go)
		"truncate":    truncate,
		"upcase":      upcase,
		"downcase":    downcase,
		"capitalize":  capitalize,
		"handleize":   handleize,
		"newlineToBr": newlineToBr,
		"richtext":    tm.richtext,

		// Structure (from funcs_structure.go)
		"blocksOfType": blocksOfType,
		"chunk":        chunk,

		// Styling (from funcs_styling.go)
		"lighten":       lighten,
		"darken":        darken,
		"alpha":         alpha,
		"contrastColor": contrastColor,
		"cssVars":       cssVars,
		"px":            px,

		// Links (from funcs_links.go)
		"imageURL": tm.imageURL,
		"safeURL":  safeURL,

		// Logic & Control (from funcs_logic.go)
		"repeat":   tm.repeat,
		"list":     list,
		"dict":     dict,
		"default":  defaultValue,
		"coalesce": coalesce,
		"length":   length,

		// Simple (from funcs_simple.go)
		"add":   add,
		"sub":   sub,
		"div":   div,
		"mult":  mult,
		"max":   maxOf,
		"min":   minOf,
		"mod":   mod,
		"inc":   inc,
		"dec":   dec,
		"round": round,
		"isSet": isSet,
	}
}

// SetConfig applies a new configuration to the TemplateManager without
// reloading partials.
func (tm *TemplateManager) SetConfig(config *TemplateConfig) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config
	tm.version = tm.computeVersion()
}

// Refresh reloads the partials from the template directory and rebuilds the
// pongo2 template set, so edited snippets are picked up without a restart.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	partials := template.New("").Funcs(tm.funcMap)
	var names []string
	if tm.templateDir != "" {
		filePattern := filepath.Join(tm.templateDir, "*.part.html")
		tm.logger.Info("Loading partial files...")
		parsed, err := partials.ParseGlob(filePattern)
		if err != nil {
			if !strings.Contains(err.Error(), "pattern matches no files") {
				tm.logger.Error("failed to parse partial files", "error", err)
				return err
			}
			tm.logger.Warn("No partial files found matching pattern", "pattern", filePattern)
		} else {
			partials = parsed
		}
	}
	for _, t := range partials.Templates() {
		// The root template has no name and is never executed directly.
		if t.Name() != "" {
			names = append(names, t.Name())
		}
	}
	sort.Strings(names)

	set, err := newDjangoSet(tm.templateDir)
	if err != nil {
		tm.logger.Error("failed to create pongo2 template set", "error", err)
		return err
	}

	digest, err := digestDir(tm.templateDir)
	if err != nil {
		tm.logger.Error("failed to read template directory", "error", err)
		return err
	}

	tm.partials = partials
	tm.partialNames = names
	tm.djangoSet = set
	tm.snippetDigest = digest
	tm.version = tm.computeVersion()
	tm.logger.Info("Loaded partial files", "count", len(names))
	return nil
}

// Version reports the engine version used in preview cache keys. It changes
// whenever the configuration or any snippet file changes.
func (tm *TemplateManager) Version() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.version
}

func (tm *TemplateManager) computeVersion() string {
	cfg, _ := json.Marshal(tm.config)
	d := xxhash.New()
	_, _ = d.Write(cfg)
	_, _ = fmt.Fprintf(d, "\x00%x", tm.snippetDigest)
	return EngineVersion + "+" + strconv.FormatUint(d.Sum64(), 16)
}

// digestDir hashes the relative path and content of every file under dir.
// A missing directory digests like an empty one.
func digestDir(dir string) (uint64, error) {
	d := xxhash.New()
	if dir == "" {
		return d.Sum64(), nil
	}
	err := filepath.WalkDir(dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if e.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		_, _ = d.WriteString(filepath.ToSlash(rel))
		_, _ = d.Write([]byte{0})
		_, _ = d.Write(data)
		_, _ = d.Write([]byte{0})
		return nil
	})
	return d.Sum64(), err
}

// GetConfig returns a copy of the current configuration.
// This mainly exists for concurrency-safety reasons.
func (tm *TemplateManager) GetConfig() TemplateConfig {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// GetPartialNames returns the names of the loaded partials.
func (tm *TemplateManager) GetPartialNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return append([]string(nil), tm.partialNames...)
}

// GetTemplateDir returns the template dir that the TemplateManager uses.
func (tm *TemplateManager) GetTemplateDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.templateDir
}

// Render executes a section source against resolved settings and blocks.
// Problems that still allow output are returned in Output.Errors; the error
// return is reserved for ErrEngineFailure and context cancellation.
func (tm *TemplateManager) Render(ctx context.Context, src Source, settings sections.Settings, blocks []sections.Block) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	engine := src.Engine
	if engine == "" {
		engine = sections.EngineGoTemplate
	}
	if src.Name == "" {
		src.Name = "section"
	}

	diags := newDiagnostics(tm.config.MaxDiagnostics)
	data := tm.buildData(src, engine, settings, blocks)

	var (
		html string
		err  error
	)
	switch engine {
	case sections.EngineGoTemplate:
		html, err = tm.renderGo(src, data, diags)
	case sections.EngineDjango:
		html, err = tm.renderDjango(src, data, diags)
	default:
		return Output{}, zerr.With(zerr.Wrap(ErrEngineFailure, "unknown template engine"), "engine", engine)
	}
	if err != nil {
		return Output{}, err
	}

	html, styles := extractStyles(html)
	css, err := tm.renderStylesheet(src, engine, data, diags)
	if err != nil {
		return Output{}, err
	}

	return Output{
		HTML:   html,
		CSS:    joinCSS(append([]string{css}, styles...)...),
		Errors: diags.result(),
	}, nil
}

func engineFailure(engine, name string, err error) error {
	return zerr.With(zerr.With(zerr.Wrap(ErrEngineFailure, err.Error()), "engine", engine), "template", name)
}

func (tm *TemplateManager) renderGo(src Source, data *renderData, diags *diagnostics) (string, error) {
	set, err := tm.partials.Clone()
	if err != nil {
		return "", engineFailure(sections.EngineGoTemplate, src.Name, err)
	}
	t, err := set.New(src.Name).Parse(src.Template)
	if err != nil {
		return "", engineFailure(sections.EngineGoTemplate, src.Name, err)
	}

	data.inject(scanGoTemplate(t.Tree), diags)

	out, err := tm.execute(
		func(w io.Writer) error { return t.Execute(w, data.root) },
		func(err error) bool {
			loc, ok := failedAt(err)
			return ok && pruneAction(goTrees(t.Templates()), loc)
		},
		diags,
	)
	if err != nil {
		var escapeErr *template.Error
		if errors.As(err, &escapeErr) {
			// html/template rejects a template whose contexts are ambiguous
			// before writing anything.
			return "", engineFailure(sections.EngineGoTemplate, src.Name, err)
		}
		tm.reportExecError(err, out, diags)
	}
	return out.String(), nil
}

func (tm *TemplateManager) reportExecError(err error, out *limitedBuffer, diags *diagnostics) {
	if out.exceeded {
		diags.add("output truncated at %d bytes", out.limit)
		return
	}
	diags.add("%s", execMessage(err))
}

func goTrees(set []*template.Template) []*parse.Tree {
	trees := make([]*parse.Tree, 0, len(set))
	for _, t := range set {
		trees = append(trees, t.Tree)
	}
	return trees
}

// guard runs fn and turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panicked: %v", r)
		}
	}()
	return fn()
}

// ExecuteTemplateString parses and executes a raw html/template string using
// the manager's function map and partials. This is ideal for testing snippets
// without saving them to disk.
func (tm *TemplateManager) ExecuteTemplateString(w io.Writer, content string, data interface{}) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	// Clone the clean, unexecuted partial set to avoid execution state issues.
	tempSet, err := tm.partials.Clone()
	if err != nil {
		return fmt.Errorf("failed to clone clean templates for string execution: %w", err)
	}

	t, err := tempSet.New("string").Parse(content)
	if err != nil {
		return fmt.Errorf("failed to parse string template: %w", err)
	}

	return t.Execute(w, data)
}
