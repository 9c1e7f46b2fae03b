package templating

import (
	"fmt"
	"regexp"
	"strings"
	"text/template/parse"
)

// scope is what a template expression evaluates to, as far as the reference
// scanner can tell.
type scope int

const (
	scopeUnknown scope = iota
	scopeRoot
	scopeSection
	scopeSettings
	scopeBlockList
	scopeBlock
	scopeBlockSettings
)

// reference is a setting id read by a template.
type reference struct {
	id       string
	block    bool
	location string
}

// step follows one field access from a scope.
func step(from scope, field string) (scope, *reference) {
	switch from {
	case scopeRoot:
		switch field {
		case "section":
			return scopeSection, nil
		case "settings":
			return scopeSettings, nil
		case "blocks":
			return scopeBlockList, nil
		}
	case scopeSection:
		switch field {
		case "settings":
			return scopeSettings, nil
		case "blocks":
			return scopeBlockList, nil
		}
	case scopeSettings:
		return scopeUnknown, &reference{id: field}
	case scopeBlock:
		if field == "settings" {
			return scopeBlockSettings, nil
		}
	case scopeBlockSettings:
		return scopeUnknown, &reference{id: field, block: true}
	}
	return scopeUnknown, nil
}

// follow walks a field chain and returns the final scope and the setting
// reference it contains, if any.
func follow(from scope, fields []string) (scope, *reference) {
	cur := from
	for _, f := range fields {
		next, ref := step(cur, f)
		if ref != nil {
			return scopeUnknown, ref
		}
		cur = next
	}
	return cur, nil
}

// goScanner collects setting references from a text/template parse tree.
type goScanner struct {
	tree *parse.Tree
	refs []reference
}

type goEnv struct {
	dot  scope
	vars map[string]scope
}

func (e goEnv) with(dot scope) goEnv {
	vars := make(map[string]scope, len(e.vars))
	for k, v := range e.vars {
		vars[k] = v
	}
	return goEnv{dot: dot, vars: vars}
}

// scanGoTemplate returns every setting reference in tree in source order.
func scanGoTemplate(tree *parse.Tree) []reference {
	if tree == nil || tree.Root == nil {
		return nil
	}
	s := &goScanner{tree: tree}
	s.list(tree.Root, goEnv{dot: scopeRoot, vars: map[string]scope{"$": scopeRoot}})
	return s.refs
}

func (s *goScanner) record(node parse.Node, ref *reference) {
	if ref == nil {
		return
	}
	loc, _ := s.tree.ErrorContext(node)
	ref.location = loc
	s.refs = append(s.refs, *ref)
}

func (s *goScanner) list(l *parse.ListNode, env goEnv) {
	if l == nil {
		return
	}
	for _, n := range l.Nodes {
		s.node(n, env)
	}
}

func (s *goScanner) node(n parse.Node, env goEnv) {
	switch n := n.(type) {
	case *parse.ActionNode:
		result := s.pipe(n.Pipe, env)
		if n.Pipe.IsAssign {
			for _, v := range n.Pipe.Decl {
				if _, ok := env.vars[v.Ident[0]]; ok {
					env.vars[v.Ident[0]] = result
				}
			}
		} else {
			s.declare(n.Pipe, env, result)
		}
	case *parse.IfNode:
		s.pipe(n.Pipe, env)
		s.list(n.List, env.with(env.dot))
		s.list(n.ElseList, env.with(env.dot))
	case *parse.WithNode:
		result := s.pipe(n.Pipe, env)
		inner := env.with(result)
		s.declare(n.Pipe, inner, result)
		s.list(n.List, inner)
		s.list(n.ElseList, env.with(env.dot))
	case *parse.RangeNode:
		result := s.pipe(n.Pipe, env)
		elem := scopeUnknown
		if result == scopeBlockList {
			elem = scopeBlock
		}
		inner := env.with(elem)
		if n.Pipe != nil {
			for i, v := range n.Pipe.Decl {
				// {{range $i, $b := ...}} binds the element to the last variable
				if i == len(n.Pipe.Decl)-1 {
					inner.vars[v.Ident[0]] = elem
				} else {
					inner.vars[v.Ident[0]] = scopeUnknown
				}
			}
		}
		s.list(n.List, inner)
		s.list(n.ElseList, env.with(env.dot))
	case *parse.TemplateNode:
		s.pipe(n.Pipe, env)
	case *parse.ListNode:
		s.list(n, env)
	}
}

// declare binds the variables of a with or assignment pipeline.
func (s *goScanner) declare(p *parse.PipeNode, env goEnv, result scope) {
	if p == nil {
		return
	}
	for _, v := range p.Decl {
		env.vars[v.Ident[0]] = result
	}
}

// pipe scans a pipeline and returns the scope of its result.
func (s *goScanner) pipe(p *parse.PipeNode, env goEnv) scope {
	if p == nil {
		return scopeUnknown
	}
	result := scopeUnknown
	for i, cmd := range p.Cmds {
		r := s.command(cmd, env)
		if i == len(p.Cmds)-1 {
			result = r
		}
	}
	return result
}

func (s *goScanner) command(cmd *parse.CommandNode, env goEnv) scope {
	if len(cmd.Args) == 0 {
		return scopeUnknown
	}
	// index .section.settings "id"
	if ident, ok := cmd.Args[0].(*parse.IdentifierNode); ok && ident.Ident == "index" && len(cmd.Args) >= 3 {
		base := s.arg(cmd.Args[1], env)
		if key, ok := cmd.Args[2].(*parse.StringNode); ok && (base == scopeSettings || base == scopeBlockSettings) {
			next, ref := step(base, key.Text)
			s.record(key, ref)
			for _, a := range cmd.Args[3:] {
				s.arg(a, env)
			}
			return next
		}
		for _, a := range cmd.Args[2:] {
			s.arg(a, env)
		}
		return scopeUnknown
	}
	result := scopeUnknown
	for i, a := range cmd.Args {
		r := s.arg(a, env)
		if i == 0 && len(cmd.Args) == 1 {
			result = r
		}
	}
	return result
}

func (s *goScanner) arg(n parse.Node, env goEnv) scope {
	switch n := n.(type) {
	case *parse.DotNode:
		return env.dot
	case *parse.FieldNode:
		next, ref := follow(env.dot, n.Ident)
		s.record(n, ref)
		return next
	case *parse.VariableNode:
		start, ok := env.vars[n.Ident[0]]
		if !ok {
			return scopeUnknown
		}
		next, ref := follow(start, n.Ident[1:])
		s.record(n, ref)
		return next
	case *parse.ChainNode:
		base := s.arg(n.Node, env)
		next, ref := follow(base, n.Field)
		s.record(n, ref)
		return next
	case *parse.PipeNode:
		return s.pipe(n, env.with(env.dot))
	}
	return scopeUnknown
}

var (
	djangoTag       = regexp.MustCompile(`(?s)\{\{(.*?)\}\}|\{%(.*?)%\}`)
	djangoQuoted    = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	djangoPath      = regexp.MustCompile(`[A-Za-z_]\w*(?:\.[A-Za-z_]\w*)+`)
	djangoBlockLoop = regexp.MustCompile(`^\s*for\s+(?:\w+\s*,\s*)?(\w+)\s+in\s+(?:section\.)?blocks\b`)
)

// scanDjangoTemplate finds dotted setting references in pongo2 tags. Loop
// variables bound by {% for b in section.blocks %} resolve to blocks for the
// rest of the template.
func scanDjangoTemplate(name, src string) []reference {
	var (
		refs      []reference
		blockVars = map[string]bool{}
	)
	for _, m := range djangoTag.FindAllStringSubmatchIndex(src, -1) {
		start, end := m[2], m[3]
		if start < 0 {
			start, end = m[4], m[5]
			if loop := djangoBlockLoop.FindStringSubmatch(src[start:end]); loop != nil {
				blockVars[loop[1]] = true
			}
		}
		expr := djangoQuoted.ReplaceAllStringFunc(src[start:end], func(q string) string {
			return strings.Repeat(" ", len(q))
		})
		for _, pm := range djangoPath.FindAllStringIndex(expr, -1) {
			if pm[0] > 0 && expr[pm[0]-1] == '.' {
				continue
			}
			parts := strings.Split(expr[pm[0]:pm[1]], ".")
			from := scopeRoot
			if blockVars[parts[0]] {
				from = scopeBlock
			} else {
				var ok bool
				from, ok = djangoRoot(parts[0])
				if !ok {
					continue
				}
			}
			_, ref := follow(from, parts[1:])
			if ref == nil {
				continue
			}
			ref.location = sourceLocation(name, src, start+pm[0])
			refs = append(refs, *ref)
		}
	}
	return refs
}

func djangoRoot(ident string) (scope, bool) {
	switch ident {
	case "section":
		return scopeSection, true
	case "settings":
		return scopeSettings, true
	}
	return scopeUnknown, false
}

// sourceLocation formats an offset as name:line:col, matching the locations
// text/template reports.
func sourceLocation(name, src string, offset int) string {
	before := src[:offset]
	line := 1 + strings.Count(before, "\n")
	col := offset - strings.LastIndex(before, "\n")
	return fmt.Sprintf("%s:%d:%d", name, line, col)
}
