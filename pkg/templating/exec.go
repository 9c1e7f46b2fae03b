package templating

import (
	"errors"
	"io"
	"regexp"
	"slices"
	"strings"
	texttemplate "text/template"
	"text/template/parse"
	"unicode/utf8"

	"github.com/flosch/pongo2/v6"
)

// maxSkippedActions bounds re-execution when diagnostics are uncapped.
const maxSkippedActions = 100

var execLocation = regexp.MustCompile(`^template: (.+:\d+:\d+): executing `)

// execute runs a template until it completes. After an execution error skip
// is asked to remove the failing action; if it does, the error becomes a
// diagnostic and the template runs again from the start. The returned error
// is the one that could not be skipped.
func (tm *TemplateManager) execute(run func(io.Writer) error, skip func(error) bool, diags *diagnostics) (*limitedBuffer, error) {
	limit := tm.config.MaxDiagnostics
	if limit <= 0 {
		limit = maxSkippedActions
	}
	for attempt := 0; ; attempt++ {
		out := &limitedBuffer{limit: tm.config.MaxOutputBytes}
		err := guard(func() error { return run(out) })
		if err == nil {
			return out, nil
		}
		if out.exceeded || attempt >= limit || !skip(err) {
			return out, err
		}
		diags.add("%s", execMessage(err))
	}
}

func execMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "template: ")
}

// failedAt returns the "name:line:col" of the node a go template execution
// error was raised at.
func failedAt(err error) (string, bool) {
	var execErr texttemplate.ExecError
	if !errors.As(err, &execErr) {
		return "", false
	}
	m := execLocation.FindStringSubmatch(err.Error())
	if m == nil {
		return "", false
	}
	return m[1], true
}

// pruneAction removes the statement containing the node at loc from the
// first tree that has it.
func pruneAction(trees []*parse.Tree, loc string) bool {
	for _, tree := range trees {
		if tree != nil && pruneList(tree, tree.Root, loc) {
			return true
		}
	}
	return false
}

func pruneList(tree *parse.Tree, l *parse.ListNode, loc string) bool {
	if l == nil {
		return false
	}
	for i, n := range l.Nodes {
		var (
			pipe   *parse.PipeNode
			bodies []*parse.ListNode
		)
		switch n := n.(type) {
		case *parse.ActionNode:
			pipe = n.Pipe
		case *parse.TemplateNode:
			pipe = n.Pipe
		case *parse.IfNode:
			pipe, bodies = n.Pipe, []*parse.ListNode{n.List, n.ElseList}
		case *parse.RangeNode:
			pipe, bodies = n.Pipe, []*parse.ListNode{n.List, n.ElseList}
		case *parse.WithNode:
			pipe, bodies = n.Pipe, []*parse.ListNode{n.List, n.ElseList}
		default:
			continue
		}
		if nodeAt(tree, n, loc) || pipeAt(tree, pipe, loc) {
			l.Nodes = slices.Delete(l.Nodes, i, i+1)
			return true
		}
		for _, body := range bodies {
			if pruneList(tree, body, loc) {
				return true
			}
		}
	}
	return false
}

func nodeAt(tree *parse.Tree, n parse.Node, loc string) bool {
	if n == nil {
		return false
	}
	if locate(tree, n) == loc {
		return true
	}
	switch n := n.(type) {
	case *parse.PipeNode:
		return pipeAt(tree, n, loc)
	case *parse.ChainNode:
		return nodeAt(tree, n.Node, loc)
	}
	return false
}

func pipeAt(tree *parse.Tree, p *parse.PipeNode, loc string) bool {
	if p == nil {
		return false
	}
	if locate(tree, p) == loc {
		return true
	}
	for _, v := range p.Decl {
		if nodeAt(tree, v, loc) {
			return true
		}
	}
	for _, cmd := range p.Cmds {
		if locate(tree, cmd) == loc {
			return true
		}
		for _, arg := range cmd.Args {
			if nodeAt(tree, arg, loc) {
				return true
			}
		}
	}
	return false
}

// locate is tree.ErrorContext without the panic on nodes whose position lies
// outside the tree text.
func locate(tree *parse.Tree, n parse.Node) (loc string) {
	defer func() {
		if recover() != nil {
			loc = ""
		}
	}()
	loc, _ = tree.ErrorContext(n)
	return loc
}

// dropDjangoTag removes the {{ }} tag a pongo2 execution error points at.
// Block tags are left alone since removing one would unbalance the template.
func dropDjangoTag(text string, err error) (string, bool) {
	var perr *pongo2.Error
	if !errors.As(err, &perr) || perr.Line <= 0 {
		return "", false
	}
	// Errors inside included files point into another source.
	if perr.Filename != "" && perr.Filename != "<string>" {
		return "", false
	}
	pos, ok := offsetOf(text, perr.Line, perr.Column)
	if !ok {
		return "", false
	}
	open := strings.LastIndex(text[:min(pos+2, len(text))], "{{")
	if open < 0 {
		return "", false
	}
	end := strings.Index(text[open:], "}}")
	if end < 0 {
		return "", false
	}
	end += open + 2
	if pos >= end {
		return "", false
	}
	return text[:open] + text[end:], true
}

// offsetOf converts a 1-based line and rune column into a byte offset.
func offsetOf(text string, line, col int) (int, bool) {
	off := 0
	for l := 1; l < line; l++ {
		i := strings.IndexByte(text[off:], '\n')
		if i < 0 {
			return 0, false
		}
		off += i + 1
	}
	for c := 1; c < col && off < len(text) && text[off] != '\n'; c++ {
		_, size := utf8.DecodeRuneInString(text[off:])
		off += size
	}
	return off, off < len(text)
}
