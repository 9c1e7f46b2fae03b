package templating

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var errOutputLimit = errors.New("output limit reached")

// limitedBuffer collects template output up to limit bytes. Writes past the
// limit are truncated and fail, which aborts execution while keeping what was
// written so far.
type limitedBuffer struct {
	buf      bytes.Buffer
	limit    int
	exceeded bool
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.limit <= 0 || l.buf.Len()+len(p) <= l.limit {
		return l.buf.Write(p)
	}
	remaining := l.limit - l.buf.Len()
	if remaining > 0 {
		l.buf.Write(p[:remaining])
	} else {
		remaining = 0
	}
	l.exceeded = true
	return remaining, errOutputLimit
}

func (l *limitedBuffer) String() string {
	return l.buf.String()
}

// diagnostics is a capped, ordered list of render problems.
type diagnostics struct {
	max     int
	list    []string
	dropped int
	seen    map[string]struct{}
}

func newDiagnostics(max int) *diagnostics {
	return &diagnostics{max: max, seen: map[string]struct{}{}}
}

func (d *diagnostics) add(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if _, dup := d.seen[msg]; dup {
		return
	}
	d.seen[msg] = struct{}{}
	if d.max > 0 && len(d.list) >= d.max {
		d.dropped++
		return
	}
	d.list = append(d.list, msg)
}

func (d *diagnostics) result() []string {
	if d.dropped == 0 {
		return d.list
	}
	return append(d.list, fmt.Sprintf("... and %d more", d.dropped))
}

var styleBlock = regexp.MustCompile(`(?is)<style\b[^>]*>(.*?)</style\s*>`)

// extractStyles removes <style> elements from markup and returns the markup
// and the trimmed, de-duplicated contents of the removed elements in order.
func extractStyles(html string) (string, []string) {
	var (
		styles []string
		seen   = map[string]struct{}{}
	)
	out := styleBlock.ReplaceAllStringFunc(html, func(m string) string {
		css := strings.TrimSpace(styleBlock.FindStringSubmatch(m)[1])
		if css == "" {
			return ""
		}
		if _, dup := seen[css]; !dup {
			seen[css] = struct{}{}
			styles = append(styles, css)
		}
		return ""
	})
	return out, styles
}

// joinCSS concatenates non-empty stylesheet parts.
func joinCSS(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
