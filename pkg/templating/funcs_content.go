package templating

import (
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var nonHandleChars = regexp.MustCompile(`[^a-z0-9]+`)

// truncate shortens s to at most n runes, ending with an ellipsis when cut.
func truncate(n any, s any) string {
	str := fmt.Sprint(s)
	limit := int(num(n))
	if limit <= 0 || utf8.RuneCountInString(str) <= limit {
		return str
	}
	runes := []rune(str)
	if limit <= 1 {
		return string(runes[:limit])
	}
	return strings.TrimRightFunc(string(runes[:limit-1]), unicode.IsSpace) + "…"
}

func upcase(s any) string {
	return strings.ToUpper(fmt.Sprint(s))
}

func downcase(s any) string {
	return strings.ToLower(fmt.Sprint(s))
}

// capitalize upper-cases the first rune.
func capitalize(s any) string {
	str := fmt.Sprint(s)
	r, size := utf8.DecodeRuneInString(str)
	if size == 0 {
		return str
	}
	return string(unicode.ToUpper(r)) + str[size:]
}

// handleize turns a label into a url and css friendly handle, "Summer Sale!" -> "summer-sale".
func handleize(s any) string {
	return strings.Trim(nonHandleChars.ReplaceAllString(strings.ToLower(fmt.Sprint(s)), "-"), "-")
}

// newlineToBr escapes s and replaces newlines with <br>.
func newlineToBr(s any) template.HTML {
	escaped := template.HTMLEscapeString(fmt.Sprint(s))
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>\n"))
}

// richtext sanitizes a markup value and marks it safe for output. Richtext
// settings already arrive sanitized, this is for values of other types.
func (tm *TemplateManager) richtext(v any) template.HTML {
	if h, ok := v.(template.HTML); ok {
		return h
	}
	return template.HTML(sanitizeHTML(fmt.Sprint(v)))
}
