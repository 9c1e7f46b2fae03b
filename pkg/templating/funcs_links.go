package templating

import (
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
)

// imageURL returns the URL of an image setting resized to the smallest
// configured width that is at least the requested width. Image settings may be
// plain URLs or objects carrying a "src" or "url" field.
func (tm *TemplateManager) imageURL(image any, width any) string {
	src := imageSource(image)
	if src == "" {
		return ""
	}
	w := snapWidth(int(num(width)), tm.config.ImageWidths)
	if w <= 0 {
		return src
	}
	u, err := url.Parse(src)
	if err != nil {
		return src
	}
	q := u.Query()
	q.Set("width", strconv.Itoa(w))
	u.RawQuery = q.Encode()
	return u.String()
}

func imageSource(image any) string {
	switch v := image.(type) {
	case string:
		return v
	case map[string]any:
		for _, k := range []string{"src", "url"} {
			if s, ok := v[k].(string); ok {
				return s
			}
		}
	}
	return ""
}

func snapWidth(w int, widths []int) int {
	if w <= 0 || len(widths) == 0 {
		return w
	}
	best := widths[len(widths)-1]
	for _, candidate := range widths {
		if candidate >= w && candidate < best {
			best = candidate
		}
	}
	return best
}

// safeURL passes http, https, mailto, tel and relative links through as a
// trusted URL and replaces anything else with "#".
func safeURL(v any) template.URL {
	s := strings.TrimSpace(fmt.Sprint(v))
	u, err := url.Parse(s)
	if err != nil {
		return "#"
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto", "tel":
		return template.URL(s)
	default:
		return "#"
	}
}
