package templating

import (
	"fmt"
	"html/template"
	"math"
	"sort"
	"strconv"
	"strings"
)

// rgba is a parsed CSS color.
type rgba struct {
	r, g, b float64
	a       float64
}

// parseColor accepts #rgb, #rgba, #rrggbb, #rrggbbaa and rgb()/rgba() notation.
func parseColor(v any) (rgba, bool) {
	s, ok := v.(string)
	if !ok {
		return rgba{}, false
	}
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.HasPrefix(s, "#") {
		hex := s[1:]
		if len(hex) == 3 || len(hex) == 4 {
			var b strings.Builder
			for _, c := range hex {
				b.WriteRune(c)
				b.WriteRune(c)
			}
			hex = b.String()
		}
		if len(hex) != 6 && len(hex) != 8 {
			return rgba{}, false
		}
		n, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return rgba{}, false
		}
		if len(hex) == 6 {
			n = n<<8 | 0xff
		}
		return rgba{
			r: float64(n >> 24 & 0xff),
			g: float64(n >> 16 & 0xff),
			b: float64(n >> 8 & 0xff),
			a: float64(n&0xff) / 255,
		}, true
	}
	if strings.HasPrefix(s, "rgb") {
		open, end := strings.IndexByte(s, '('), strings.IndexByte(s, ')')
		if open < 0 || end < open {
			return rgba{}, false
		}
		parts := strings.FieldsFunc(s[open+1:end], func(r rune) bool { return r == ',' || r == ' ' || r == '/' })
		if len(parts) != 3 && len(parts) != 4 {
			return rgba{}, false
		}
		c := rgba{a: 1}
		vals := []*float64{&c.r, &c.g, &c.b, &c.a}
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSuffix(p, "%"), 64)
			if err != nil {
				return rgba{}, false
			}
			if strings.HasSuffix(p, "%") {
				if i == 3 {
					f /= 100
				} else {
					f = f * 255 / 100
				}
			}
			*vals[i] = f
		}
		return c, true
	}
	return rgba{}, false
}

func clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}

func (c rgba) String() string {
	r, g, b := int(math.Round(clamp(c.r, 0, 255))), int(math.Round(clamp(c.g, 0, 255))), int(math.Round(clamp(c.b, 0, 255)))
	if c.a >= 1 {
		return fmt.Sprintf("#%02x%02x%02x", r, g, b)
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, b, strconv.FormatFloat(math.Round(clamp(c.a, 0, 1)*100)/100, 'f', -1, 64))
}

// mix moves each channel towards target by amount in [0,1].
func (c rgba) mix(target, amount float64) rgba {
	amount = clamp(amount, 0, 1)
	c.r += (target - c.r) * amount
	c.g += (target - c.g) * amount
	c.b += (target - c.b) * amount
	return c
}

// percent reads amounts written either as 0.2 or as 20.
func percent(v any) float64 {
	f := num(v)
	if f > 1 {
		f /= 100
	}
	return f
}

// lighten mixes a color towards white. Unparseable colors are returned as is.
func lighten(amount, color any) string {
	c, ok := parseColor(color)
	if !ok {
		return fmt.Sprint(color)
	}
	return c.mix(255, percent(amount)).String()
}

// darken mixes a color towards black.
func darken(amount, color any) string {
	c, ok := parseColor(color)
	if !ok {
		return fmt.Sprint(color)
	}
	return c.mix(0, percent(amount)).String()
}

// alpha sets the opacity of a color.
func alpha(amount, color any) string {
	c, ok := parseColor(color)
	if !ok {
		return fmt.Sprint(color)
	}
	c.a = percent(amount)
	return c.String()
}

// contrastColor picks black or white text for a background color using the
// WCAG relative luminance.
func contrastColor(color any) string {
	c, ok := parseColor(color)
	if !ok {
		return "#000000"
	}
	channel := func(v float64) float64 {
		v /= 255
		if v <= 0.03928 {
			return v / 12.92
		}
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	lum := 0.2126*channel(c.r) + 0.7152*channel(c.g) + 0.0722*channel(c.b)
	if lum > 0.179 {
		return "#000000"
	}
	return "#ffffff"
}

// cssValue strips characters that could end a declaration or a style element.
func cssValue(v any) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '{', '}', ';':
			return -1
		}
		return r
	}, fmt.Sprint(v))
}

// cssVars renders a style attribute value declaring one custom property per
// string or number entry of a settings map, in key order.
func cssVars(prefix string, settings map[string]any) template.CSS {
	keys := make([]string, 0, len(settings))
	for k, v := range settings {
		switch v.(type) {
		case string, int, float64, bool:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var builder strings.Builder
	for i, k := range keys {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString("--")
		if prefix != "" {
			builder.WriteString(prefix)
			builder.WriteByte('-')
		}
		builder.WriteString(strings.ReplaceAll(k, "_", "-"))
		builder.WriteString(": ")
		builder.WriteString(cssValue(settings[k]))
		builder.WriteByte(';')
	}
	return template.CSS(builder.String())
}

// px formats a number as a pixel length.
func px(v any) string {
	return fmt.Sprint(numResult(num(v))) + "px"
}
