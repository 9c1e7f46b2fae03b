package templating

import (
	"fmt"
	"reflect"
)

// repeat returns a slice of integers from 0 to count-1, capped by MaxRepeat.
func (tm *TemplateManager) repeat(count any) []int {
	n := int(num(count))
	if n < 0 {
		return []int{}
	}
	if tm.config.MaxRepeat > 0 && n > tm.config.MaxRepeat {
		n = tm.config.MaxRepeat
	}
	s := make([]int, n)
	for i := 0; i < n; i++ {
		s[i] = i
	}
	return s
}

// list returns a slice containing all the arguments passed to it.
func list(args ...any) []any {
	return args
}

// dict builds a map from alternating keys and values, for passing several
// values to a partial.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict expects an even number of arguments, got %d", len(pairs))
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %d is %T, not string", i/2, pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}

// defaultValue returns fallback when v is empty. Written as
// {{.section.settings.heading | default "Welcome"}}.
func defaultValue(fallback, v any) any {
	if !isSet(v) {
		return fallback
	}
	return v
}

// coalesce returns the first non-empty argument.
func coalesce(args ...any) any {
	for _, a := range args {
		if isSet(a) {
			return a
		}
	}
	return nil
}

// length returns the length of a string, slice or map and 0 for anything else.
func length(v any) int {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	default:
		return 0
	}
}
