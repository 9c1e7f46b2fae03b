package templating

import (
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Setting numbers reach templates as int when integral and float64 otherwise,
// so arithmetic helpers accept any numeric-looking value.

// toFloat converts numbers, numeric strings and bools to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// num is toFloat with 0 for anything unconvertible.
func num(v any) float64 {
	f, _ := toFloat(v)
	return f
}

// numResult returns an int when f is integral so templates print "3", not "3.0".
func numResult(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}

// add returns a + b.
func add(a, b any) any {
	return numResult(num(a) + num(b))
}

// sub returns a - b.
func sub(a, b any) any {
	return numResult(num(a) - num(b))
}

// div returns a / b. Returns 0 if b is 0.
func div(a, b any) any {
	d := num(b)
	if d == 0 {
		return 0
	}
	return numResult(num(a) / d)
}

// mult returns a * b.
func mult(a, b any) any {
	return numResult(num(a) * num(b))
}

// maxOf returns the larger of a and b.
func maxOf(a, b any) any {
	return numResult(math.Max(num(a), num(b)))
}

// minOf returns the smaller of a and b.
func minOf(a, b any) any {
	return numResult(math.Min(num(a), num(b)))
}

// mod returns a % b on the integer parts. Returns 0 if b is 0.
func mod(a, b any) int {
	d := int(num(b))
	if d == 0 {
		return 0
	}
	return int(num(a)) % d
}

// inc returns i + 1.
func inc(i any) any {
	return numResult(num(i) + 1)
}

// dec returns i - 1.
func dec(i any) any {
	return numResult(num(i) - 1)
}

// round rounds to the given number of decimal places.
func round(v any, places int) any {
	p := math.Pow(10, float64(places))
	return numResult(math.Round(num(v)*p) / p)
}

// isSet returns true if a value is not its zero value.
func isSet(val any) bool {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return false
	}
	return !v.IsZero()
}
