package utils

import (
	"reflect"
	"strconv"
	"strings"
)

func ParseValue(s string) interface{} {
	// Trim whitespace first
	s = strings.TrimSpace(s)

	// try int
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	// try float
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Numeric safely converts supported types to float64.
func Numeric(v interface{}) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float64:
		return val
	case float32:
		return float64(val)
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() >= reflect.Int && rv.Kind() <= reflect.Float64 {
			return rv.Convert(reflect.TypeOf(float64(0))).Float()
		}
		return 0
	}
}

// Stringify renders a decoded JSON or SQL value as a join key. Whole numbers
// lose their fractional part so 12, 12.0 and "12" all compare equal.
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return CanonicalKey(val)
	case []byte:
		return CanonicalKey(string(val))
	case bool:
		return strconv.FormatBool(val)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() >= reflect.Int && rv.Kind() <= reflect.Float64 {
		return strconv.FormatFloat(Numeric(v), 'f', -1, 64)
	}
	return ""
}

// CanonicalKey trims s and rewrites numeric strings in their shortest form.
func CanonicalKey(s string) string {
	switch v := ParseValue(s).(type) {
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return v.(string)
	}
}

// Fill wraps s into lines of at most width characters, breaking on whitespace
// and splitting words longer than width.
func Fill(s string, width int) string {
	if width < 1 {
		return s
	}
	var lines []string
	var line []rune
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		switch {
		case len(line) > 0 && len(line)+1+len(w) <= width:
			line = append(append(line, ' '), w...)
			continue
		case len(line) > 0:
			lines = append(lines, string(line))
			line = nil
		}
		for len(w) > width {
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		line = w
	}
	if len(line) > 0 {
		lines = append(lines, string(line))
	}
	return strings.Join(lines, "\n")
}

// SanitizeFileName strips hyphens, spaces and slashes from a file name part.
func SanitizeFileName(s string) string {
	return strings.NewReplacer("-", "", " ", "", "/", "").Replace(s)
}
