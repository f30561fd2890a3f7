package converter

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the MM/DD/YYYY layout used by every date field in the feed
const DateLayout = "01/02/2006"

// ToNumber converts a raw numeric field. Blank or malformed input yields NaN,
// never an error.
func ToNumber(raw string) float64 {
	v := strings.TrimSpace(raw)
	if v == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// IsNumber reports whether f carries a real value rather than the NaN sentinel
func IsNumber(f float64) bool {
	return !math.IsNaN(f)
}

// ToDate parses a MM/DD/YYYY field. The second return is false for blank or
// unparseable input.
func ToDate(raw string) (time.Time, bool) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ToText trims a text field. The second return is false when nothing but
// whitespace remains.
func ToText(raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	return v, v != ""
}

// StringPtr returns nil for an empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// TimePtr returns nil when ok is false
func TimePtr(t time.Time, ok bool) *time.Time {
	if !ok {
		return nil
	}
	return &t
}
