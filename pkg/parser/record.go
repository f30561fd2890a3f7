package parser

import (
	"strings"
	"time"

	"github.com/1vers1on/uls-ingress/pkg/converter"
)

// Record is one parsed line. It keeps the line text and the end offset of
// each field instead of a slice of strings, which matters at a few million
// rows per run. Numeric fields are coerced once at parse time.
type Record struct {
	schema *Schema
	line   string
	ends   []uint32
	nums   []float64
}

// Schema returns the record type this record was parsed with
func (r *Record) Schema() *Schema {
	return r.schema
}

// Len returns the number of fields present, at most the schema length
func (r *Record) Len() int {
	return len(r.ends)
}

// Field returns the raw text of field i. Fields past the end of a short line
// are absent.
func (r *Record) Field(i int) (string, bool) {
	if i < 0 || i >= len(r.ends) {
		return "", false
	}
	start := uint32(0)
	if i > 0 {
		start = r.ends[i-1] + 1
	}
	return r.line[start:r.ends[i]], true
}

// Raw returns the raw text of a named field
func (r *Record) Raw(name string) (string, bool) {
	i, ok := r.schema.Index(name)
	if !ok {
		return "", false
	}
	return r.Field(i)
}

// Text returns a named field trimmed of surrounding whitespace. The second
// return is false when the field is absent or blank.
func (r *Record) Text(name string) (string, bool) {
	raw, ok := r.Raw(name)
	if !ok {
		return "", false
	}
	return converter.ToText(raw)
}

// Number returns a numeric field. The value is NaN when the field is present
// but blank or malformed; the second return is false only when absent.
func (r *Record) Number(name string) (float64, bool) {
	i, ok := r.schema.Index(name)
	if !ok || i >= len(r.ends) {
		return converter.ToNumber(""), false
	}
	slot := r.schema.numSlot[i]
	if slot < 0 {
		raw, _ := r.Field(i)
		return converter.ToNumber(raw), true
	}
	return r.nums[slot], true
}

// Date returns a MM/DD/YYYY field. The second return is false when the field
// is absent, blank or not a valid date.
func (r *Record) Date(name string) (time.Time, bool) {
	raw, ok := r.Raw(name)
	if !ok {
		return time.Time{}, false
	}
	return converter.ToDate(raw)
}

// CallSign returns the normalized identity of the record
func (r *Record) CallSign() string {
	v, _ := r.Text(FieldCallSign)
	return strings.ToUpper(v)
}
