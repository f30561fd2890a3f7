package parser

import "fmt"

// FieldType is the declared semantic type of a positional field
type FieldType int

const (
	Text FieldType = iota
	Number
	Date
)

// String returns the name of the field type
func (t FieldType) String() string {
	switch t {
	case Text:
		return "text"
	case Number:
		return "number"
	case Date:
		return "date"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Field is one positional column of a record type
type Field struct {
	Name string
	Type FieldType
}

// Schema is the ordered field list of one record type. It is data: the
// parser has no knowledge of any particular record type.
type Schema struct {
	Name   string
	Fields []Field

	index   map[string]int
	numSlot []int // position in Record.nums, -1 for non-numeric fields
	numbers int
}

// NewSchema builds a schema from its ordered fields. It panics on a duplicate
// field name since schemas are declared at package init.
func NewSchema(name string, fields ...Field) *Schema {
	s := &Schema{
		Name:    name,
		Fields:  fields,
		index:   make(map[string]int, len(fields)),
		numSlot: make([]int, len(fields)),
	}
	for i, f := range fields {
		if _, dup := s.index[f.Name]; dup {
			panic(fmt.Sprintf("schema %s: duplicate field %q", name, f.Name))
		}
		s.index[f.Name] = i
		s.numSlot[i] = -1
		if f.Type == Number {
			s.numSlot[i] = s.numbers
			s.numbers++
		}
	}
	return s
}

// Len returns the declared field count
func (s *Schema) Len() int {
	return len(s.Fields)
}

// Index returns the position of a named field
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// FileName returns the archive member holding records of this type
func (s *Schema) FileName() string {
	return s.Name + ".dat"
}
