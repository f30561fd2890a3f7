package model

import "strings"

// ColumnKind is the dialect-neutral type of a destination column
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInteger
	KindDate
)

// TableMetadata contains the structure information for a destination table
type TableMetadata struct {
	Schema      string   // Schema name, empty for the connection default
	Table       string   // Table name
	Columns     []Column // Column definitions in insert order
	PrimaryKeys []string // List of primary key column names
}

// Column represents metadata about a destination column
type Column struct {
	Name         string
	Kind         ColumnKind
	Size         int // VARCHAR length for KindText, 0 for unbounded
	Nullable     bool
	IsPrimaryKey bool
}

// LicenseTable describes the reconciled license table. Column order matches License.Values.
func LicenseTable(schema, table string) *TableMetadata {
	return &TableMetadata{
		Schema: schema,
		Table:  table,
		Columns: []Column{
			{Name: "callsign", Kind: KindText, Size: 16, IsPrimaryKey: true},
			{Name: "operator_name", Kind: KindText, Size: 255, Nullable: true},
			{Name: "license_class", Kind: KindText, Size: 8, Nullable: true},
			{Name: "license_type", Kind: KindText, Size: 8, Nullable: true},
			{Name: "status", Kind: KindText, Size: 16},
			{Name: "address_line1", Kind: KindText, Size: 255, Nullable: true},
			{Name: "address_line2", Kind: KindText, Size: 255, Nullable: true},
			{Name: "city", Kind: KindText, Size: 64, Nullable: true},
			{Name: "state_province", Kind: KindText, Size: 32, Nullable: true},
			{Name: "postal_code", Kind: KindText, Size: 10, Nullable: true},
			{Name: "country", Kind: KindText, Size: 2},
			{Name: "itu_zone", Kind: KindInteger, Nullable: true},
			{Name: "regulatory_body", Kind: KindText, Size: 16},
			{Name: "grid_square", Kind: KindText, Size: 8, Nullable: true},
			{Name: "frn", Kind: KindText, Size: 10, Nullable: true},
			{Name: "grant_date", Kind: KindDate, Nullable: true},
			{Name: "expiration_date", Kind: KindDate, Nullable: true},
			{Name: "views", Kind: KindInteger},
		},
		PrimaryKeys: []string{"callsign"},
	}
}

// QualifiedName returns schema.table, or just table when no schema is set
func (tm *TableMetadata) QualifiedName() string {
	if tm.Schema == "" {
		return tm.Table
	}
	return tm.Schema + "." + tm.Table
}

// ColumnNames returns the column names in insert order
func (tm *TableMetadata) ColumnNames() []string {
	names := make([]string, len(tm.Columns))
	for i, col := range tm.Columns {
		names[i] = col.Name
	}
	return names
}

// GetColumnByName returns a column by name (case-insensitive)
// Returns nil if column not found
func (tm *TableMetadata) GetColumnByName(name string) *Column {
	for i, col := range tm.Columns {
		if strings.EqualFold(col.Name, name) {
			return &tm.Columns[i]
		}
	}
	return nil
}
