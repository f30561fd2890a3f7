package reconcile

import (
	"github.com/1vers1on/uls-ingress/pkg/parser"
)

// Index maps a call sign to the first record seen for it. Later records with
// the same call sign are shadowed: kept aside for reporting, never merged.
type Index struct {
	keys     []string
	records  map[string]*parser.Record
	shadowed []*parser.Record
	unkeyed  int
}

// BuildIndex indexes records by call sign, first occurrence wins
func BuildIndex(records []*parser.Record) *Index {
	ix := &Index{
		keys:    make([]string, 0, len(records)),
		records: make(map[string]*parser.Record, len(records)),
	}
	for _, rec := range records {
		ix.add(rec)
	}
	return ix
}

func (ix *Index) add(rec *parser.Record) {
	key := rec.CallSign()
	if key == "" {
		ix.unkeyed++
		return
	}
	if _, exists := ix.records[key]; exists {
		ix.shadowed = append(ix.shadowed, rec)
		return
	}
	ix.records[key] = rec
	ix.keys = append(ix.keys, key)
}

// Get returns the authoritative record for a call sign
func (ix *Index) Get(callsign string) (*parser.Record, bool) {
	rec, ok := ix.records[callsign]
	return rec, ok
}

// Keys returns the indexed call signs in first-occurrence order
func (ix *Index) Keys() []string {
	return ix.keys
}

// Len returns the number of distinct call signs
func (ix *Index) Len() int {
	return len(ix.keys)
}

// Shadowed returns the records hidden behind an earlier duplicate
func (ix *Index) Shadowed() []*parser.Record {
	return ix.shadowed
}

// Unkeyed returns the number of records without a call sign
func (ix *Index) Unkeyed() int {
	return ix.unkeyed
}
