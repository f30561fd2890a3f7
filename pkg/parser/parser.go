package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/1vers1on/uls-ingress/pkg/converter"
)

// Delimiter separates positional fields. The feed has no quoting or escaping.
const Delimiter = '|'

// ParseStats summarises one parsed file
type ParseStats struct {
	Lines   int // physical lines read
	Records int // records handed to the callback
	Blank   int // blank lines skipped
	Decoded int // lines decoded as ISO-8859-1
	Short   int // records with fewer fields than the schema declares
}

// ParseLine splits one line according to schema. Blank lines yield false.
// Short lines leave trailing fields absent; extra fields are ignored.
func ParseLine(schema *Schema, line string) (*Record, bool) {
	if strings.TrimSpace(line) == "" {
		return nil, false
	}

	n := schema.Len()
	ends := make([]uint32, 0, n)
	for i := 0; i < len(line) && len(ends) < n; i++ {
		if line[i] == Delimiter {
			ends = append(ends, uint32(i))
		}
	}
	if len(ends) < n {
		ends = append(ends, uint32(len(line)))
	}

	rec := &Record{
		schema: schema,
		// Drop the unused tail so long lines do not pin extra memory
		line: line[:ends[len(ends)-1]],
		ends: ends,
	}

	if schema.numbers > 0 {
		rec.nums = make([]float64, schema.numbers)
		for i, slot := range schema.numSlot {
			if slot < 0 {
				continue
			}
			raw, _ := rec.Field(i)
			rec.nums[slot] = converter.ToNumber(raw)
		}
	}

	return rec, true
}

// ParseReader streams records from r in file order. Both LF and CRLF line
// endings are accepted and lines may be of any length. An error returned by
// fn stops parsing and is returned as is.
func ParseReader(r io.Reader, schema *Schema, fn func(*Record) error) (ParseStats, error) {
	var stats ParseStats
	br := bufio.NewReaderSize(r, 64*1024)
	var pending []byte

	for {
		chunk, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			pending = append(pending, chunk...)
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return stats, fmt.Errorf("failed to read %s records: %w", schema.Name, err)
		}

		line := chunk
		if len(pending) > 0 {
			pending = append(pending, chunk...)
			line = pending
		}

		if len(line) > 0 {
			stats.Lines++
			line = bytes.TrimRight(line, "\r\n")

			text, decoded := converter.DecodeLine(line)
			if decoded {
				stats.Decoded++
			}

			if rec, ok := ParseLine(schema, text); ok {
				if rec.Len() < schema.Len() {
					stats.Short++
				}
				stats.Records++
				if fnErr := fn(rec); fnErr != nil {
					return stats, fnErr
				}
			} else {
				stats.Blank++
			}
		}

		pending = pending[:0]
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
	}
}

// ParseFile streams the records of the file at path. Only an unreadable file
// is an error; malformed lines never are.
func ParseFile(path string, schema *Schema, fn func(*Record) error) (ParseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ParseStats{}, fmt.Errorf("failed to open %s file: %w", schema.Name, err)
	}
	defer f.Close()

	return ParseReader(f, schema, fn)
}

// ReadFile parses the whole file at path into memory
func ReadFile(path string, schema *Schema) ([]*Record, ParseStats, error) {
	var records []*Record
	stats, err := ParseFile(path, schema, func(rec *Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}
	return records, stats, nil
}
