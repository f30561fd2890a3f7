package converter

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var latin1 = charmap.ISO8859_1.NewDecoder()

// DecodeLine returns line as UTF-8. Lines that are not valid UTF-8 are
// decoded as ISO-8859-1, and the second return reports that this happened.
func DecodeLine(line []byte) (string, bool) {
	if utf8.Valid(line) {
		return string(line), false
	}
	decoded, err := latin1.Bytes(line)
	if err != nil {
		// ISO-8859-1 maps every byte, so this is unreachable in practice
		return string(line), false
	}
	return string(decoded), true
}
