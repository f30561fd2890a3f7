package parser

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaLengths(t *testing.T) {
	assert.Equal(t, 59, HD.Len())
	assert.Equal(t, 30, EN.Len())
	assert.Equal(t, 18, AM.Len())
	assert.Equal(t, "HD.dat", HD.FileName())

	for _, schema := range Schemas {
		i, ok := schema.Index(FieldCallSign)
		require.True(t, ok, schema.Name)
		assert.Equal(t, 4, i, schema.Name)
	}

	i, ok := EN.Index(FieldFRN)
	require.True(t, ok)
	assert.Equal(t, 22, i)

	i, ok = AM.Index(FieldTrusteeName)
	require.True(t, ok)
	assert.Equal(t, 17, i)
}

func TestNewSchemaRejectsDuplicateFields(t *testing.T) {
	assert.Panics(t, func() {
		NewSchema("XX", Field{"a", Text}, Field{"a", Number})
	})
}

func TestParseLineBlank(t *testing.T) {
	_, ok := ParseLine(AM, "")
	assert.False(t, ok)
	_, ok = ParseLine(AM, "   \t ")
	assert.False(t, ok)
}

func TestParseLineShortLine(t *testing.T) {
	rec, ok := ParseLine(AM, "AM|123|0001|EBF|W1AW")
	require.True(t, ok)

	assert.Equal(t, 5, rec.Len())
	assert.Equal(t, "W1AW", rec.CallSign())

	_, present := rec.Raw(FieldOperatorClass)
	assert.False(t, present)

	region, present := rec.Number(FieldRegionCode)
	assert.False(t, present)
	assert.True(t, math.IsNaN(region))

	_, present = rec.Text(FieldTrusteeName)
	assert.False(t, present)
}

func TestParseLineNumericSentinel(t *testing.T) {
	rec, ok := ParseLine(AM, "AM|abc|0001|EBF|W1AW|E||4|")
	require.True(t, ok)

	usi, present := rec.Number(FieldSystemIdentifier)
	assert.True(t, present)
	assert.True(t, math.IsNaN(usi))

	region, present := rec.Number(FieldRegionCode)
	assert.True(t, present)
	assert.Equal(t, 4.0, region)

	class, ok := rec.Text(FieldOperatorClass)
	assert.True(t, ok)
	assert.Equal(t, "E", class)
}

func TestParseLineIgnoresExtraFields(t *testing.T) {
	line := "AM|1|f|e|K1ABC|G|g|2|t|i|p|v|s|c|r|pc|po|Jane Trustee|extra|more"
	rec, ok := ParseLine(AM, line)
	require.True(t, ok)

	assert.Equal(t, AM.Len(), rec.Len())
	name, ok := rec.Text(FieldTrusteeName)
	assert.True(t, ok)
	assert.Equal(t, "Jane Trustee", name)

	_, ok = rec.Field(AM.Len())
	assert.False(t, ok)
}

func TestParseLineDates(t *testing.T) {
	fields := make([]string, HD.Len())
	fields[0] = "HD"
	fields[4] = "KR4FNZ"
	fields[7] = "03/15/2021"
	fields[8] = "03/15/2031"
	rec, ok := ParseLine(HD, strings.Join(fields, "|"))
	require.True(t, ok)

	grant, ok := rec.Date(FieldGrantDate)
	require.True(t, ok)
	assert.Equal(t, time.Date(2021, time.March, 15, 0, 0, 0, 0, time.UTC), grant)

	_, ok = rec.Date(FieldCancellationDate)
	assert.False(t, ok)

	_, ok = rec.Raw("no_such_field")
	assert.False(t, ok)
}

func TestParseReader(t *testing.T) {
	input := "AM|1|a|b|K1AAA|E\r\n" +
		"\n" +
		"   \n" +
		"AM|2|a|b|K1BBB|G||3\n" +
		"AM|3|a|b|K1CCC|T\xe9\n" +
		"AM|4|a|b|k1ddd|A"

	var calls []string
	stats, err := ParseReader(strings.NewReader(input), AM, func(rec *Record) error {
		calls = append(calls, rec.CallSign())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"K1AAA", "K1BBB", "K1CCC", "K1DDD"}, calls)
	assert.Equal(t, ParseStats{Lines: 6, Records: 4, Blank: 2, Decoded: 1, Short: 4}, stats)
}

func TestParseReaderCRLFDoesNotLeakIntoLastField(t *testing.T) {
	var got string
	_, err := ParseReader(strings.NewReader("AM|1|a|b|K1AAA|E\r\n"), AM, func(rec *Record) error {
		got, _ = rec.Raw(FieldOperatorClass)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "E", got)
}

func TestParseReaderLongLine(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	input := "AM|1|a|b|K1AAA|" + long + "\nAM|2|a|b|K1BBB|E\n"

	var classes []int
	_, err := ParseReader(strings.NewReader(input), AM, func(rec *Record) error {
		class, _ := rec.Raw(FieldOperatorClass)
		classes = append(classes, len(class))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{len(long), 1}, classes)
}

func TestParseReaderCallbackError(t *testing.T) {
	stop := errors.New("stop")
	stats, err := ParseReader(strings.NewReader("AM|1|a|b|K1AAA\nAM|2|a|b|K1BBB\n"), AM, func(*Record) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, stats.Records)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, EN.FileName())
	require.NoError(t, os.WriteFile(path, []byte("EN|1|f|e|KR4FNZ|L||||\nEN|2|f|e|W1AW|L\n"), 0o600))

	records, stats, err := ReadFile(path, EN)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, "W1AW", records[1].CallSign())

	_, _, err = ReadFile(filepath.Join(dir, "missing.dat"), EN)
	assert.Error(t, err)
}
