package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLicenseStatus(t *testing.T) {
	s, ok := ParseLicenseStatus(" revoked ")
	require.True(t, ok)
	assert.Equal(t, StatusRevoked, s)

	_, ok = ParseLicenseStatus("PENDING")
	assert.False(t, ok)
}

func TestLicenseTableMatchesValues(t *testing.T) {
	table := LicenseTable("", "callsigns")
	l := &License{Callsign: "KR4FNZ", Status: StatusActive, Country: DefaultCountry, RegulatoryBody: DefaultRegulatoryBody}

	assert.Len(t, l.Values(), len(table.Columns))
	assert.Equal(t, "callsigns", table.QualifiedName())
	assert.Equal(t, "public.callsigns", LicenseTable("public", "callsigns").QualifiedName())

	col := table.GetColumnByName("CALLSIGN")
	require.NotNil(t, col)
	assert.True(t, col.IsPrimaryKey)
	assert.Nil(t, table.GetColumnByName("missing"))
	assert.Equal(t, "callsign", table.ColumnNames()[0])
	assert.Equal(t, "views", table.ColumnNames()[len(table.Columns)-1])
}
