package model

import (
	"strings"
	"time"
)

// LicenseStatus is the lifecycle state of a license
type LicenseStatus string

const (
	StatusActive    LicenseStatus = "ACTIVE"
	StatusExpired   LicenseStatus = "EXPIRED"
	StatusSuspended LicenseStatus = "SUSPENDED"
	StatusCancelled LicenseStatus = "CANCELLED"
	StatusRevoked   LicenseStatus = "REVOKED"
)

// Statuses lists every valid LicenseStatus
var Statuses = []LicenseStatus{
	StatusActive,
	StatusExpired,
	StatusSuspended,
	StatusCancelled,
	StatusRevoked,
}

// Valid reports whether s is one of the closed set of statuses
func (s LicenseStatus) Valid() bool {
	for _, status := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// ParseLicenseStatus parses a status name case-insensitively
func ParseLicenseStatus(name string) (LicenseStatus, bool) {
	s := LicenseStatus(strings.ToUpper(strings.TrimSpace(name)))
	return s, s.Valid()
}

const (
	// DefaultCountry is the country of every license in the ULS feed
	DefaultCountry = "US"
	// DefaultRegulatoryBody is the regulator publishing the ULS feed
	DefaultRegulatoryBody = "FCC"
)

// License is the reconciled, denormalized record for one call sign.
// Optional attributes are nil when no source provided a value.
type License struct {
	Callsign       string        `db:"callsign"`
	OperatorName   *string       `db:"operator_name"`
	LicenseClass   *string       `db:"license_class"`
	LicenseType    *string       `db:"license_type"`
	Status         LicenseStatus `db:"status"`
	AddressLine1   *string       `db:"address_line1"`
	AddressLine2   *string       `db:"address_line2"`
	City           *string       `db:"city"`
	StateProvince  *string       `db:"state_province"`
	PostalCode     *string       `db:"postal_code"`
	Country        string        `db:"country"`
	ITUZone        *int          `db:"itu_zone"`
	RegulatoryBody string        `db:"regulatory_body"`
	GridSquare     *string       `db:"grid_square"`
	FRN            *string       `db:"frn"`
	GrantDate      *time.Time    `db:"grant_date"`
	ExpirationDate *time.Time    `db:"expiration_date"`
	Views          int           `db:"views"`
}

// Values returns the column values in LicenseTable column order
func (l *License) Values() []interface{} {
	return []interface{}{
		l.Callsign,
		l.OperatorName,
		l.LicenseClass,
		l.LicenseType,
		string(l.Status),
		l.AddressLine1,
		l.AddressLine2,
		l.City,
		l.StateProvince,
		l.PostalCode,
		l.Country,
		l.ITUZone,
		l.RegulatoryBody,
		l.GridSquare,
		l.FRN,
		l.GrantDate,
		l.ExpirationDate,
		l.Views,
	}
}
