package reconcile

import (
	"fmt"
	"regexp"

	"github.com/1vers1on/uls-ingress/pkg/converter"
	"github.com/1vers1on/uls-ingress/pkg/model"
	"github.com/1vers1on/uls-ingress/pkg/parser"
)

// Sources holds the joined records of one call sign. AM may be nil.
type Sources struct {
	HD *parser.Record
	EN *parser.Record
	AM *parser.Record
}

func (s *Sources) text(rec *parser.Record, field string) (string, bool) {
	if rec == nil {
		return "", false
	}
	return rec.Text(field)
}

func (s *Sources) has(rec *parser.Record, field string) bool {
	_, ok := s.text(rec, field)
	return ok
}

// Rule is one step of a derivation chain
type Rule[T any] struct {
	Name    string
	When    func(*Sources) bool
	Produce func(*Sources) T
}

// Chain is an ordered list of rules; the first rule whose predicate holds
// produces the value
type Chain[T any] []Rule[T]

// Derive evaluates the chain. The second return is false when no rule applies.
func (c Chain[T]) Derive(s *Sources) (T, bool) {
	for _, rule := range c {
		if rule.When(s) {
			return rule.Produce(s), true
		}
	}
	var zero T
	return zero, false
}

// textRule produces the trimmed value of a field when it is non-blank
func textRule(name string, pick func(*Sources) *parser.Record, field string) Rule[string] {
	return Rule[string]{
		Name: name,
		When: func(s *Sources) bool { return s.has(pick(s), field) },
		Produce: func(s *Sources) string {
			v, _ := s.text(pick(s), field)
			return v
		},
	}
}

func hd(s *Sources) *parser.Record { return s.HD }
func en(s *Sources) *parser.Record { return s.EN }
func am(s *Sources) *parser.Record { return s.AM }

// OperatorName: organisation name, then "first last[ suffix]", then trustee.
var OperatorName = Chain[string]{
	textRule("entity_name", en, parser.FieldEntityName),
	{
		Name: "personal_name",
		When: func(s *Sources) bool {
			return s.has(s.EN, parser.FieldFirstName) && s.has(s.EN, parser.FieldLastName)
		},
		Produce: func(s *Sources) string {
			first, _ := s.text(s.EN, parser.FieldFirstName)
			last, _ := s.text(s.EN, parser.FieldLastName)
			name := first + " " + last
			if suffix, ok := s.text(s.EN, parser.FieldSuffix); ok {
				name += " " + suffix
			}
			return name
		},
	},
	textRule("trustee_name", am, parser.FieldTrusteeName),
}

// AddressLine1: post office box, then street address.
var AddressLine1 = Chain[string]{
	{
		Name: "po_box",
		When: func(s *Sources) bool { return s.has(s.EN, parser.FieldPOBox) },
		Produce: func(s *Sources) string {
			box, _ := s.text(s.EN, parser.FieldPOBox)
			return "P.O. Box " + box
		},
	},
	textRule("street_address", en, parser.FieldStreetAddress),
}

// AddressLine2 is the attention line.
var AddressLine2 = Chain[string]{
	textRule("attention_line", en, parser.FieldAttentionLine),
}

var postalJunk = regexp.MustCompile(`[^0-9-]`)

// MaxPostalCodeLen bounds the stored postal code
const MaxPostalCodeLen = 10

// PostalCode keeps digits and hyphens of the zip code, truncated. A zip code
// with nothing left after stripping yields no value.
var PostalCode = Chain[string]{
	{
		Name:    "zip_code",
		When:    func(s *Sources) bool { return normalizePostal(s) != "" },
		Produce: normalizePostal,
	},
}

func normalizePostal(s *Sources) string {
	raw, ok := s.text(s.EN, parser.FieldZipCode)
	if !ok {
		return ""
	}
	v := postalJunk.ReplaceAllString(raw, "")
	if len(v) > MaxPostalCodeLen {
		v = v[:MaxPostalCodeLen]
	}
	return v
}

// regionCode returns the AM region code when it is a real, non-zero number
func regionCode(s *Sources) (float64, bool) {
	if s.AM == nil {
		return 0, false
	}
	v, ok := s.AM.Number(parser.FieldRegionCode)
	if !ok || !converter.IsNumber(v) || v == 0 {
		return 0, false
	}
	return v, true
}

func regionAtMost(limit float64) func(*Sources) bool {
	return func(s *Sources) bool {
		v, ok := regionCode(s)
		return ok && v <= limit
	}
}

func zone(z int) func(*Sources) int {
	return func(*Sources) int { return z }
}

// ITUZone maps the amateur region code onto an ITU zone.
var ITUZone = Chain[int]{
	{Name: "region_1_3", When: regionAtMost(3), Produce: zone(7)},
	{Name: "region_4_6", When: regionAtMost(6), Produce: zone(6)},
	{Name: "region_other", When: func(s *Sources) bool { _, ok := regionCode(s); return ok }, Produce: zone(5)},
}

// LicenseClass is the amateur operator class.
var LicenseClass = Chain[string]{
	textRule("operator_class", am, parser.FieldOperatorClass),
}

// LicenseType is the radio service code of the header.
var LicenseType = Chain[string]{
	textRule("radio_service_code", hd, parser.FieldRadioServiceCode),
}

var statusCodes = map[string]model.LicenseStatus{
	"A": model.StatusActive,
	"E": model.StatusExpired,
	"C": model.StatusCancelled,
	"S": model.StatusSuspended,
	"R": model.StatusRevoked,
}

// DeriveStatus maps the header status code. The code must match the table
// exactly; anything else, including lower case or padded codes, maps to
// ACTIVE and the second return reports that the default was taken.
func DeriveStatus(s *Sources) (model.LicenseStatus, bool) {
	if s.HD == nil {
		return model.StatusActive, true
	}
	code, _ := s.HD.Raw(parser.FieldLicenseStatus)
	if status, ok := statusCodes[code]; ok {
		return status, false
	}
	return model.StatusActive, true
}

var amateurCallSign = regexp.MustCompile(`^[A-Z2-9][0-9A-Z]?[0-9][A-Z]{1,4}$`)

// IsStandardCallSign reports whether callsign has the shape of an amateur call sign
func IsStandardCallSign(callsign string) bool {
	return amateurCallSign.MatchString(callsign)
}

func optional(v string, ok bool) *string {
	if !ok {
		return nil
	}
	return converter.StringPtr(v)
}

// BuildLicense derives the unified entity for one joined call sign
func BuildLicense(callsign string, s *Sources) (*model.License, bool) {
	status, defaulted := DeriveStatus(s)

	l := &model.License{
		Callsign:       callsign,
		OperatorName:   optional(OperatorName.Derive(s)),
		LicenseClass:   optional(LicenseClass.Derive(s)),
		LicenseType:    optional(LicenseType.Derive(s)),
		Status:         status,
		AddressLine1:   optional(AddressLine1.Derive(s)),
		AddressLine2:   optional(AddressLine2.Derive(s)),
		City:           optional(s.text(s.EN, parser.FieldCity)),
		StateProvince:  optional(s.text(s.EN, parser.FieldState)),
		PostalCode:     optional(PostalCode.Derive(s)),
		Country:        model.DefaultCountry,
		RegulatoryBody: model.DefaultRegulatoryBody,
		FRN:            optional(s.text(s.EN, parser.FieldFRN)),
		GrantDate:      converter.TimePtr(s.HD.Date(parser.FieldGrantDate)),
		ExpirationDate: converter.TimePtr(s.HD.Date(parser.FieldExpiredDate)),
	}
	if z, ok := ITUZone.Derive(s); ok {
		l.ITUZone = &z
	}

	return l, defaulted
}

func describe(rec *parser.Record) string {
	usi, ok := rec.Number(parser.FieldSystemIdentifier)
	if !ok || !converter.IsNumber(usi) {
		raw, _ := rec.Raw(parser.FieldSystemIdentifier)
		return raw
	}
	return fmt.Sprintf("%.0f", usi)
}
