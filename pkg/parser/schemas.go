package parser

// Field names shared by the three record types
const (
	FieldRecordType       = "record_type"
	FieldSystemIdentifier = "unique_system_identifier"
	FieldCallSign         = "call_sign"
)

// HD (license header) field names read during reconciliation
const (
	FieldLicenseStatus    = "license_status"
	FieldRadioServiceCode = "radio_service_code"
	FieldGrantDate        = "grant_date"
	FieldExpiredDate      = "expired_date"
	FieldCancellationDate = "cancellation_date"
	FieldEffectiveDate    = "effective_date"
	FieldLastActionDate   = "last_action_date"
)

// EN (entity) field names read during reconciliation
const (
	FieldEntityName    = "entity_name"
	FieldFirstName     = "first_name"
	FieldLastName      = "last_name"
	FieldSuffix        = "suffix"
	FieldStreetAddress = "street_address"
	FieldCity          = "city"
	FieldState         = "state"
	FieldZipCode       = "zip_code"
	FieldPOBox         = "po_box"
	FieldAttentionLine = "attention_line"
	FieldFRN           = "frn"
)

// AM (amateur) field names read during reconciliation
const (
	FieldOperatorClass = "operator_class"
	FieldRegionCode    = "region_code"
	FieldTrusteeName   = "trustee_name"
)

// HD describes the license header record, one per license.
var HD = NewSchema("HD",
	Field{FieldRecordType, Text},
	Field{FieldSystemIdentifier, Number},
	Field{"uls_file_number", Text},
	Field{"ebf_number", Text},
	Field{FieldCallSign, Text},
	Field{FieldLicenseStatus, Text},
	Field{FieldRadioServiceCode, Text},
	Field{FieldGrantDate, Date},
	Field{FieldExpiredDate, Date},
	Field{FieldCancellationDate, Date},
	Field{"eligibility_rule_num", Text},
	Field{"applicant_type_code_reserved", Text},
	Field{"alien", Text},
	Field{"alien_government", Text},
	Field{"alien_corporation", Text},
	Field{"alien_officer", Text},
	Field{"alien_control", Text},
	Field{"revoked", Text},
	Field{"convicted", Text},
	Field{"adjudged", Text},
	Field{"involved_reserved", Text},
	Field{"common_carrier", Text},
	Field{"non_common_carrier", Text},
	Field{"private_comm", Text},
	Field{"fixed", Text},
	Field{"mobile", Text},
	Field{"radiolocation", Text},
	Field{"satellite", Text},
	Field{"developmental_or_sta", Text},
	Field{"interconnected_service", Text},
	Field{"certifier_first_name", Text},
	Field{"certifier_mi", Text},
	Field{"certifier_last_name", Text},
	Field{"certifier_suffix", Text},
	Field{"certifier_title", Text},
	Field{"sex", Text},
	Field{"african_american", Text},
	Field{"native_american", Text},
	Field{"hawaiian", Text},
	Field{"asian", Text},
	Field{"white", Text},
	Field{"ethnicity", Text},
	Field{FieldEffectiveDate, Date},
	Field{FieldLastActionDate, Date},
	Field{"auction_id", Number},
	Field{"reg_stat_broad_serv", Text},
	Field{"band_manager", Text},
	Field{"type_serv_broad_serv", Text},
	Field{"alien_ruling", Text},
	Field{"licensee_name_change", Text},
	Field{"whitespace_ind", Text},
	Field{"additional_cert_choice", Text},
	Field{"additional_cert_answer", Text},
	Field{"discontinuation_ind", Text},
	Field{"regulatory_compliance_ind", Text},
	Field{"eligibility_cert_900", Text},
	Field{"transition_plan_cert_900", Text},
	Field{"return_spectrum_cert_900", Text},
	Field{"payment_cert_900", Text},
)

// EN describes the entity record: licensee name, address and identifiers.
var EN = NewSchema("EN",
	Field{FieldRecordType, Text},
	Field{FieldSystemIdentifier, Number},
	Field{"uls_file_number", Text},
	Field{"ebf_number", Text},
	Field{FieldCallSign, Text},
	Field{"entity_type", Text},
	Field{"licensee_id", Text},
	Field{FieldEntityName, Text},
	Field{FieldFirstName, Text},
	Field{"mi", Text},
	Field{FieldLastName, Text},
	Field{FieldSuffix, Text},
	Field{"phone", Text},
	Field{"fax", Text},
	Field{"email", Text},
	Field{FieldStreetAddress, Text},
	Field{FieldCity, Text},
	Field{FieldState, Text},
	Field{FieldZipCode, Text},
	Field{FieldPOBox, Text},
	Field{FieldAttentionLine, Text},
	Field{"sgin", Text},
	Field{FieldFRN, Text},
	Field{"applicant_type_code", Text},
	Field{"applicant_type_other", Text},
	Field{"status_code", Text},
	Field{"status_date", Date},
	Field{"lic_category_code", Text},
	Field{"linked_license_id", Number},
	Field{"linked_callsign", Text},
)

// AM describes the amateur-service record: operator class, region and trustee.
var AM = NewSchema("AM",
	Field{FieldRecordType, Text},
	Field{FieldSystemIdentifier, Number},
	Field{"uls_file_num", Text},
	Field{"ebf_number", Text},
	Field{FieldCallSign, Text},
	Field{FieldOperatorClass, Text},
	Field{"group_code", Text},
	Field{FieldRegionCode, Number},
	Field{"trustee_call_sign", Text},
	Field{"trustee_indicator", Text},
	Field{"physician_certification", Text},
	Field{"ve_signature", Text},
	Field{"systematic_call_sign_change", Text},
	Field{"vanity_call_sign_change", Text},
	Field{"vanity_relationship", Text},
	Field{"previous_call_sign", Text},
	Field{"previous_operator_class", Text},
	Field{FieldTrusteeName, Text},
)

// Schemas lists the record types in the order their files are parsed
var Schemas = []*Schema{HD, EN, AM}
