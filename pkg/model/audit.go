package model

// AuditReason names a policy decision taken while reconciling a call sign
type AuditReason string

const (
	// ReasonStatusDefaulted marks a header status code outside the known table mapped to ACTIVE
	ReasonStatusDefaulted AuditReason = "status_defaulted"
	// ReasonDuplicateShadowed marks a later row for a call sign already indexed from the same file
	ReasonDuplicateShadowed AuditReason = "duplicate_shadowed"
	// ReasonEntityMissing marks a header with no matching entity row
	ReasonEntityMissing AuditReason = "entity_missing"
	// ReasonNonstandardCallsign marks an identity that does not look like an amateur call sign
	ReasonNonstandardCallsign AuditReason = "nonstandard_callsign"
)

// AuditFlag records one data-quality observation made during a run
type AuditFlag struct {
	RunID    string      `db:"run_id"`
	Callsign string      `db:"callsign"`
	Source   string      `db:"source"`
	Field    string      `db:"field"`
	Reason   AuditReason `db:"reason"`
	Value    string      `db:"value"`
}
