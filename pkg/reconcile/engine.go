package reconcile

import (
	"time"

	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/model"
	"github.com/1vers1on/uls-ingress/pkg/parser"
)

// ShadowCounts is the number of shadowed duplicates per record type
type ShadowCounts struct {
	HD int
	EN int
	AM int
}

// Stats describes one reconciliation
type Stats struct {
	Headers   int // distinct header call signs
	Shadowed  ShadowCounts
	Unkeyed   int // records of any type without a call sign
	Unmatched int // headers with no entity record
	NoService int // joined headers with no amateur record
	Defaulted int // statuses defaulted to ACTIVE
	Excluded  int // derived but rejected by the inclusion predicate
	Emitted   int
	ByStatus  map[model.LicenseStatus]int
}

// Result is the output of a reconciliation
type Result struct {
	Licenses []model.License
	Flags    []model.AuditFlag
	Stats    Stats
}

// Engine joins the three record types into licenses
type Engine struct {
	Include Predicate
	logger  *zap.Logger
}

// NewEngine creates an Engine. A nil predicate forwards active licenses only.
func NewEngine(include Predicate, logger *zap.Logger) *Engine {
	if include == nil {
		include = DefaultInclude
	}
	return &Engine{
		Include: include,
		logger:  logger.Named("reconcile"),
	}
}

// Reconcile joins header, entity and amateur records by call sign. The header
// index drives the join and fixes the output order.
func (e *Engine) Reconcile(hdRecords, enRecords, amRecords []*parser.Record) *Result {
	startTime := time.Now()

	hdIndex := BuildIndex(hdRecords)
	enIndex := BuildIndex(enRecords)
	amIndex := BuildIndex(amRecords)

	result := &Result{
		Licenses: make([]model.License, 0, hdIndex.Len()),
		Stats: Stats{
			Headers: hdIndex.Len(),
			Shadowed: ShadowCounts{
				HD: len(hdIndex.Shadowed()),
				EN: len(enIndex.Shadowed()),
				AM: len(amIndex.Shadowed()),
			},
			Unkeyed:  hdIndex.Unkeyed() + enIndex.Unkeyed() + amIndex.Unkeyed(),
			ByStatus: make(map[model.LicenseStatus]int),
		},
	}

	for _, ix := range []*Index{hdIndex, enIndex, amIndex} {
		for _, rec := range ix.Shadowed() {
			result.flag(rec.CallSign(), rec.Schema().Name, parser.FieldSystemIdentifier,
				model.ReasonDuplicateShadowed, describe(rec))
		}
	}

	for _, callsign := range hdIndex.Keys() {
		hdRec, _ := hdIndex.Get(callsign)

		enRec, ok := enIndex.Get(callsign)
		if !ok {
			result.Stats.Unmatched++
			result.flag(callsign, parser.HD.Name, parser.FieldCallSign, model.ReasonEntityMissing, describe(hdRec))
			continue
		}

		amRec, ok := amIndex.Get(callsign)
		if !ok {
			result.Stats.NoService++
		}

		sources := &Sources{HD: hdRec, EN: enRec, AM: amRec}
		license, defaulted := BuildLicense(callsign, sources)

		if defaulted {
			result.Stats.Defaulted++
			code, _ := hdRec.Raw(parser.FieldLicenseStatus)
			result.flag(callsign, parser.HD.Name, parser.FieldLicenseStatus, model.ReasonStatusDefaulted, code)
		}
		if !IsStandardCallSign(callsign) {
			result.flag(callsign, parser.HD.Name, parser.FieldCallSign, model.ReasonNonstandardCallsign, callsign)
		}

		result.Stats.ByStatus[license.Status]++

		if !e.Include(license) {
			result.Stats.Excluded++
			continue
		}

		result.Licenses = append(result.Licenses, *license)
		result.Stats.Emitted++
	}

	e.logger.Info("Reconciliation completed",
		zap.Int("headers", result.Stats.Headers),
		zap.Int("emitted", result.Stats.Emitted),
		zap.Int("excluded", result.Stats.Excluded),
		zap.Int("unmatched", result.Stats.Unmatched),
		zap.Int("unkeyed", result.Stats.Unkeyed),
		zap.Int("statusDefaulted", result.Stats.Defaulted),
		zap.Int("shadowedHD", result.Stats.Shadowed.HD),
		zap.Int("shadowedEN", result.Stats.Shadowed.EN),
		zap.Int("shadowedAM", result.Stats.Shadowed.AM),
		zap.Duration("duration", time.Since(startTime)))

	return result
}

func (r *Result) flag(callsign, source, field string, reason model.AuditReason, value string) {
	r.Flags = append(r.Flags, model.AuditFlag{
		Callsign: callsign,
		Source:   source,
		Field:    field,
		Reason:   reason,
		Value:    value,
	})
}
