package audit

import (
	"context"
	"sort"

	"github.com/1vers1on/uls-ingress/pkg/model"
)

// Sink receives the audit flags produced by one run
type Sink interface {
	Flush(ctx context.Context, runID string, flags []model.AuditFlag) (int, error)
}

// ReasonCount is the number of flags raised for one reason
type ReasonCount struct {
	Reason model.AuditReason
	Count  int
}

// Summarize counts flags per reason, most frequent first
func Summarize(flags []model.AuditFlag) []ReasonCount {
	counts := make(map[model.AuditReason]int)
	for _, f := range flags {
		counts[f.Reason]++
	}

	out := make([]ReasonCount, 0, len(counts))
	for reason, n := range counts {
		out = append(out, ReasonCount{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}
