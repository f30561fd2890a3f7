package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/1vers1on/uls-ingress/pkg/loader"
	"github.com/1vers1on/uls-ingress/pkg/model"
	"github.com/1vers1on/uls-ingress/pkg/parser"
	"github.com/1vers1on/uls-ingress/pkg/reconcile"
)

// Run statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// RunSummary describes one pipeline run
type RunSummary struct {
	RunID     string
	Status    string
	StartTime time.Time
	EndTime   time.Time

	ArchiveBytes int64
	Parsed       map[string]parser.ParseStats // keyed by record type
	Reconcile    *reconcile.Stats
	Load         *loader.Summary
	AuditFlags   int
	AuditWritten int
	CleanedUp    bool
}

func newRunSummary(runID string) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		StartTime: time.Now(),
		Parsed:    make(map[string]parser.ParseStats),
	}
}

func (s *RunSummary) complete(status string) {
	s.Status = status
	s.EndTime = time.Now()
}

// Duration returns the total duration of the run
func (s *RunSummary) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Report renders a human-readable run report
func (s *RunSummary) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, `
ULS Ingest Report
=================
Run ID:                  %s
Status:                  %s
Duration:                %s
Start Time:              %s
End Time:                %s
Archive Size:            %s
`,
		s.RunID,
		s.Status,
		formatDuration(s.Duration()),
		s.StartTime.Format(time.RFC3339),
		s.EndTime.Format(time.RFC3339),
		formatBytes(s.ArchiveBytes),
	)

	if len(s.Parsed) > 0 {
		b.WriteString("\nParsed Files\n------------\n")
		names := make([]string, 0, len(s.Parsed))
		for name := range s.Parsed {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			st := s.Parsed[name]
			fmt.Fprintf(&b, "- %s: %d records, %d blank, %d short, %d decoded\n",
				name, st.Records, st.Blank, st.Short, st.Decoded)
		}
	}

	if r := s.Reconcile; r != nil {
		fmt.Fprintf(&b, `
Reconciliation
--------------
Header Call Signs:       %d
Emitted:                 %d (%.1f%%)
Excluded:                %d (%.1f%%)
Unmatched:               %d (%.1f%%)
Unkeyed Records:         %d
Statuses Defaulted:      %d
Shadowed (HD/EN/AM):     %d/%d/%d
Audit Flags:             %d (%d written)
`,
			r.Headers,
			r.Emitted, percentage(float64(r.Emitted), float64(r.Headers)),
			r.Excluded, percentage(float64(r.Excluded), float64(r.Headers)),
			r.Unmatched, percentage(float64(r.Unmatched), float64(r.Headers)),
			r.Unkeyed,
			r.Defaulted,
			r.Shadowed.HD, r.Shadowed.EN, r.Shadowed.AM,
			s.AuditFlags, s.AuditWritten,
		)

		if len(r.ByStatus) > 0 {
			b.WriteString("\nBy Status\n---------\n")
			for _, status := range model.Statuses {
				if n, ok := r.ByStatus[status]; ok {
					fmt.Fprintf(&b, "- %s: %d\n", status, n)
				}
			}
		}
	}

	if l := s.Load; l != nil {
		fmt.Fprintf(&b, `
Load
----
Offered:                 %d
Inserted:                %d (%.1f%%)
Skipped (existing):      %d (%.1f%%)
Failed:                  %d (%.1f%%)
Batches:                 %d (%d failed, %d retries)
Average Throughput:      %.2f records/sec
`,
			l.Offered,
			l.Inserted, percentage(float64(l.Inserted), float64(l.Offered)),
			l.Skipped, percentage(float64(l.Skipped), float64(l.Offered)),
			l.FailedRecords, percentage(float64(l.FailedRecords), float64(l.Offered)),
			l.Batches, l.FailedBatches, l.Retries,
			l.RecordsPerSecond(),
		)

		if v := l.Verification; v != nil {
			fmt.Fprintf(&b, "Row Count Verified:      %t (%d -> %d, expected %d)\n", v.Match, v.Before, v.After, v.Expected)
		}

		if len(l.Errors) > 0 {
			b.WriteString("\nError Distribution\n------------------\n")
			total := 0
			for _, n := range l.Errors {
				total += n
			}
			categories := make([]loader.ErrorCategory, 0, len(l.Errors))
			for c := range l.Errors {
				categories = append(categories, c)
			}
			sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
			for _, c := range categories {
				fmt.Fprintf(&b, "- %s: %d (%.1f%%)\n", c, l.Errors[c], percentage(float64(l.Errors[c]), float64(total)))
			}

			b.WriteString("\nSample Errors\n-------------\n")
			for _, c := range categories {
				for _, sample := range l.ErrorSamples[c] {
					fmt.Fprintf(&b, "- %s\n", sample)
				}
			}
		}
	}

	return b.String()
}

// ToJSON serializes the summary
func (s *RunSummary) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// formatBytes converts bytes to a human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// percentage safely calculates a percentage, avoiding division by zero
func percentage(value, total float64) float64 {
	if total == 0 {
		return 0
	}
	return (value / total) * 100
}
