package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/model"
)

// LogOnly reports flag counts to the log instead of persisting them
type LogOnly struct {
	logger *zap.Logger
}

// NewLogOnly creates a LogOnly sink
func NewLogOnly(logger *zap.Logger) *LogOnly {
	return &LogOnly{logger: logger.Named("audit")}
}

// Flush logs a per-reason summary of flags
func (l *LogOnly) Flush(_ context.Context, runID string, flags []model.AuditFlag) (int, error) {
	for _, rc := range Summarize(flags) {
		l.logger.Info("Audit flags",
			zap.String("runId", runID),
			zap.String("reason", string(rc.Reason)),
			zap.Int("count", rc.Count))
	}
	return len(flags), nil
}
