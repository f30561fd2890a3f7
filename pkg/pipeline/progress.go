package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultProgressInterval is the minimum time between two progress lines
const DefaultProgressInterval = 5 * time.Second

// ProgressLogger turns frequent progress callbacks into occasional log lines.
// The first and the final update are always logged.
type ProgressLogger struct {
	mu       sync.Mutex
	logger   *zap.Logger
	phase    string
	unit     string
	interval time.Duration
	now      func() time.Time
	started  time.Time
	last     time.Time
	lines    int
}

// NewProgressLogger creates a ProgressLogger for one phase, e.g. "download" in "bytes"
func NewProgressLogger(logger *zap.Logger, phase, unit string, interval time.Duration) *ProgressLogger {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &ProgressLogger{
		logger:   logger,
		phase:    phase,
		unit:     unit,
		interval: interval,
		now:      time.Now,
	}
}

// Update reports done out of total. A non-positive total means unknown.
func (p *ProgressLogger) Update(done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.started.IsZero() {
		p.started = now
	}

	final := total > 0 && done >= total
	if p.lines > 0 && !final && now.Sub(p.last) < p.interval {
		return
	}
	p.last = now
	p.lines++

	fields := []zap.Field{
		zap.String("phase", p.phase),
		zap.Int64(p.unit, done),
		zap.Duration("elapsed", now.Sub(p.started)),
	}
	if total > 0 {
		fields = append(fields,
			zap.Int64("total", total),
			zap.Float64("percent", percentage(float64(done), float64(total))))
	}
	if elapsed := now.Sub(p.started).Seconds(); elapsed > 0 {
		fields = append(fields, zap.Float64("perSecond", float64(done)/elapsed))
	}

	p.logger.Info("Progress", fields...)
}

// Lines returns how many progress lines were written
func (p *ProgressLogger) Lines() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines
}
