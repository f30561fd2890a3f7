package acquire

import (
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// zapLeveledLogger adapts zap to retryablehttp.LeveledLogger
type zapLeveledLogger struct {
	sugar *zap.SugaredLogger
}

var _ retryablehttp.LeveledLogger = (*zapLeveledLogger)(nil)

func newLeveledLogger(logger *zap.Logger) *zapLeveledLogger {
	return &zapLeveledLogger{sugar: logger.Sugar()}
}

func (l *zapLeveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *zapLeveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *zapLeveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *zapLeveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}
