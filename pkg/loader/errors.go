package loader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrorCategory classifies a failed batch write
type ErrorCategory int

const (
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategoryDataConversion
	ErrorCategoryConstraint
	ErrorCategoryConnection
	ErrorCategoryTimeout
	ErrorCategoryCanceled
	ErrorCategorySchema
	ErrorCategoryUnknown
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryDataConversion:
		return "DataConversion"
	case ErrorCategoryConstraint:
		return "Constraint"
	case ErrorCategoryConnection:
		return "Connection"
	case ErrorCategoryTimeout:
		return "Timeout"
	case ErrorCategoryCanceled:
		return "Canceled"
	case ErrorCategorySchema:
		return "Schema"
	case ErrorCategoryUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// Transient reports whether a retry of the same batch may succeed
func (ec ErrorCategory) Transient() bool {
	return ec == ErrorCategoryConnection || ec == ErrorCategoryTimeout
}

// ErrorRecord describes one failed batch attempt
type ErrorRecord struct {
	Category   ErrorCategory
	Batch      int
	Records    int
	FirstKey   string
	Error      error `json:"-"`
	Message    string
	Timestamp  time.Time
	RetryCount int
}

// NewErrorRecord creates a new error record with current timestamp
func NewErrorRecord(err error, category ErrorCategory) ErrorRecord {
	record := ErrorRecord{
		Category:  category,
		Error:     err,
		Timestamp: time.Now(),
	}
	if err != nil {
		record.Message = err.Error()
	}
	return record
}

// WithBatch adds batch information to the error record
func (r ErrorRecord) WithBatch(index, records int, firstKey string) ErrorRecord {
	r.Batch = index
	r.Records = records
	r.FirstKey = firstKey
	return r
}

// WithRetry sets retry information
func (r ErrorRecord) WithRetry(retryCount int) ErrorRecord {
	r.RetryCount = retryCount
	return r
}

// String returns a formatted error message
func (r ErrorRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] batch %d (%d records from %s)", r.Category, r.Batch, r.Records, r.FirstKey))
	if r.Message != "" {
		sb.WriteString(": " + r.Message)
	}
	if r.RetryCount > 0 {
		sb.WriteString(fmt.Sprintf(" (Retry: %d)", r.RetryCount))
	}
	return sb.String()
}

// ErrorHandler categorises batch failures and keeps per-category counts
type ErrorHandler struct {
	logger       *zap.Logger
	mu           sync.Mutex
	errorCounts  map[ErrorCategory]int
	sampleErrors map[ErrorCategory][]ErrorRecord
	maxSamples   int
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger:       logger,
		errorCounts:  make(map[ErrorCategory]int),
		sampleErrors: make(map[ErrorCategory][]ErrorRecord),
		maxSamples:   5,
	}
}

// CategorizeError determines the category of an error
func (eh *ErrorHandler) CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	var netErr net.Error
	msg := strings.ToLower(err.Error())

	var category ErrorCategory
	switch {
	case errors.Is(err, context.Canceled):
		category = ErrorCategoryCanceled
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(msg, "timeout"):
		category = ErrorCategoryTimeout
	case errors.As(err, &netErr),
		strings.Contains(msg, "connection"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "bad connection"),
		strings.Contains(msg, "eof"):
		category = ErrorCategoryConnection
	case strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "doesn't exist"),
		strings.Contains(msg, "unknown column"),
		strings.Contains(msg, "permission denied"):
		category = ErrorCategorySchema
	case strings.Contains(msg, "constraint"),
		strings.Contains(msg, "violat"),
		strings.Contains(msg, "too long"):
		category = ErrorCategoryConstraint
	case strings.Contains(msg, "convert"),
		strings.Contains(msg, "invalid input syntax"),
		strings.Contains(msg, "incorrect"),
		strings.Contains(msg, "encoding"):
		category = ErrorCategoryDataConversion
	default:
		category = ErrorCategoryUnknown
	}

	if eh.logger != nil {
		eh.logger.Debug("Categorized error",
			zap.String("error", err.Error()),
			zap.String("category", category.String()))
	}

	return category
}

// ShouldRetry reports whether a failed batch should be attempted again
func (eh *ErrorHandler) ShouldRetry(record ErrorRecord, maxRetries int) bool {
	return record.Category.Transient() && record.RetryCount < maxRetries
}

// RecordError saves an error occurrence
func (eh *ErrorHandler) RecordError(record ErrorRecord) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.errorCounts[record.Category]++

	samples := eh.sampleErrors[record.Category]
	if len(samples) < eh.maxSamples {
		eh.sampleErrors[record.Category] = append(samples, record)
	}

	if eh.logger != nil {
		eh.logger.Warn("Batch write failed",
			zap.String("category", record.Category.String()),
			zap.Int("batch", record.Batch),
			zap.Int("records", record.Records),
			zap.String("firstCallsign", record.FirstKey),
			zap.String("error", record.Message),
			zap.Int("retryCount", record.RetryCount))
	}
}

// GetErrorSummary returns a copy of the per-category error counts
func (eh *ErrorHandler) GetErrorSummary() map[ErrorCategory]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[ErrorCategory]int, len(eh.errorCounts))
	for category, count := range eh.errorCounts {
		summary[category] = count
	}
	return summary
}

// GetErrorSamples returns sample errors for each category
func (eh *ErrorHandler) GetErrorSamples() map[ErrorCategory][]ErrorRecord {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	samples := make(map[ErrorCategory][]ErrorRecord, len(eh.sampleErrors))
	for category, records := range eh.sampleErrors {
		categorySamples := make([]ErrorRecord, len(records))
		copy(categorySamples, records)
		samples[category] = categorySamples
	}
	return samples
}
