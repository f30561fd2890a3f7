package loader

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Counter is implemented by stores that can report their row count
type Counter interface {
	CountRows(ctx context.Context) (int64, error)
}

// Verification compares the row count delta against the inserted count
type Verification struct {
	Before   int64
	After    int64
	Expected int64
	Match    bool
}

// Verifier checks a load against the store's row count
type Verifier struct {
	counter Counter
	logger  *zap.Logger
	timeout time.Duration
}

// NewVerifier creates a new verifier
func NewVerifier(counter Counter, logger *zap.Logger) *Verifier {
	return &Verifier{
		counter: counter,
		logger:  logger,
		timeout: 5 * time.Minute,
	}
}

// WithTimeout sets a custom timeout for verification operations
func (v *Verifier) WithTimeout(timeout time.Duration) *Verifier {
	v.timeout = timeout
	return v
}

// Count returns the current row count of the store
func (v *Verifier) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	n, err := v.counter.CountRows(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

// VerifyRowCount checks that the store grew by exactly inserted rows since before
func (v *Verifier) VerifyRowCount(ctx context.Context, before, inserted int64) (*Verification, error) {
	after, err := v.Count(ctx)
	if err != nil {
		return nil, err
	}

	result := &Verification{
		Before:   before,
		After:    after,
		Expected: before + inserted,
	}
	result.Match = result.After == result.Expected

	if result.Match {
		v.logger.Info("Row count verification successful",
			zap.Int64("count", after),
			zap.Int64("inserted", inserted))
	} else {
		// Concurrent writers to the same table also land here
		v.logger.Warn("Row count mismatch",
			zap.Int64("before", before),
			zap.Int64("after", after),
			zap.Int64("expected", result.Expected),
			zap.Int64("difference", after-result.Expected))
	}

	return result, nil
}
