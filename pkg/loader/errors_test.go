package loader

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestCategorizeError(t *testing.T) {
	eh := NewErrorHandler(zaptest.NewLogger(t))

	tests := []struct {
		err  error
		want ErrorCategory
	}{
		{err: nil, want: ErrorCategoryNone},
		{err: fmt.Errorf("insert: %w", context.Canceled), want: ErrorCategoryCanceled},
		{err: context.DeadlineExceeded, want: ErrorCategoryTimeout},
		{err: errors.New("read tcp: i/o timeout"), want: ErrorCategoryTimeout},
		{err: errors.New("dial tcp: connection refused"), want: ErrorCategoryConnection},
		{err: errors.New("unexpected EOF"), want: ErrorCategoryConnection},
		{err: errors.New(`pq: relation "callsigns" does not exist`), want: ErrorCategorySchema},
		{err: errors.New("Error 1406 (22001): Data too long for column 'city'"), want: ErrorCategoryConstraint},
		{err: errors.New("pq: invalid input syntax for type date"), want: ErrorCategoryDataConversion},
		{err: errors.New("something odd"), want: ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, eh.CategorizeError(tt.err), fmt.Sprint(tt.err))
	}
}

func TestShouldRetry(t *testing.T) {
	eh := NewErrorHandler(zaptest.NewLogger(t))

	transient := NewErrorRecord(errors.New("timeout"), ErrorCategoryTimeout)
	assert.True(t, eh.ShouldRetry(transient, 1))
	assert.False(t, eh.ShouldRetry(transient.WithRetry(1), 1))
	assert.False(t, eh.ShouldRetry(transient, 0))

	permanent := NewErrorRecord(errors.New("too long"), ErrorCategoryConstraint)
	assert.False(t, eh.ShouldRetry(permanent, 3))
}

func TestErrorHandlerSamples(t *testing.T) {
	eh := NewErrorHandler(zaptest.NewLogger(t))
	for i := 0; i < 7; i++ {
		eh.RecordError(NewErrorRecord(errors.New("x"), ErrorCategoryUnknown).WithBatch(i, 10, "K1AA"))
	}

	assert.Equal(t, 7, eh.GetErrorSummary()[ErrorCategoryUnknown])
	assert.Len(t, eh.GetErrorSamples()[ErrorCategoryUnknown], 5)
	assert.Contains(t, eh.GetErrorSamples()[ErrorCategoryUnknown][0].String(), "[Unknown] batch 0")
}
