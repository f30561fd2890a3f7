package loader

import (
	"time"
)

// Summary reports the outcome of one Load call
type Summary struct {
	Offered       int64
	Inserted      int64
	Skipped       int64 // identity already present in the store
	FailedRecords int64 // records of batches whose write failed
	Batches       int
	FailedBatches int
	Retries       int
	Canceled      bool
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	Verification  *Verification
	Errors        map[ErrorCategory]int
	ErrorSamples  map[ErrorCategory][]ErrorRecord // first failures of each category
}

func newSummary(offered int) *Summary {
	return &Summary{
		Offered:   int64(offered),
		StartTime: time.Now(),
	}
}

// complete stamps the end time and calculates the duration
func (s *Summary) complete() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// Processed returns the number of records accounted for so far
func (s *Summary) Processed() int64 {
	return s.Inserted + s.Skipped + s.FailedRecords
}

// RecordsPerSecond returns the throughput of the load
func (s *Summary) RecordsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Processed()) / s.Duration.Seconds()
}

// BatchResult is the outcome of writing a single batch
type BatchResult struct {
	Index    int
	Records  int
	Inserted int64
	Attempts int
	Duration time.Duration
	Err      error
}

// Skipped returns the records of a successful batch that were already present
func (b BatchResult) Skipped() int64 {
	if b.Err != nil {
		return 0
	}
	return int64(b.Records) - b.Inserted
}
