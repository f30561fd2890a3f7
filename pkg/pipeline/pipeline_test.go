package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/1vers1on/uls-ingress/pkg/acquire"
	"github.com/1vers1on/uls-ingress/pkg/audit"
	"github.com/1vers1on/uls-ingress/pkg/config"
	"github.com/1vers1on/uls-ingress/pkg/loader"
	"github.com/1vers1on/uls-ingress/pkg/model"
	"github.com/1vers1on/uls-ingress/pkg/parser"
	"github.com/1vers1on/uls-ingress/pkg/reconcile"
)

// recordLine renders one pipe-delimited line with the named fields set
func recordLine(t *testing.T, schema *parser.Schema, values map[string]string) string {
	t.Helper()
	fields := make([]string, schema.Len())
	fields[0] = schema.Name
	for name, v := range values {
		i, ok := schema.Index(name)
		require.True(t, ok, name)
		fields[i] = v
	}
	return strings.Join(fields, "|")
}

func sampleArchive(t *testing.T) []byte {
	t.Helper()

	hd := []string{
		recordLine(t, parser.HD, map[string]string{parser.FieldCallSign: "KR4FNZ", parser.FieldLicenseStatus: "A", parser.FieldRadioServiceCode: "HA"}),
		recordLine(t, parser.HD, map[string]string{parser.FieldCallSign: "W1AW", parser.FieldLicenseStatus: "A", parser.FieldRadioServiceCode: "HB"}),
		recordLine(t, parser.HD, map[string]string{parser.FieldCallSign: "K1BAD", parser.FieldLicenseStatus: "R", parser.FieldRadioServiceCode: "HA"}),
		recordLine(t, parser.HD, map[string]string{parser.FieldCallSign: "N0ENT", parser.FieldLicenseStatus: "A", parser.FieldRadioServiceCode: "HA"}),
		recordLine(t, parser.HD, map[string]string{parser.FieldCallSign: "AB1CD", parser.FieldLicenseStatus: "Q", parser.FieldRadioServiceCode: "HA"}),
	}
	en := []string{
		recordLine(t, parser.EN, map[string]string{parser.FieldCallSign: "KR4FNZ", parser.FieldFirstName: "Jane", parser.FieldLastName: "Doe", parser.FieldZipCode: "30301-1234"}),
		recordLine(t, parser.EN, map[string]string{parser.FieldCallSign: "W1AW", parser.FieldEntityName: "ARRL"}),
		recordLine(t, parser.EN, map[string]string{parser.FieldCallSign: "K1BAD", parser.FieldFirstName: "Bad", parser.FieldLastName: "Actor"}),
		recordLine(t, parser.EN, map[string]string{parser.FieldCallSign: "AB1CD", parser.FieldFirstName: "Al", parser.FieldLastName: "Bee"}),
	}
	am := []string{
		recordLine(t, parser.AM, map[string]string{parser.FieldCallSign: "KR4FNZ", parser.FieldOperatorClass: "E", parser.FieldRegionCode: "4"}),
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, lines := range map[string][]string{"HD.dat": hd, "EN.dat": en, "AM.dat": am} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(strings.Join(lines, "\r\n") + "\r\n"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// memoryStore is an in-memory destination keyed by call sign
type memoryStore struct {
	mu          sync.Mutex
	rows        map[string]model.License
	validateErr error
	closed      int
	validated   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string]model.License)}
}

func (s *memoryStore) InsertIgnore(_ context.Context, licenses []model.License) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range licenses {
		if _, ok := s.rows[l.Callsign]; ok {
			continue
		}
		s.rows[l.Callsign] = l
		n++
	}
	return n, nil
}

func (s *memoryStore) CountRows(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

func (s *memoryStore) Validate(context.Context) error {
	s.validated++
	return s.validateErr
}

func (s *memoryStore) Close() error {
	s.closed++
	return nil
}

type recordingSink struct {
	runID string
	flags []model.AuditFlag
	err   error
}

func (r *recordingSink) Flush(_ context.Context, runID string, flags []model.AuditFlag) (int, error) {
	r.runID = runID
	if r.err != nil {
		return 0, r.err
	}
	r.flags = append(r.flags, flags...)
	return len(flags), nil
}

type fixture struct {
	cfg   *config.Config
	store *memoryStore
	sink  *recordingSink
	deps  Deps
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Source: config.SourceConfig{
			URL:     srv.URL + "/l_amat.zip",
			WorkDir: t.TempDir(),
		},
		Destination:     config.DestinationPostgres,
		Table:           "callsigns",
		AuditEnabled:    true,
		BatchSize:       2,
		VerifyLoad:      true,
		IncludeStatuses: []model.LicenseStatus{model.StatusActive},
	}

	f := &fixture{cfg: cfg, store: newMemoryStore(), sink: &recordingSink{}}
	logger := zaptest.NewLogger(t)
	f.deps = Deps{
		Acquire: func(ctx context.Context, runID string, progress acquire.ProgressFunc) (*acquire.Dataset, error) {
			return acquire.NewAcquirer(acquire.Config{
				SourceURL:    cfg.Source.URL,
				WorkDirRoot:  cfg.Source.WorkDir,
				RunID:        runID,
				RetryWaitMin: time.Millisecond,
				RetryWaitMax: 5 * time.Millisecond,
			}, logger).Acquire(ctx, progress)
		},
		OpenStore: func(context.Context) (Store, error) { return f.store, nil },
		Audit:     func(Store) audit.Sink { return f.sink },
	}
	return f
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(f.cfg, f.deps, zaptest.NewLogger(t))
	require.NoError(t, err)
	return p
}

func serveArchive(archive []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	}
}

func assertWorkDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "work directory should be removed")
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t, serveArchive(sampleArchive(t)))

	summary, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, summary.Status)
	assert.NotEmpty(t, summary.RunID)
	assert.True(t, summary.CleanedUp)
	assert.Positive(t, summary.ArchiveBytes)
	assert.Equal(t, 5, summary.Parsed[parser.HD.Name].Records)
	assert.Equal(t, 4, summary.Parsed[parser.EN.Name].Records)
	assert.Equal(t, 1, summary.Parsed[parser.AM.Name].Records)

	// K1BAD is revoked, N0ENT has no entity, AB1CD defaults to ACTIVE
	require.NotNil(t, summary.Reconcile)
	assert.Equal(t, 5, summary.Reconcile.Headers)
	assert.Equal(t, 1, summary.Reconcile.Unmatched)
	assert.Equal(t, 1, summary.Reconcile.Excluded)
	assert.Equal(t, 1, summary.Reconcile.Defaulted)
	assert.Equal(t, 3, summary.Reconcile.Emitted)

	require.NotNil(t, summary.Load)
	assert.Equal(t, int64(3), summary.Load.Offered)
	assert.Equal(t, int64(3), summary.Load.Inserted)
	assert.Equal(t, 2, summary.Load.Batches)
	require.NotNil(t, summary.Load.Verification)
	assert.True(t, summary.Load.Verification.Match)

	kr, ok := f.store.rows["KR4FNZ"]
	require.True(t, ok)
	require.NotNil(t, kr.OperatorName)
	assert.Equal(t, "Jane Doe", *kr.OperatorName)
	require.NotNil(t, kr.ITUZone)
	assert.Equal(t, 6, *kr.ITUZone)
	assert.NotContains(t, f.store.rows, "K1BAD")
	assert.NotContains(t, f.store.rows, "N0ENT")

	assert.Equal(t, summary.RunID, f.sink.runID)
	assert.Equal(t, summary.AuditFlags, len(f.sink.flags))
	assert.Equal(t, summary.AuditFlags, summary.AuditWritten)

	assert.Equal(t, 1, f.store.validated)
	assert.Equal(t, 1, f.store.closed)
	assertWorkDirEmpty(t, f.cfg.Source.WorkDir)
}

func TestRun_IdempotentReload(t *testing.T) {
	f := newFixture(t, serveArchive(sampleArchive(t)))
	p := f.pipeline(t)

	first, err := p.Run(context.Background())
	require.NoError(t, err)

	second, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, int64(0), second.Load.Inserted)
	assert.Equal(t, second.Load.Offered, second.Load.Skipped)
	assert.Len(t, f.store.rows, 3)
}

func TestRun_LockHeldSkipsRun(t *testing.T) {
	f := newFixture(t, serveArchive(sampleArchive(t)))
	opened := false
	f.deps.OpenStore = func(context.Context) (Store, error) {
		opened = true
		return f.store, nil
	}
	f.deps.Lock = func(context.Context) (func(context.Context) error, error) {
		return nil, ErrRunInProgress
	}

	summary, err := f.pipeline(t).Run(context.Background())

	assert.True(t, errors.Is(err, ErrRunInProgress))
	assert.Equal(t, StatusSkipped, summary.Status)
	assert.False(t, opened)
}

func TestRun_LockReleased(t *testing.T) {
	f := newFixture(t, serveArchive(sampleArchive(t)))
	released := false
	f.deps.Lock = func(context.Context) (func(context.Context) error, error) {
		return func(context.Context) error {
			released = true
			return nil
		}, nil
	}

	_, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, released)
}

func TestRun_AcquireFailureIsFatal(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	summary, err := f.pipeline(t).Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, acquire.ErrUnexpectedStatus))
	assert.Equal(t, StatusFailed, summary.Status)
	assert.Nil(t, summary.Load)
	assert.Equal(t, 1, f.store.closed)
	assertWorkDirEmpty(t, f.cfg.Source.WorkDir)
}

func TestRun_ValidationFailureIsFatal(t *testing.T) {
	f := newFixture(t, serveArchive(sampleArchive(t)))
	f.store.validateErr = errors.New("table callsigns does not exist")

	_, err := f.pipeline(t).Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, 1, f.store.closed)
}

func TestRun_AuditFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, serveArchive(sampleArchive(t)))
	f.sink.err = errors.New("ingest_audit missing")

	summary, err := f.pipeline(t).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, summary.Status)
	assert.Positive(t, summary.AuditFlags)
	assert.Zero(t, summary.AuditWritten)
	assert.Len(t, f.store.rows, 3)
}

func TestRun_AutoMigrateRunsBeforeValidate(t *testing.T) {
	f := newFixture(t, serveArchive(sampleArchive(t)))
	f.cfg.AutoMigrate = true

	var order []string
	f.deps.Migrate = func(context.Context, Store) error {
		order = append(order, "migrate")
		return nil
	}
	f.deps.OpenStore = func(context.Context) (Store, error) {
		order = append(order, "open")
		return &orderStore{memoryStore: f.store, order: &order}, nil
	}

	_, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"open", "migrate", "validate"}, order)
}

type orderStore struct {
	*memoryStore
	order *[]string
}

func (s *orderStore) Validate(ctx context.Context) error {
	*s.order = append(*s.order, "validate")
	return s.memoryStore.Validate(ctx)
}

func TestRun_CanceledContext(t *testing.T) {
	f := newFixture(t, serveArchive(sampleArchive(t)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.pipeline(t).Run(ctx)

	require.Error(t, err)
	assert.Equal(t, StatusFailed, summary.Status)
	assert.Empty(t, f.store.rows)
	assertWorkDirEmpty(t, f.cfg.Source.WorkDir)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(&config.Config{}, Deps{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestRunSummary_Report(t *testing.T) {
	f := newFixture(t, serveArchive(sampleArchive(t)))

	summary, err := f.pipeline(t).Run(context.Background())
	require.NoError(t, err)

	report := summary.Report()
	assert.Contains(t, report, "Run ID:                  "+summary.RunID)
	assert.Contains(t, report, "Status:                  success")
	assert.Contains(t, report, "- HD: 5 records")
	assert.Contains(t, report, "Emitted:                 3 (60.0%)")
	assert.Contains(t, report, "- ACTIVE: 3")
	assert.Contains(t, report, "Inserted:                3 (100.0%)")

	data, err := summary.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), summary.RunID)
}

func TestRunSummary_ReportFailuresAndUnkeyed(t *testing.T) {
	sample := loader.NewErrorRecord(errors.New("pq: value too long"), loader.ErrorCategoryConstraint).
		WithBatch(2, 1000, "K2000AA")

	summary := &RunSummary{
		RunID:     "run-1",
		Status:    StatusSuccess,
		Reconcile: &reconcile.Stats{Headers: 10, Emitted: 8, Unkeyed: 2},
		Load: &loader.Summary{
			Offered:       2000,
			Inserted:      1000,
			FailedRecords: 1000,
			Batches:       2,
			FailedBatches: 1,
			Errors:        map[loader.ErrorCategory]int{loader.ErrorCategoryConstraint: 1},
			ErrorSamples:  map[loader.ErrorCategory][]loader.ErrorRecord{loader.ErrorCategoryConstraint: {sample}},
		},
	}

	report := summary.Report()
	assert.Contains(t, report, "Unkeyed Records:         2")
	assert.Contains(t, report, "Sample Errors")
	assert.Contains(t, report, "batch 2 (1000 records from K2000AA): pq: value too long")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.50 KB", formatBytes(1536))
	assert.Equal(t, "2.00 MB", formatBytes(2*1024*1024))
	assert.Equal(t, "1h 2m 3s", formatDuration(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(2*time.Minute+5*time.Second))
	assert.Equal(t, "1.50s", formatDuration(1500*time.Millisecond))
	assert.Zero(t, percentage(1, 0))
}
