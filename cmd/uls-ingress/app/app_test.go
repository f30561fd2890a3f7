package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/1vers1on/uls-ingress/pkg/acquire"
	"github.com/1vers1on/uls-ingress/pkg/config"
	"github.com/1vers1on/uls-ingress/pkg/loader"
	"github.com/1vers1on/uls-ingress/pkg/pipeline"
)

type fakeRunner struct {
	summary *pipeline.RunSummary
	err     error
	calls   int
}

func (f *fakeRunner) Run(context.Context) (*pipeline.RunSummary, error) {
	f.calls++
	return f.summary, f.err
}

func testApp(t *testing.T) *App {
	t.Helper()
	a := New("test")
	a.logger = zap.NewNop()
	a.cfg = &config.Config{
		Source: config.SourceConfig{
			WorkDir:         t.TempDir(),
			StaleWorkDirAge: time.Hour,
		},
	}
	return a
}

func setPostgresEnv(t *testing.T) {
	t.Setenv("DESTINATION", "postgres")
	t.Setenv("POSTGRES_USER", "uls")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "uls")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := New("1.2.3").createRootCommand()

	for _, path := range [][]string{{"run"}, {"schedule"}, {"migrate"}, {"migrate", "version"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))
	assert.Equal(t, "1.2.3", root.Version)
}

func TestSetup_LoadsConfigFromEnv(t *testing.T) {
	setPostgresEnv(t)

	a := New("test")
	a.envFiles = nil
	require.NoError(t, a.setup())

	require.NotNil(t, a.cfg)
	assert.Equal(t, config.DestinationPostgres, a.cfg.Destination)
	assert.Equal(t, "uls", a.cfg.Postgres.Database)
	assert.False(t, a.cfg.LockEnabled())
}

func TestSetup_FlagsOverrideEnv(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("LOG_LEVEL", "info")

	a := New("test")
	a.envFiles = nil
	a.logLevel = "debug"
	a.logFormat = "console"
	require.NoError(t, a.setup())

	assert.Equal(t, "debug", a.cfg.LogLevel)
	assert.Equal(t, "console", a.cfg.LogFormat)
}

func TestSetup_InvalidConfig(t *testing.T) {
	setPostgresEnv(t)
	t.Setenv("DESTINATION", "oracle")

	a := New("test")
	a.envFiles = nil
	err := a.setup()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestSetup_LoadsEnvFile(t *testing.T) {
	setPostgresEnv(t)
	// unset so the file value applies; t.Setenv restores it afterwards
	t.Setenv("DEST_TABLE", "")
	require.NoError(t, os.Unsetenv("DEST_TABLE"))

	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("DEST_TABLE=licenses_from_file\n"), 0o600))

	a := New("test")
	a.envFiles = []string{filepath.Join(t.TempDir(), "missing.env"), envFile}
	require.NoError(t, a.setup())

	assert.Equal(t, "licenses_from_file", a.cfg.Table)
}

func TestRunOnce_LockHeldIsNotAnError(t *testing.T) {
	a := testApp(t)
	r := &fakeRunner{
		summary: &pipeline.RunSummary{RunID: "r1", Status: pipeline.StatusSkipped},
		err:     pipeline.ErrRunInProgress,
	}

	var out bytes.Buffer
	err := a.runOnce(context.Background(), r, &out, false)

	assert.NoError(t, err)
	assert.Empty(t, out.String())
	assert.Equal(t, 1, r.calls)
}

func TestRunOnce_PrintsReportAndReturnsFailure(t *testing.T) {
	a := testApp(t)
	r := &fakeRunner{
		summary: &pipeline.RunSummary{RunID: "r2", Status: pipeline.StatusFailed},
		err:     errors.New("failed to acquire dataset: unexpected status"),
	}

	var out bytes.Buffer
	err := a.runOnce(context.Background(), r, &out, false)

	require.Error(t, err)
	assert.Contains(t, out.String(), "ULS Ingest Report")
	assert.Contains(t, out.String(), "r2")
}

func TestRunOnce_JSON(t *testing.T) {
	a := testApp(t)
	r := &fakeRunner{
		summary: &pipeline.RunSummary{
			RunID:  "r3",
			Status: pipeline.StatusSuccess,
			Load:   &loader.Summary{Inserted: 42},
		},
	}

	var out bytes.Buffer
	require.NoError(t, a.runOnce(context.Background(), r, &out, true))

	assert.Contains(t, out.String(), `"RunID":"r3"`)
	assert.Contains(t, out.String(), `"Inserted":42`)
}

func TestIngestJob(t *testing.T) {
	a := testApp(t)

	skipped := &fakeRunner{err: pipeline.ErrRunInProgress}
	assert.NoError(t, a.ingestJob(skipped)(context.Background()))

	failure := errors.New("destination validation failed")
	failed := &fakeRunner{summary: &pipeline.RunSummary{RunID: "r4"}, err: failure}
	assert.ErrorIs(t, a.ingestJob(failed)(context.Background()), failure)

	ok := &fakeRunner{summary: &pipeline.RunSummary{RunID: "r5", Load: &loader.Summary{Inserted: 3}}}
	assert.NoError(t, a.ingestJob(ok)(context.Background()))
}

func TestSweepJob_RemovesStaleWorkDirs(t *testing.T) {
	a := testApp(t)
	root := a.cfg.Source.WorkDir

	stale := filepath.Join(root, acquire.WorkDirPrefix+"stale")
	fresh := filepath.Join(root, acquire.WorkDirPrefix+"fresh")
	require.NoError(t, os.Mkdir(stale, 0o755))
	require.NoError(t, os.Mkdir(fresh, 0o755))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	require.NoError(t, a.sweepJob()(context.Background()))

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
}
