package acquire

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestAcquirer(t *testing.T, url string, root string) *Acquirer {
	return NewAcquirer(Config{
		SourceURL:    url,
		WorkDirRoot:  root,
		RunID:        "test",
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, zaptest.NewLogger(t))
}

func TestAcquireExtractsMembers(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"HD.dat":        "HD|1|||KR4FNZ|A\n",
		"EN.dat":        "EN|1|||KR4FNZ\n",
		"nested/AM.dat": "AM|1|||KR4FNZ|E\n",
		"counts":        "ignored",
		"LA.dat":        "ignored",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	root := t.TempDir()
	var lastDone, lastTotal int64
	ds, err := newTestAcquirer(t, srv.URL+"/l_amat.zip", root).Acquire(context.Background(), func(done, total int64) {
		lastDone, lastTotal = done, total
	})
	require.NoError(t, err)

	assert.Equal(t, int64(len(archive)), lastDone)
	assert.Equal(t, int64(len(archive)), lastTotal)
	assert.Equal(t, "l_amat.zip", filepath.Base(ds.Archive))
	assert.Contains(t, filepath.Base(ds.Dir), "uls-test-")

	p, err := ds.Path("AM.dat")
	require.NoError(t, err)
	content, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "AM|1|||KR4FNZ|E\n", string(content))

	_, err = os.Stat(filepath.Join(ds.Dir, "LA.dat"))
	assert.True(t, os.IsNotExist(err))

	_, err = ds.Path("LA.dat")
	assert.ErrorIs(t, err, ErrMemberNotFound)

	require.NoError(t, ds.Close())
	require.NoError(t, ds.Close())
	_, err = os.Stat(ds.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireMissingMemberCleansUp(t *testing.T) {
	archive := buildArchive(t, map[string]string{"HD.dat": "", "EN.dat": ""})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	root := t.TempDir()
	ds, err := newTestAcquirer(t, srv.URL, root).Acquire(context.Background(), nil)
	require.ErrorIs(t, err, ErrMemberNotFound)
	assert.Nil(t, ds)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAcquireUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	root := t.TempDir()
	ds, err := newTestAcquirer(t, srv.URL, root).Acquire(context.Background(), nil)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Nil(t, ds)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAcquireRetriesServerErrors(t *testing.T) {
	archive := buildArchive(t, map[string]string{"HD.dat": "", "EN.dat": "", "AM.dat": ""})
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	ds, err := newTestAcquirer(t, srv.URL, t.TempDir()).Acquire(context.Background(), nil)
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAcquireCorruptArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not a zip"))
	}))
	defer srv.Close()

	root := t.TempDir()
	_, err := newTestAcquirer(t, srv.URL, root).Acquire(context.Background(), nil)
	require.Error(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSweepStale(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "uls-old-1")
	fresh := filepath.Join(root, "uls-new-1")
	other := filepath.Join(root, "keep-me")
	for _, dir := range []string{stale, fresh, other} {
		require.NoError(t, os.Mkdir(dir, 0o755))
	}
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	removed, err := SweepStale(root, 6*time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)

	removed, err = SweepStale(filepath.Join(root, "missing"), time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestAcquireWriteFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buildArchive(t, map[string]string{"HD.dat": "", "EN.dat": "", "AM.dat": ""}))
	}))
	defer srv.Close()

	// a regular file where the work root should be makes every write fail
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	ds, err := newTestAcquirer(t, srv.URL, filepath.Join(blocker, "work")).Acquire(context.Background(), nil)
	require.Error(t, err)
	assert.Nil(t, ds)
	assert.Contains(t, err.Error(), "work root")
}

func TestSweepStaleSkipsOpenDatasets(t *testing.T) {
	archive := buildArchive(t, map[string]string{"HD.dat": "", "EN.dat": "", "AM.dat": ""})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	root := t.TempDir()
	ds, err := newTestAcquirer(t, srv.URL, root).Acquire(context.Background(), nil)
	require.NoError(t, err)
	defer ds.Close()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(ds.Dir, old, old))

	removed, err := SweepStale(root, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.DirExists(t, ds.Dir)

	require.NoError(t, ds.Close())
	assert.False(t, isOpen(ds.Dir))
}
