package acquire

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// DefaultSourceURL is the complete amateur license archive
const DefaultSourceURL = "https://data.fcc.gov/download/pub/uls/complete/l_amat.zip"

// WorkDirPrefix prefixes every per-run working directory
const WorkDirPrefix = "uls-"

// DefaultMembers are the archive entries a run needs
var DefaultMembers = []string{"HD.dat", "EN.dat", "AM.dat"}

var (
	// ErrUnexpectedStatus is returned when the source answers with a non-200 status
	ErrUnexpectedStatus = errors.New("unexpected response status")
	// ErrMemberNotFound is returned when a required member is missing from the archive
	ErrMemberNotFound = errors.New("archive member not found")
)

// ProgressFunc receives transfer progress. total is -1 when the size is unknown.
type ProgressFunc func(done, total int64)

// Config holds the acquirer settings
type Config struct {
	SourceURL    string
	WorkDirRoot  string
	RunID        string
	Members      []string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Acquirer downloads the archive and extracts the record files into a
// private working directory
type Acquirer struct {
	config Config
	client *retryablehttp.Client
	logger *zap.Logger
}

// NewAcquirer creates an Acquirer. Zero-valued settings fall back to defaults.
func NewAcquirer(cfg Config, logger *zap.Logger) *Acquirer {
	if cfg.SourceURL == "" {
		cfg.SourceURL = DefaultSourceURL
	}
	if cfg.WorkDirRoot == "" {
		cfg.WorkDirRoot = filepath.Join(os.TempDir(), "fcc-import")
	}
	if len(cfg.Members) == 0 {
		cfg.Members = DefaultMembers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = time.Second
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 30 * time.Second
	}

	logger = logger.Named("acquirer")

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = cfg.Timeout
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.Logger = newLeveledLogger(logger)

	return &Acquirer{
		config: cfg,
		client: client,
		logger: logger,
	}
}

// Acquire downloads the archive and extracts the configured members. On any
// failure the working directory is removed before the error is returned.
func (a *Acquirer) Acquire(ctx context.Context, progress ProgressFunc) (_ *Dataset, err error) {
	if err := os.MkdirAll(a.config.WorkDirRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work root %s: %w", a.config.WorkDirRoot, err)
	}

	pattern := WorkDirPrefix + "*"
	if a.config.RunID != "" {
		pattern = WorkDirPrefix + a.config.RunID + "-*"
	}
	dir, err := os.MkdirTemp(a.config.WorkDirRoot, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	ds := &Dataset{Dir: dir, files: make(map[string]string, len(a.config.Members))}
	markOpen(dir)
	defer func() {
		if err != nil {
			if cerr := ds.Close(); cerr != nil {
				a.logger.Warn("Failed to remove work directory", zap.String("dir", dir), zap.Error(cerr))
			}
		}
	}()

	a.logger.Info("Starting download",
		zap.String("url", a.config.SourceURL),
		zap.String("workDir", dir))

	startTime := time.Now()
	archivePath := filepath.Join(dir, archiveName(a.config.SourceURL))
	size, err := a.download(ctx, archivePath, progress)
	if err != nil {
		return nil, err
	}
	ds.Archive = archivePath
	ds.Bytes = size

	a.logger.Info("Download completed",
		zap.Int64("bytes", size),
		zap.Duration("duration", time.Since(startTime)))

	if err := a.extract(archivePath, ds); err != nil {
		return nil, err
	}

	return ds, nil
}

func (a *Acquirer) download(ctx context.Context, dest string, progress ProgressFunc) (int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, a.config.SourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download %s: %w", a.config.SourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %s from %s", ErrUnexpectedStatus, resp.Status, a.config.SourceURL)
	}

	out, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive file: %w", err)
	}
	defer out.Close()

	body := io.Reader(resp.Body)
	if progress != nil {
		body = &progressReader{r: resp.Body, total: resp.ContentLength, fn: progress}
	}

	n, err := io.Copy(out, body)
	if err != nil {
		return n, fmt.Errorf("failed to write archive after %d bytes: %w", n, err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("failed to close archive file: %w", err)
	}

	return n, nil
}

func (a *Acquirer) extract(archivePath string, ds *Dataset) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		base := path.Base(strings.ReplaceAll(f.Name, `\`, "/"))
		key := strings.ToUpper(base)
		if _, seen := entries[key]; !seen {
			entries[key] = f
		}
	}

	for _, member := range a.config.Members {
		f, ok := entries[strings.ToUpper(member)]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMemberNotFound, member)
		}

		dest := filepath.Join(ds.Dir, member)
		n, err := extractFile(f, dest)
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", member, err)
		}
		ds.files[member] = dest

		a.logger.Debug("Extracted archive member",
			zap.String("member", member),
			zap.Int64("bytes", n))
	}

	return nil
}

func extractFile(f *zip.File, dest string) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, rc)
	if err != nil {
		return n, err
	}
	return n, out.Close()
}

func archiveName(source string) string {
	if u, err := url.Parse(source); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return "archive.zip"
}

type progressReader struct {
	r     io.Reader
	done  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.fn(p.done, p.total)
	}
	return n, err
}
