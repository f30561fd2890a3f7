package acquire

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// openDirs holds the work directories of datasets in this process that are not closed yet
var openDirs sync.Map

func markOpen(dir string) {
	openDirs.Store(filepath.Clean(dir), struct{}{})
}

func isOpen(dir string) bool {
	_, ok := openDirs.Load(filepath.Clean(dir))
	return ok
}

// Dataset is the set of extracted record files of one run
type Dataset struct {
	Dir     string
	Archive string
	Bytes   int64 // archive size as downloaded

	files  map[string]string
	closed bool
}

// Path returns the location of an extracted member
func (d *Dataset) Path(member string) (string, error) {
	p, ok := d.files[member]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMemberNotFound, member)
	}
	return p, nil
}

// Close removes the working directory. Calling it again is a no-op.
func (d *Dataset) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	openDirs.Delete(filepath.Clean(d.Dir))
	if err := os.RemoveAll(d.Dir); err != nil {
		return fmt.Errorf("failed to remove work directory %s: %w", d.Dir, err)
	}
	return nil
}
