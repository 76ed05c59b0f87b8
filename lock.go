package libbuild

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// LockFile is created in the source tree for the duration of a run.
const LockFile = ".libbuild.lock"

// acquireLock claims dir for a single pipeline run. Concurrent runs in the
// same tree would race on patch application, so the second one fails with
// ErrLocked. A lock left behind by a killed run has to be removed by hand.
func acquireLock(dir string) (func() error, error) {
	path := filepath.Join(dir, LockFile)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w: %s exists", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lock %s: %w", path, err)
	}

	_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write lock %s: %w", path, werr)
	}

	return func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to release lock %s: %w", path, err)
		}
		return nil
	}, nil
}
