package libbuild

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Suffixes patch(1) leaves next to a file it could not patch cleanly.
var patchResidueSuffixes = []string{".rej", ".orig"}

type fileState struct {
	exists bool
	data   []byte
	mode   fs.FileMode
}

// Snapshot records the pre-run state of the files a patch set touches,
// together with the .rej and .orig siblings patch(1) may create.
//
// Restore makes each of those paths byte-identical to the recorded state,
// which is what keeps the source tree unchanged across a run.
type Snapshot struct {
	root  string
	files map[string]fileState
	// directories missing before the run, deepest first
	missingDirs []string
}

// TakeSnapshot captures paths (relative to root) and their patch residue.
func TakeSnapshot(root string, paths []string) (*Snapshot, error) {
	s := &Snapshot{
		root:  root,
		files: make(map[string]fileState),
	}

	missing := make(map[string]struct{})
	for _, rel := range paths {
		if !filepath.IsLocal(rel) {
			return nil, fmt.Errorf("snapshot path %q is outside %s", rel, root)
		}

		tracked := []string{rel}
		for _, suffix := range patchResidueSuffixes {
			tracked = append(tracked, rel+suffix)
		}

		for _, p := range tracked {
			state, err := readFileState(filepath.Join(root, p))
			if err != nil {
				return nil, err
			}
			s.files[p] = state
		}

		for dir := filepath.Dir(rel); dir != "."; dir = filepath.Dir(dir) {
			if _, err := os.Stat(filepath.Join(root, dir)); errors.Is(err, fs.ErrNotExist) {
				missing[dir] = struct{}{}
			}
		}
	}

	for dir := range missing {
		s.missingDirs = append(s.missingDirs, dir)
	}
	sort.Slice(s.missingDirs, func(i, j int) bool {
		return len(s.missingDirs[i]) > len(s.missingDirs[j])
	})

	return s, nil
}

func readFileState(path string) (fileState, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileState{}, nil
	}
	if err != nil {
		return fileState{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fileState{}, fmt.Errorf("cannot snapshot %s: not a regular file", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fileState{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return fileState{exists: true, data: data, mode: info.Mode().Perm()}, nil
}

// Paths returns the tracked paths in sorted order.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Changed returns the tracked paths whose current state differs from the
// snapshot.
func (s *Snapshot) Changed() ([]string, error) {
	var changed []string
	for _, p := range s.Paths() {
		current, err := readFileState(filepath.Join(s.root, p))
		if err != nil {
			return nil, err
		}
		if !sameState(s.files[p], current) {
			changed = append(changed, p)
		}
	}
	return changed, nil
}

// Restore rewrites every changed path from the snapshot and removes files
// and directories that did not exist when it was taken. It returns the
// paths it had to restore.
func (s *Snapshot) Restore() ([]string, error) {
	changed, err := s.Changed()
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, p := range changed {
		if err := s.restoreFile(p, s.files[p]); err != nil {
			errs = append(errs, err)
		}
	}

	for _, dir := range s.missingDirs {
		// only empty directories go; anything else was not ours
		_ = os.Remove(filepath.Join(s.root, dir))
	}

	return changed, errors.Join(errs...)
}

func (s *Snapshot) restoreFile(rel string, want fileState) error {
	path := filepath.Join(s.root, rel)

	if !want.exists {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to recreate directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, want.data, want.mode); err != nil {
		return fmt.Errorf("failed to restore %s: %w", path, err)
	}
	// WriteFile leaves the mode of an existing file alone
	if err := os.Chmod(path, want.mode); err != nil {
		return fmt.Errorf("failed to restore mode of %s: %w", path, err)
	}
	return nil
}

func sameState(a, b fileState) bool {
	if a.exists != b.exists {
		return false
	}
	if !a.exists {
		return true
	}
	return a.mode == b.mode && bytes.Equal(a.data, b.data)
}
