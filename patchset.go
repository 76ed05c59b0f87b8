package libbuild

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

const devNull = "/dev/null"

// Patch is one unified-diff file of the patch set.
type Patch struct {
	Path  string   // Absolute or SourceDir-relative path of the diff file
	Files []string // Files the diff touches, relative to the source tree
}

// PatchSet is the ordered list of patches applied before the build and
// reverted after it.
type PatchSet struct {
	Patches []Patch
	Strip   int
}

// DiscoverPatches lists the .patch and .diff files of dir in directory
// order and parses each to learn which files it touches.
//
// A missing directory yields an empty patch set. A file that is not a valid
// unified diff is an error, reported before anything is applied.
func DiscoverPatches(dir string, strip int) (*PatchSet, error) {
	set := &PatchSet{Strip: strip}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read patch directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !MatchesExtension(entry.Name(), ".patch", ".diff") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		files, err := patchedFiles(path, strip)
		if err != nil {
			return nil, err
		}

		set.Patches = append(set.Patches, Patch{Path: path, Files: files})
	}

	return set, nil
}

// Files returns every file touched by the patch set, without duplicates.
func (s *PatchSet) Files() []string {
	var all []string
	for _, p := range s.Patches {
		all = append(all, p.Files...)
	}
	return uniqueStrings(all)
}

// Len returns the number of patches.
func (s *PatchSet) Len() int {
	return len(s.Patches)
}

// Apply applies the patches forward, in order, at root. It stops at the
// first patch that does not apply cleanly and returns how many were applied
// before it.
func (s *PatchSet) Apply(ctx context.Context, runner Runner, program, root string, result *Result) (int, error) {
	for i, p := range s.Patches {
		out, err := runner.Run(ctx, s.command(program, root, p, false))
		result.Output = append(result.Output, out.Lines()...)
		if err != nil {
			return i, BuildError(program, out.Lines(), fmt.Errorf("%s does not apply: %w", filepath.Base(p.Path), err))
		}
		result.Patches = append(result.Patches, p.Path)
	}
	return len(s.Patches), nil
}

// Revert reverse-applies the first n patches, last first. Every patch is
// attempted even after a failure; the failures are joined.
func (s *PatchSet) Revert(ctx context.Context, runner Runner, program, root string, n int, result *Result) error {
	if n > len(s.Patches) {
		n = len(s.Patches)
	}

	var errs []error
	for i := n - 1; i >= 0; i-- {
		p := s.Patches[i]
		out, err := runner.Run(ctx, s.command(program, root, p, true))
		result.Output = append(result.Output, out.Lines()...)
		if err != nil {
			errs = append(errs, BuildError(program, out.Lines(), fmt.Errorf("%s does not revert: %w", filepath.Base(p.Path), err)))
		}
	}
	return errors.Join(errs...)
}

func (s *PatchSet) command(program, root string, p Patch, reverse bool) Command {
	path := p.Path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	args := []string{"-p" + strconv.Itoa(s.Strip), "-t"}
	if reverse {
		args = append(args, "-R")
	} else {
		args = append(args, "-N")
	}
	args = append(args, "-i", path)

	return Command{Dir: root, Name: program, Args: args}
}

// patchedFiles parses a unified diff and returns the tree-relative paths it
// touches after stripping strip leading components.
func patchedFiles(path string, strip int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open patch %s: %w", path, err)
	}
	defer f.Close()

	fileDiffs, err := diff.NewMultiFileDiffReader(f).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("invalid diff format in %s: %w", path, err)
	}
	var files []string
	for _, fd := range fileDiffs {
		for _, name := range []string{fd.OrigName, fd.NewName} {
			if name == "" || name == devNull {
				continue
			}
			rel, err := stripComponents(name, strip)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			files = append(files, rel)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("invalid diff format in %s: no file headers", path)
	}
	return uniqueStrings(files), nil
}

// stripComponents mimics patch -pN and rejects paths leaving the tree.
func stripComponents(name string, strip int) (string, error) {
	name = strings.TrimSpace(name)
	parts := strings.Split(filepath.ToSlash(name), "/")
	if strip > 0 {
		if strip >= len(parts) {
			return "", fmt.Errorf("cannot strip %d components from %q", strip, name)
		}
		parts = parts[strip:]
	}

	rel := filepath.FromSlash(strings.Join(parts, "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("patched path %q is outside the source tree", name)
	}
	return filepath.Clean(rel), nil
}
