package libbuild

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// relocateArtifacts moves every top-level regular file named
// <libName>.<anything> from sourceDir into distDir and returns the new paths.
//
// distDir is created if needed and never emptied; a same-named file already
// there is replaced.
func relocateArtifacts(sourceDir, distDir, libName string) ([]string, error) {
	if err := os.MkdirAll(distDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dist directory %s: %w", distDir, err)
	}

	matches, err := filepath.Glob(filepath.Join(sourceDir, libName+".*"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob %s.* in %s: %v", libName, sourceDir, err)
	}
	sort.Strings(matches)

	var moved []string
	for _, src := range matches {
		info, err := os.Lstat(src)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		dest := filepath.Join(distDir, filepath.Base(src))
		if err := moveFile(src, dest); err != nil {
			return moved, err
		}
		moved = append(moved, dest)
	}

	return moved, nil
}

// moveFile renames src to dest, copying across filesystems when rename is
// not possible.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	if err := copyFile(src, dest); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", src, dest, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove %s after copying: %w", src, err)
	}
	return nil
}

func copyFile(srcPath, destPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		return err
	}

	dir := filepath.Dir(destPath)
	if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
		return mkErr
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
