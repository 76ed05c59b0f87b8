package libbuild

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/sh"
)

// transientPatterns returns the top-level globs removed by the clean stage
// in addition to the captured object files.
func transientPatterns(cfg *Config) []string {
	patterns := make([]string, 0, len(patchResidueSuffixes)+len(cfg.Transients))
	for _, suffix := range patchResidueSuffixes {
		patterns = append(patterns, "*"+suffix)
	}
	return append(patterns, cfg.Transients...)
}

// baselineFiles records which transient-looking files existed before the
// run. They belong to the source tree and are never removed.
func baselineFiles(cfg *Config) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for _, pattern := range transientPatterns(cfg) {
		matches, err := filepath.Glob(filepath.Join(cfg.SourceDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad transient pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			existing[m] = struct{}{}
		}
	}
	return existing, nil
}

// removeTransients deletes patch residue, configure byproducts and the
// object files unpacked from the archive. Files present in baseline are
// kept. All removals are attempted; failures are joined.
func removeTransients(cfg *Config, baseline map[string]struct{}, objects []string) ([]string, error) {
	var targets []string
	for _, pattern := range transientPatterns(cfg) {
		matches, err := filepath.Glob(filepath.Join(cfg.SourceDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad transient pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, keep := baseline[m]; !keep {
				targets = append(targets, m)
			}
		}
	}
	for _, obj := range objects {
		targets = append(targets, filepath.Join(cfg.SourceDir, obj))
	}

	var removed []string
	var errs []error
	for _, target := range uniqueStrings(targets) {
		if info, err := os.Lstat(target); err != nil || info.IsDir() {
			// only files are transient; a directory named like one is left alone
			continue
		}
		if err := sh.Rm(target); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, target)
	}

	return removed, errors.Join(errs...)
}
