package libbuild

import (
	"fmt"
	"os"
	"path/filepath"
)

// Location is where the scripting binding will load the shared library
// from.
type Location struct {
	Path    string // Resolved library path
	FromEnv bool   // Path came from LIBCUBA rather than the dist directory
	Exists  bool
}

// Locate resolves the shared library the way the binding's loader does
// when the library is not on the system search path: the explicit path
// (LIBCUBA) wins, otherwise <dist>/<libname><suffix>.
//
// When the file is missing the Location is still returned alongside an
// error wrapping ErrLibraryNotFound.
func Locate(cfg *Config) (*Location, error) {
	platform, err := ResolvePlatform(cfg.GOOS)
	if err != nil {
		return nil, err
	}

	loc := &Location{Path: filepath.Join(cfg.DistPath(), platform.LibraryFile(cfg.LibName))}
	if cfg.LibraryPath != "" {
		loc.Path = cfg.LibraryPath
		loc.FromEnv = true
	}

	info, err := os.Stat(loc.Path)
	if err != nil || info.IsDir() {
		return loc, fmt.Errorf("%w: %s (set %s to the library path)", ErrLibraryNotFound, loc.Path, EnvLibraryPath)
	}

	loc.Exists = true
	return loc, nil
}
