package libbuild

import (
	"fmt"
)

const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Platform describes how shared libraries are produced on an operating
// system family.
type Platform struct {
	GOOS       string // Operating system as reported by runtime.GOOS
	LibSuffix  string // Shared library suffix (.so, .dylib)
	SharedFlag string // Compiler flag selecting shared-library output
	DefaultCC  string // Compiler used when CC is not set
}

// ResolvePlatform maps an operating system to its shared library
// conventions. Anything other than Linux and macOS returns
// ErrUnsupportedPlatform.
func ResolvePlatform(goos string) (Platform, error) {
	switch goos {
	case platformLinux:
		return Platform{
			GOOS:       goos,
			LibSuffix:  ".so",
			SharedFlag: "-shared",
			DefaultCC:  "gcc",
		}, nil
	case platformDarwin:
		return Platform{
			GOOS:       goos,
			LibSuffix:  ".dylib",
			SharedFlag: "-dynamiclib",
			DefaultCC:  "clang",
		}, nil
	default:
		return Platform{}, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
	}
}

// LibraryFile returns the shared library file name for libName.
func (p Platform) LibraryFile(libName string) string {
	return libName + p.LibSuffix
}
