package libbuild

import (
	"strings"
)

const (
	makeProgram  = "make"
	arProgram    = "ar"
	patchProgram = "patch"
)

// baseCFlags is the platform-independent part of the computed flag set.
var baseCFlags = []string{"-fPIC", "-fomit-frame-pointer", "-O3", "-Wall"}

// Toolchain is the set of external programs and flags used by a run.
type Toolchain struct {
	CC              string
	CFlags          []string
	FlagsOverridden bool // CFLAGS came from the caller, not the platform
	Make            string
	AR              string
	Patch           string
}

// ResolveToolchain selects programs and compilation flags for a platform.
//
// The compiler is not checked for existence here; a missing compiler fails
// at its first invocation unless CheckTools is run beforehand.
//
// A non-empty cfg.CFlags replaces the computed flags entirely. Nothing from
// DefaultCFlags is merged into it.
func ResolveToolchain(cfg *Config, p Platform) Toolchain {
	tc := Toolchain{
		CC:    firstNonEmpty(cfg.CC, p.DefaultCC),
		Make:  firstNonEmpty(cfg.Make, makeProgram),
		AR:    firstNonEmpty(cfg.AR, arProgram),
		Patch: firstNonEmpty(cfg.Patch, patchProgram),
	}

	if cfg.CFlags != "" {
		tc.CFlags = strings.Fields(cfg.CFlags)
		tc.FlagsOverridden = true
	} else {
		tc.CFlags = DefaultCFlags(p, cfg.MacOSMinVersion)
	}

	return tc
}

// DefaultCFlags returns the computed flag set for a platform.
//
// macOS builds pin the minimum OS version and use generic CPU tuning so the
// dylib runs on every machine of that version; Linux builds tune for the
// build host.
func DefaultCFlags(p Platform, macOSMinVersion string) []string {
	flags := append([]string(nil), baseCFlags...)

	switch p.GOOS {
	case platformDarwin:
		if macOSMinVersion == "" {
			macOSMinVersion = DefaultMacOSMinVersion
		}
		flags = append(flags, "-mmacosx-version-min="+macOSMinVersion, "-mtune=generic")
	case platformLinux:
		flags = append(flags, "-march=native")
	}

	return flags
}

// compiler splits CC into the program and its leading arguments, so
// CC="ccache gcc" behaves as it does in a shell.
func (t Toolchain) compiler() (string, []string) {
	fields := strings.Fields(t.CC)
	if len(fields) == 0 {
		return t.CC, nil
	}
	return fields[0], fields[1:]
}

// Env returns the variables passed to configure and make.
func (t Toolchain) Env() []string {
	return []string{
		"CC=" + t.CC,
		"CFLAGS=" + strings.Join(t.CFlags, " "),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
