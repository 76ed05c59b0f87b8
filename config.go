package libbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Defaults for the Cuba source layout.
const (
	DefaultLibName         = "libcuba"
	DefaultPatchDir        = "patches"
	DefaultDistDir         = "dist"
	DefaultConfigureScript = "./configure"
	DefaultPatchStrip      = 1
	DefaultMacOSMinVersion = "11.0"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvCC             = "CC"
	EnvCFlags         = "CFLAGS"
	EnvMake           = "MAKE"
	EnvAR             = "AR"
	EnvLibraryPath    = "LIBCUBA"
	EnvMacOSMinTarget = "MACOSX_DEPLOYMENT_TARGET"
)

// Config controls a pipeline run.
//
// Relative PatchDir and DistDir are resolved against SourceDir.
//
// Precedence, lowest first: DefaultConfig, the YAML file given to LoadConfig,
// environment variables (ApplyEnv), then whatever the caller sets afterwards.
type Config struct {
	// Source layout
	SourceDir       string `yaml:"source_dir"`       // Cuba source tree, build runs here
	PatchDir        string `yaml:"patch_dir"`        // Directory of .patch/.diff files
	PatchStrip      int    `yaml:"patch_strip"`      // Leading path components stripped (patch -pN)
	DistDir         string `yaml:"dist_dir"`         // Destination for artifacts
	ConfigureScript string `yaml:"configure_script"` // Configure step, run without arguments

	// Artifact naming
	LibName       string `yaml:"lib_name"`       // Shared library base name (libcuba)
	ArchiveTarget string `yaml:"archive_target"` // make target producing the static archive

	// Toolchain overrides; empty means platform default
	CC              string `yaml:"cc"`
	CFlags          string `yaml:"cflags"` // Replaces the computed flag set entirely
	Make            string `yaml:"make"`
	AR              string `yaml:"ar"`
	Patch           string `yaml:"patch"`
	MacOSMinVersion string `yaml:"macos_min_version"`

	// Files produced by configure and removed by the clean stage
	Transients []string `yaml:"transients"`

	// Artifact verification
	VerifySymbols   bool     `yaml:"verify_symbols"`
	RequiredSymbols []string `yaml:"required_symbols"`

	// Explicit library path used by Locate (LIBCUBA)
	LibraryPath string `yaml:"library_path"`

	// Target operating system, runtime.GOOS unless overridden
	GOOS string `yaml:"goos"`

	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the configuration for building Cuba in the current
// directory.
func DefaultConfig() *Config {
	cfg := &Config{PatchStrip: DefaultPatchStrip}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
//
// Environment variables are expanded in path fields. The environment
// overrides (CC, CFLAGS, ...) are not applied; call ApplyEnv for that.
func LoadConfig(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// patch_strip may legitimately be 0, so its default is set before parsing
	cfg := Config{PatchStrip: DefaultPatchStrip}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overlays the toolchain environment variables.
//
// lookup is normally os.LookupEnv. Empty values are ignored, so CFLAGS=""
// keeps the computed flag set.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set(EnvCC, &c.CC)
	set(EnvCFlags, &c.CFlags)
	set(EnvMake, &c.Make)
	set(EnvAR, &c.AR)
	set(EnvLibraryPath, &c.LibraryPath)
	set(EnvMacOSMinTarget, &c.MacOSMinVersion)

	return c.Validate()
}

func (c *Config) expandEnv() {
	c.SourceDir = os.ExpandEnv(c.SourceDir)
	c.PatchDir = os.ExpandEnv(c.PatchDir)
	c.DistDir = os.ExpandEnv(c.DistDir)
	c.LibraryPath = os.ExpandEnv(c.LibraryPath)
}

// applyDefaults fills in zero-value fields.
func (c *Config) applyDefaults() {
	if c.SourceDir == "" {
		c.SourceDir = "."
	}
	if c.PatchDir == "" {
		c.PatchDir = DefaultPatchDir
	}
	if c.DistDir == "" {
		c.DistDir = DefaultDistDir
	}
	if c.ConfigureScript == "" {
		c.ConfigureScript = DefaultConfigureScript
	}
	if c.LibName == "" {
		c.LibName = DefaultLibName
	}
	if c.ArchiveTarget == "" {
		c.ArchiveTarget = c.LibName + ".a"
	}
	if c.MacOSMinVersion == "" {
		c.MacOSMinVersion = DefaultMacOSMinVersion
	}
	if c.Transients == nil {
		c.Transients = []string{"config.log", "config.status", "config.h", "makefile"}
	}
	if c.RequiredSymbols == nil {
		c.RequiredSymbols = []string{"Vegas", "Suave", "Divonne", "Cuhre"}
	}
	if c.GOOS == "" {
		c.GOOS = runtime.GOOS
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return fmt.Errorf("source_dir is required")
	}
	if c.LibName == "" {
		return fmt.Errorf("lib_name is required")
	}
	if filepath.Base(c.LibName) != c.LibName {
		return fmt.Errorf("lib_name must be a bare file name: %s", c.LibName)
	}
	if c.ArchiveTarget == "" {
		return fmt.Errorf("archive_target is required")
	}
	if c.PatchStrip < 0 {
		return fmt.Errorf("patch_strip must not be negative: %d", c.PatchStrip)
	}
	for _, t := range c.Transients {
		if !filepath.IsLocal(t) {
			return fmt.Errorf("transient %q must be a path inside source_dir", t)
		}
	}
	if c.VerifySymbols && len(c.RequiredSymbols) == 0 {
		return fmt.Errorf("verify_symbols requires at least one required symbol")
	}
	return nil
}

// PatchPath returns the absolute-or-relative patch directory resolved
// against SourceDir.
func (c *Config) PatchPath() string {
	return c.resolve(c.PatchDir)
}

// DistPath returns the distribution directory resolved against SourceDir.
func (c *Config) DistPath() string {
	return c.resolve(c.DistDir)
}

// ArchivePath returns the path of the static archive produced by make.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.SourceDir, c.ArchiveTarget)
}

func (c *Config) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.SourceDir, dir)
}
