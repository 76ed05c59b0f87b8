// Package libbuild turns the Cuba numerical-integration C library source
// tree into a shared library that a scripting-language binding can load.
//
// The Cuba sources are built by their own configure/make system into a static
// archive. This package drives that build and relinks the archive members
// into a shared object with the platform's suffix, then moves the artifacts
// into a distribution directory.
//
// # Pipeline
//
// A build is a strictly linear list of stages:
//
//	Patch → Configure → Compile → Unpack → Link → Relocate → Unpatch → Clean
//
// The first failing stage halts the run. Before any stage executes the
// platform and toolchain are resolved, so an unsupported operating system is
// rejected before the source tree or distribution directory is touched.
//
// # Source Tree Restoration
//
// Every file named by the patch set is snapshotted before patching. After the
// patches are reverted the tree is compared against the snapshot and any
// residue is restored. When a stage fails after patching began, the pipeline
// reverts what it applied, restores the snapshot and removes transient files
// before returning the stage error.
//
// # Basic Usage
//
//	cfg := libbuild.DefaultConfig()
//	cfg.SourceDir = "/path/to/cuba"
//	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
//	    return err
//	}
//
//	pipeline, err := libbuild.NewPipeline(cfg, libbuild.WithLogger(logger))
//	if err != nil {
//	    return err // unsupported platform, invalid config
//	}
//	result, err := pipeline.Run(ctx)
//
// # Environment
//
// CC overrides the compiler and CFLAGS replaces the computed flag set
// entirely. MAKE and AR override the make program and archiver. LIBCUBA names
// an explicit library path for [Locate], mirroring the binding's loader.
//
// # Platform Support
//
// Linux (.so) and macOS (.dylib). Every other platform is rejected with
// [ErrUnsupportedPlatform].
package libbuild
