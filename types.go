package libbuild

// StageName identifies one step of the build pipeline.
type StageName string

// Pipeline stages in execution order.
const (
	StagePatch     StageName = "patch"
	StageConfigure StageName = "configure"
	StageCompile   StageName = "compile"
	StageUnpack    StageName = "unpack"
	StageLink      StageName = "link"
	StageVerify    StageName = "verify"
	StageRelocate  StageName = "relocate"
	StageUnpatch   StageName = "unpatch"
	StageClean     StageName = "clean"
)

// Result contains the output and status of a pipeline run.
//
// After a run completes, this structure provides:
//   - Success status indicating every stage completed
//   - Stages that completed, in order
//   - Objects unpacked from the static archive
//   - Artifacts relocated into the distribution directory
//   - Output lines captured from the external tools
//   - RolledBack set when a failure triggered source tree restoration
type Result struct {
	RunID      string      // Identifier attached to every log line of the run
	Platform   string      // GOOS the run was resolved for
	Success    bool        // True if every stage completed
	Stages     []StageName // Completed stages, in order
	Patches    []string    // Patch files applied, in order
	Objects    []string    // Object files captured from the archive
	Library    string      // Shared library file name (e.g. libcuba.so)
	Artifacts  []string    // Paths of artifacts moved into the dist directory
	Output     []string    // Lines of output from the external tools
	RolledBack bool        // True if a failure restored the source tree
	Error      error       // Error if the run failed, nil otherwise
}
