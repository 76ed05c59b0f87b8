package libbuild

import (
	"fmt"
	"os/exec"
	"strings"
)

// execLookPath is swapped out in tests.
var execLookPath = exec.LookPath

// ToolRequirement describes a build tool dependency.
//
// Tool with alternatives:
//
//	ToolRequirement{
//	    Name: "gcc",
//	    Alternatives: []string{"clang", "cc"},
//	    Purpose: "C compiler",
//	}
type ToolRequirement struct {
	// Name is the primary tool binary name (e.g., "gcc", "make").
	Name string

	// Alternatives are tool names that also satisfy this requirement.
	Alternatives []string

	// Optional tools are reported but never fail the check.
	Optional bool

	// Purpose is a human-readable description of why this tool is needed.
	Purpose string
}

// RequiredTools returns the programs the pipeline will invoke.
//
// Overridden programs (CC=clang-18, MAKE=gmake) are required by their exact
// name, without alternatives.
func (t Toolchain) RequiredTools() []ToolRequirement {
	cc, _ := t.compiler()
	return []ToolRequirement{
		{Name: t.Patch, Purpose: "apply and revert the patch set"},
		{Name: cc, Purpose: "C compiler and shared library linker"},
		{Name: t.Make, Purpose: "build the static archive"},
		{Name: t.AR, Purpose: "unpack the static archive"},
	}
}

// CheckTools verifies that every program of the toolchain is on PATH.
//
// The pipeline does not call this itself; resolving a missing compiler is
// left to its first invocation unless a caller opts in.
func (t Toolchain) CheckTools() error {
	return CheckRequiredTools(t.RequiredTools())
}

// CheckToolAvailable checks if a tool is available in the system PATH.
func CheckToolAvailable(tool string) error {
	_, err := execLookPath(tool)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", tool)
	}
	return nil
}

// CheckRequiredTools verifies all required tools are available.
//
// Each requirement is satisfied by its primary name or any alternative.
// All missing required tools are reported in a single error:
//
//	missing required tools: gcc (C compiler), ar (unpack the static archive)
func CheckRequiredTools(requirements []ToolRequirement) error {
	var missingTools []string

	for _, req := range requirements {
		found := CheckToolAvailable(req.Name) == nil

		if !found {
			for _, alt := range req.Alternatives {
				if CheckToolAvailable(alt) == nil {
					found = true
					break
				}
			}
		}

		if !found && !req.Optional {
			if req.Purpose != "" {
				missingTools = append(missingTools, fmt.Sprintf("%s (%s)", req.Name, req.Purpose))
			} else {
				missingTools = append(missingTools, req.Name)
			}
		}
	}

	if len(missingTools) == 0 {
		return nil
	}

	if len(missingTools) == 1 {
		return fmt.Errorf("%s not found in PATH", missingTools[0])
	}

	return fmt.Errorf("missing required tools: %s", strings.Join(missingTools, ", "))
}
