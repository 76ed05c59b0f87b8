package libbuild

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrLibraryNotFound     = errors.New("shared library not found")
	ErrNoObjects           = errors.New("static archive contains no object files")
	ErrMissingSymbols      = errors.New("shared library is missing required symbols")
	ErrLocked              = errors.New("another build is running in this source tree")
)

// StageError reports the pipeline stage that halted a run.
//
// Rollback holds whatever went wrong while restoring the source tree after
// the failure; it never replaces Err. ExitStatus mirrors the native exit
// status of the failing tool so the CLI can exit with it (see mg.ExitStatus).
type StageError struct {
	Stage    StageName
	Err      error
	Rollback error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
	if e.Rollback != nil {
		msg += fmt.Sprintf("\n\nsource tree restoration also failed: %v", e.Rollback)
	}
	return msg
}

func (e *StageError) Unwrap() []error {
	if e.Rollback == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Rollback}
}

// ExitStatus returns the exit status of the underlying tool, or 1 when the
// failure did not come from a process exit.
func (e *StageError) ExitStatus() int {
	return exitStatusOf(e.Err)
}

type exitCoder interface {
	ExitCode() int
}

type exitStatuser interface {
	ExitStatus() int
}

func exitStatusOf(err error) int {
	if err == nil {
		return 0
	}

	var ec exitCoder
	if errors.As(err, &ec) {
		if code := ec.ExitCode(); code > 0 {
			return code
		}
	}

	var es exitStatuser
	if errors.As(err, &es) {
		if code := es.ExitStatus(); code > 0 {
			return code
		}
	}

	return 1
}

// MatchesExtension checks if a filename has any of the given extensions.
//
// This is a case-insensitive check. Works with or without a leading dot.
func MatchesExtension(filename string, extensions ...string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(strings.ToLower(filename), strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// BuildError creates a standardized tool failure error with output context.
//
// With error and output:
//
//	make build failed: exit status 2
//
//	Build output:
//	gcc -c vegas.c
//	vegas.c:12: error: ...
func BuildError(tool string, output []string, err error) error {
	outputStr := strings.TrimSpace(strings.Join(output, "\n"))

	var prefix string
	if err != nil {
		prefix = fmt.Sprintf("%s build failed: %v", tool, err)
	} else {
		prefix = fmt.Sprintf("%s build failed", tool)
	}

	if outputStr != "" {
		return &toolError{msg: fmt.Sprintf("%s\n\nBuild output:\n%s", prefix, outputStr), err: err}
	}

	return &toolError{msg: prefix, err: err}
}

// toolError keeps the underlying process error reachable for exit statuses.
type toolError struct {
	msg string
	err error
}

func (e *toolError) Error() string { return e.msg }

func (e *toolError) Unwrap() error { return e.err }

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	var result []string

	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}

	return result
}
