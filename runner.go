package libbuild

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Command is a single external program invocation.
type Command struct {
	Dir  string   // Working directory
	Env  []string // Added to the inherited environment
	Name string
	Args []string
}

// String renders the command the way a shell user would type it.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Output holds the captured lines of a command.
type Output struct {
	Stdout []string
	Stderr []string
}

// Lines returns stdout followed by stderr.
func (o Output) Lines() []string {
	lines := make([]string, 0, len(o.Stdout)+len(o.Stderr))
	lines = append(lines, o.Stdout...)
	return append(lines, o.Stderr...)
}

// Runner executes external programs. The pipeline never shells out except
// through a Runner, which lets tests substitute a fake toolchain.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// ExecRunner runs commands with os/exec.
//
// Tool output is streamed to Stdout and Stderr as it is produced, so users
// see the raw diagnostics of patch, make and the compiler, and is captured
// at the same time.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// Run executes cmd and returns its captured output.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Output, error) {
	if r.Logger != nil {
		r.Logger.Debug("running command", "command", c.String(), "dir", c.Dir)
	}

	//nolint:gosec // Program names come from the resolved toolchain
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, writerOrDiscard(r.Stdout))
	cmd.Stderr = io.MultiWriter(&stderr, writerOrDiscard(r.Stderr))

	err := cmd.Run()
	out := Output{
		Stdout: splitLines(stdout.String()),
		Stderr: splitLines(stderr.String()),
	}
	if err != nil {
		return out, fmt.Errorf("%s: %w", c.String(), err)
	}
	return out, nil
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
