package libbuild

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// exitError stands in for *exec.ExitError.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func (e exitError) ExitCode() int { return e.code }

// fakeToolchain emulates patch, configure, make, ar and the compiler on the
// filesystem so the pipeline can run without a C toolchain.
//
// patch appends a marker line per patch to every file the diff names, and
// patch -R strips it again, which makes apply and revert exact inverses.
type fakeToolchain struct {
	mu    sync.Mutex
	calls []Command

	// members listed by `ar t`, symbol table first
	members []string
	// command name (or "patch:<file>") mapped to the error it returns
	failOn map[string]error
	// leave a .orig file next to every reverted file
	revertResidue bool
}

func newFakeToolchain() *fakeToolchain {
	return &fakeToolchain{
		members: []string{"__.SYMDEF SORTED", "a.o", "b.o"},
		failOn:  map[string]error{},
	}
}

func (f *fakeToolchain) Run(_ context.Context, c Command) (Output, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	if err, ok := f.failOn[c.Name]; ok {
		return Output{Stderr: []string{c.Name + ": simulated failure"}}, err
	}

	switch {
	case c.Name == "patch":
		return f.patch(c)
	case c.Name == DefaultConfigureScript:
		for _, name := range []string{"config.log", "config.status", "config.h", "makefile"} {
			if err := os.WriteFile(filepath.Join(c.Dir, name), []byte("generated\n"), 0o644); err != nil {
				return Output{}, err
			}
		}
		return Output{Stdout: []string{"checking for gcc... gcc"}}, nil
	case c.Name == "make":
		target := c.Args[len(c.Args)-1]
		return Output{Stdout: []string{"ar cru " + target}}, os.WriteFile(filepath.Join(c.Dir, target), []byte("!<arch>\n"), 0o644)
	case c.Name == "ar" && c.Args[0] == "t":
		return Output{Stdout: append([]string(nil), f.members...)}, nil
	case c.Name == "ar" && c.Args[0] == "x":
		for _, m := range c.Args[2:] {
			content := "symbol " + strings.TrimSuffix(m, ".o") + "\n"
			if err := os.WriteFile(filepath.Join(c.Dir, m), []byte(content), 0o644); err != nil {
				return Output{}, err
			}
		}
		return Output{}, nil
	case c.Name == "gcc" || c.Name == "clang":
		return Output{}, f.link(c)
	}

	return Output{}, fmt.Errorf("unexpected command %s", c.String())
}

func (f *fakeToolchain) patch(c Command) (Output, error) {
	var strip int
	var file string
	reverse := false
	for i, a := range c.Args {
		switch {
		case strings.HasPrefix(a, "-p"):
			strip, _ = strconv.Atoi(strings.TrimPrefix(a, "-p"))
		case a == "-R":
			reverse = true
		case a == "-i":
			file = c.Args[i+1]
		}
	}

	if err, ok := f.failOn["patch:"+filepath.Base(file)]; ok && !reverse {
		// a failing patch leaves a reject file behind, like patch(1)
		files, _ := patchedFiles(file, strip)
		for _, name := range files {
			_ = os.WriteFile(filepath.Join(c.Dir, name+".rej"), []byte("rejected hunk\n"), 0o644)
		}
		return Output{Stdout: []string{"1 out of 1 hunk FAILED"}}, err
	}

	files, err := patchedFiles(file, strip)
	if err != nil {
		return Output{}, err
	}

	marker := "/* " + filepath.Base(file) + " */\n"
	for _, name := range files {
		path := filepath.Join(c.Dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return Output{}, err
		}
		if reverse {
			if !bytes.HasSuffix(data, []byte(marker)) {
				return Output{}, fmt.Errorf("%s is not patched by %s", name, file)
			}
			data = bytes.TrimSuffix(data, []byte(marker))
			if f.revertResidue {
				_ = os.WriteFile(path+".orig", []byte("backup\n"), 0o644)
			}
		} else {
			data = append(data, marker...)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return Output{}, err
		}
	}

	return Output{Stdout: []string{"patching file " + strings.Join(files, " ")}}, nil
}

func (f *fakeToolchain) link(c Command) error {
	var output string
	var content []byte
	for i, a := range c.Args {
		if a == "-o" {
			output = c.Args[i+1]
		}
		if strings.HasSuffix(a, ".o") {
			data, err := os.ReadFile(filepath.Join(c.Dir, a))
			if err != nil {
				return err
			}
			content = append(content, data...)
		}
	}
	return os.WriteFile(filepath.Join(c.Dir, output), content, 0o755)
}

func (f *fakeToolchain) commandNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, len(f.calls))
	for i, c := range f.calls {
		names[i] = c.Name
	}
	return names
}

func (f *fakeToolchain) find(name string) (Command, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, c := range f.calls {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

const (
	vegasSource = "int Vegas(void) { return 0; }\n"
	cubaHeader  = "int Vegas(void);\n"
)

// setupCubaTree writes a miniature Cuba checkout with two patches and
// returns its directory.
func setupCubaTree(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	writeFile(t, dir, "src/vegas/vegas.c", vegasSource)
	writeFile(t, dir, "cuba.h", cubaHeader)
	writeFile(t, dir, "makefile.in", "lib: libcuba.a\n")
	writeFile(t, dir, "patches/01-vegas.patch", unifiedDiff("src/vegas/vegas.c", "int Vegas(void) { return 0; }", "int cubacores;"))
	writeFile(t, dir, "patches/02-header.patch", unifiedDiff("cuba.h", "int Vegas(void);", "int Suave(void);"))

	return dir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()

	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func unifiedDiff(file, context, added string) string {
	return fmt.Sprintf("--- a/%s\n+++ b/%s\n@@ -1 +1,2 @@\n %s\n+%s\n", file, file, context, added)
}

// treeContents maps every file under dir, except those under skip, to its
// contents.
func treeContents(t *testing.T, dir string, skip ...string) map[string]string {
	t.Helper()

	contents := make(map[string]string)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		for _, s := range skip {
			if rel == s {
				return filepath.SkipDir
			}
		}
		if info.Mode().IsRegular() {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			contents[rel] = string(data)
		}
		return nil
	})
	require.NoError(t, err)
	return contents
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
