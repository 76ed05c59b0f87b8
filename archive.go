package libbuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Archive members that hold the symbol index rather than an object file.
// GNU ar writes "/" and "//" (long names), BSD ar writes __.SYMDEF variants.
var symbolTableMembers = map[string]struct{}{
	"/":                   {},
	"//":                  {},
	"/SYM64/":             {},
	"__.SYMDEF":           {},
	"__.SYMDEF SORTED":    {},
	"__.SYMDEF_64":        {},
	"__.SYMDEF_64 SORTED": {},
}

// archiveMembers filters an `ar t` listing down to the object members,
// dropping the symbol table and duplicate names.
func archiveMembers(listing []string) ([]string, error) {
	var members []string
	for _, line := range listing {
		name := strings.TrimRight(line, "\r")
		if strings.TrimSpace(name) == "" {
			continue
		}
		if _, ok := symbolTableMembers[name]; ok {
			continue
		}
		if filepath.Base(name) != name || !filepath.IsLocal(name) {
			return nil, fmt.Errorf("archive member %q is not a plain file name", name)
		}
		members = append(members, name)
	}
	return uniqueStrings(members), nil
}

// unpackArchive extracts the object members of archive into dir and
// returns their names. The returned list is exactly what exists on disk
// afterwards, since it drives both the link inputs and the cleanup.
func unpackArchive(ctx context.Context, runner Runner, ar, dir, archive string, result *Result) ([]string, error) {
	name := filepath.Base(archive)

	out, err := runner.Run(ctx, Command{Dir: dir, Name: ar, Args: []string{"t", name}})
	result.Output = append(result.Output, out.Stderr...)
	if err != nil {
		return nil, BuildError(ar, out.Lines(), err)
	}

	members, err := archiveMembers(out.Stdout)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoObjects, name)
	}

	out, err = runner.Run(ctx, Command{Dir: dir, Name: ar, Args: append([]string{"x", name}, members...)})
	result.Output = append(result.Output, out.Lines()...)
	if err != nil {
		// partial extraction still leaves files to clean up
		return existingFiles(dir, members), BuildError(ar, out.Lines(), err)
	}

	var missing []string
	for _, m := range members {
		if _, err := os.Stat(filepath.Join(dir, m)); err != nil {
			missing = append(missing, m)
		}
	}
	if len(missing) > 0 {
		return existingFiles(dir, members), fmt.Errorf("archive members not extracted: %s", strings.Join(missing, ", "))
	}

	return members, nil
}

func existingFiles(dir string, names []string) []string {
	var found []string
	for _, n := range names {
		if _, err := os.Stat(filepath.Join(dir, n)); err == nil {
			found = append(found, n)
		}
	}
	return found
}

// linkCommand builds the compiler invocation that turns objects into the
// shared library output.
func linkCommand(tc Toolchain, p Platform, dir, output string, objects []string) (Command, error) {
	if len(objects) == 0 {
		return Command{}, errors.New("no object files to link")
	}

	cc, ccArgs := tc.compiler()

	args := append([]string(nil), ccArgs...)
	args = append(args, p.SharedFlag)
	args = append(args, tc.CFlags...)
	args = append(args, "-o", output)
	args = append(args, objects...)
	args = append(args, "-lm")

	return Command{Dir: dir, Name: cc, Args: args}, nil
}
