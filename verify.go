package libbuild

import (
	"debug/elf"
	"debug/macho"
	"fmt"
	"strings"
)

// ExportedSymbols returns the names of the global symbols a shared library
// defines. ELF and Mach-O files are supported; Mach-O's leading underscore
// is removed so names match the C identifiers.
func ExportedSymbols(path string) ([]string, error) {
	if f, err := elf.Open(path); err == nil {
		defer f.Close()
		return elfExports(f)
	}

	if f, err := macho.Open(path); err == nil {
		defer f.Close()
		return machoExports(f), nil
	}

	return nil, fmt.Errorf("%s is neither an ELF nor a Mach-O file", path)
}

func elfExports(f *elf.File) ([]string, error) {
	syms, err := f.DynamicSymbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read dynamic symbols: %w", err)
	}

	var names []string
	for _, s := range syms {
		bind := elf.ST_BIND(s.Info)
		if s.Section == elf.SHN_UNDEF || (bind != elf.STB_GLOBAL && bind != elf.STB_WEAK) {
			continue
		}
		names = append(names, s.Name)
	}
	return uniqueStrings(names), nil
}

const (
	machoStab     = 0xe0 // N_STAB: debugging entry
	machoTypeMask = 0x0e // N_TYPE
	machoSect     = 0x0e // N_SECT: defined in a section
	machoExt      = 0x01 // N_EXT: external
)

func machoExports(f *macho.File) []string {
	if f.Symtab == nil {
		return nil
	}

	var names []string
	for _, s := range f.Symtab.Syms {
		if s.Type&machoStab != 0 || s.Type&machoExt == 0 || s.Type&machoTypeMask != machoSect {
			continue
		}
		names = append(names, strings.TrimPrefix(s.Name, "_"))
	}
	return uniqueStrings(names)
}

// VerifyLibrary checks that the library at path exports every required
// symbol. Missing symbols are reported in an error wrapping
// ErrMissingSymbols.
func VerifyLibrary(path string, required []string) error {
	have, err := ExportedSymbols(path)
	if err != nil {
		return err
	}

	if missing := missingSymbols(have, required); len(missing) > 0 {
		return fmt.Errorf("%w: %s lacks %s", ErrMissingSymbols, path, strings.Join(missing, ", "))
	}
	return nil
}

func missingSymbols(have, required []string) []string {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}

	var missing []string
	for _, r := range required {
		if _, ok := set[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}
