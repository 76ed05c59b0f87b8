package libbuild

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRelocateArtifactsMovesLibraryAndArchive(t *testing.T) {
	srcDir := t.TempDir()
	distDir := filepath.Join(srcDir, "dist")

	for name, content := range map[string]string{
		"libcuba.so": "shared",
		"libcuba.a":  "static",
		"cuba.h":     "header",
		"a.o":        "object",
	} {
		if err := os.WriteFile(filepath.Join(srcDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(srcDir, "libcuba.d"), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	moved, err := relocateArtifacts(srcDir, distDir, "libcuba")
	if err != nil {
		t.Fatalf("relocateArtifacts returned error: %v", err)
	}

	expected := []string{filepath.Join(distDir, "libcuba.a"), filepath.Join(distDir, "libcuba.so")}
	if len(moved) != 2 || moved[0] != expected[0] || moved[1] != expected[1] {
		t.Fatalf("expected moved paths %v, got %v", expected, moved)
	}

	for _, name := range []string{"libcuba.so", "libcuba.a"} {
		if _, err := os.Stat(filepath.Join(srcDir, name)); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be gone from the source tree", name)
		}
	}
	if _, err := os.Stat(filepath.Join(srcDir, "cuba.h")); err != nil {
		t.Fatalf("unrelated file was touched: %v", err)
	}
	if _, err := os.Stat(filepath.Join(srcDir, "libcuba.d")); err != nil {
		t.Fatalf("directories are not artifacts: %v", err)
	}
}

func TestRelocateArtifactsReplacesExistingAndKeepsOthers(t *testing.T) {
	srcDir := t.TempDir()
	distDir := filepath.Join(srcDir, "dist")

	if err := os.MkdirAll(distDir, 0o755); err != nil {
		t.Fatalf("failed to create dist: %v", err)
	}
	if err := os.WriteFile(filepath.Join(distDir, "libcuba.so"), []byte("old"), 0o644); err != nil {
		t.Fatalf("failed to write old library: %v", err)
	}
	if err := os.WriteFile(filepath.Join(distDir, "NOTES"), []byte("notes"), 0o644); err != nil {
		t.Fatalf("failed to write notes: %v", err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "libcuba.so"), []byte("new"), 0o755); err != nil {
		t.Fatalf("failed to write library: %v", err)
	}

	if _, err := relocateArtifacts(srcDir, distDir, "libcuba"); err != nil {
		t.Fatalf("relocateArtifacts returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(distDir, "libcuba.so"))
	if err != nil || string(data) != "new" {
		t.Fatalf("expected library replaced with new build, got %q (%v)", data, err)
	}
	if _, err := os.Stat(filepath.Join(distDir, "NOTES")); err != nil {
		t.Fatalf("existing dist contents must survive: %v", err)
	}
}

func TestCopyFilePreservesMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "libcuba.dylib")
	dest := filepath.Join(dir, "out", "libcuba.dylib")

	if err := os.WriteFile(src, []byte("binary"), 0o600); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}
	if err := os.Chmod(src, 0o755); err != nil {
		t.Fatalf("failed to chmod source: %v", err)
	}

	if err := copyFile(src, dest); err != nil {
		t.Fatalf("copyFile returned error: %v", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("expected copy at %s: %v", dest, err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Fatalf("expected executable bit preserved, got %v", info.Mode())
	}
}
