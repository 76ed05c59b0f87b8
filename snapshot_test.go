package libbuild

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotTracksPatchResidue(t *testing.T) {
	dir := setupCubaTree(t)

	snap, err := TakeSnapshot(dir, []string{"cuba.h"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cuba.h", "cuba.h.orig", "cuba.h.rej"}, snap.Paths())

	changed, err := snap.Changed()
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestSnapshotRestore(t *testing.T) {
	dir := setupCubaTree(t)
	header := filepath.Join(dir, "cuba.h")
	require.NoError(t, os.Chmod(header, 0o600))

	snap, err := TakeSnapshot(dir, []string{"cuba.h", "src/vegas/vegas.c", "src/common/new.c"})
	require.NoError(t, err)

	// what a half-applied patch run leaves behind
	writeFile(t, dir, "cuba.h", "int Suave(void);\n")
	require.NoError(t, os.Chmod(header, 0o755))
	writeFile(t, dir, "cuba.h.rej", "rejected\n")
	writeFile(t, dir, "src/vegas/vegas.c.orig", vegasSource)
	writeFile(t, dir, "src/common/new.c", "int n;\n")

	restored, err := snap.Restore()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"cuba.h", "cuba.h.rej",
		filepath.FromSlash("src/vegas/vegas.c.orig"),
		filepath.FromSlash("src/common/new.c"),
	}, restored)

	assert.Equal(t, cubaHeader, readString(t, header))
	info, err := os.Stat(header)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.NoFileExists(t, filepath.Join(dir, "cuba.h.rej"))
	assert.NoFileExists(t, filepath.Join(dir, "src/vegas/vegas.c.orig"))
	assert.NoDirExists(t, filepath.Join(dir, "src/common"), "directories created by a patch are removed")
	assert.DirExists(t, filepath.Join(dir, "src/vegas"))

	// a second restore has nothing left to do
	restored, err = snap.Restore()
	require.NoError(t, err)
	assert.Empty(t, restored)
}

func TestSnapshotRestoresDeletedFile(t *testing.T) {
	dir := setupCubaTree(t)

	snap, err := TakeSnapshot(dir, []string{"src/vegas/vegas.c"})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "src")))

	_, err = snap.Restore()
	require.NoError(t, err)
	assert.Equal(t, vegasSource, readString(t, filepath.Join(dir, "src/vegas/vegas.c")))
}

func TestTakeSnapshotRejectsUnsafePaths(t *testing.T) {
	dir := t.TempDir()

	_, err := TakeSnapshot(dir, []string{"../outside.c"})
	assert.Error(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "include"), 0o755))
	_, err = TakeSnapshot(dir, []string{"include"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a regular file")
}
