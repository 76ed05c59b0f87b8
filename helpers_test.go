package libbuild

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildError(t *testing.T) {
	cause := exitError{code: 2}

	err := BuildError("make", []string{"gcc -c vegas.c", "vegas.c:12: error: expected ';'"}, cause)
	assert.Equal(t, "make build failed: exit status 2\n\nBuild output:\ngcc -c vegas.c\nvegas.c:12: error: expected ';'", err.Error())
	assert.ErrorIs(t, err, cause)

	err = BuildError("ar", nil, cause)
	assert.Equal(t, "ar build failed: exit status 2", err.Error())

	assert.Equal(t, "link build failed", BuildError("link", []string{"  "}, nil).Error())
}

func TestStageError(t *testing.T) {
	cause := BuildError("make", nil, exitError{code: 4})
	restore := errors.New("failed to restore cuba.h: permission denied")

	err := &StageError{Stage: StageCompile, Err: cause, Rollback: restore}

	assert.Equal(t, 4, err.ExitStatus(), "rollback failures do not mask the tool status")
	assert.ErrorIs(t, err, restore)
	assert.Contains(t, err.Error(), "compile stage failed: make build failed")
	assert.Contains(t, err.Error(), "source tree restoration also failed: failed to restore cuba.h")

	assert.Equal(t, 0, exitStatusOf(nil))
	assert.Equal(t, 1, exitStatusOf(exitError{code: 0}))
}

func TestMatchesExtension(t *testing.T) {
	assert.True(t, MatchesExtension("01-vegas.patch", ".patch", ".diff"))
	assert.True(t, MatchesExtension("FIX.DIFF", ".patch", ".diff"))
	assert.False(t, MatchesExtension("README", ".patch", ".diff"))
}

func TestUniqueStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, uniqueStrings([]string{"a", "", "b", "a"}))
	assert.Nil(t, uniqueStrings(nil))
}

func TestRunStagesHaltsOnFirstFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	result := &Result{}
	var ran []StageName

	step := func(name StageName, err error) stage {
		return stage{name, func(context.Context) error {
			ran = append(ran, name)
			return err
		}}
	}

	err := runStages(context.Background(), logger, result, []stage{
		step(StagePatch, nil),
		step(StageConfigure, exitError{code: 77}),
		step(StageCompile, nil),
	})

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageConfigure, stageErr.Stage)
	assert.Equal(t, 77, stageErr.ExitStatus())
	assert.Equal(t, []StageName{StagePatch, StageConfigure}, ran)
	assert.Equal(t, []StageName{StagePatch}, result.Stages)
}
