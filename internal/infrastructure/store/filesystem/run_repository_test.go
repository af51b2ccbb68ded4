package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphgen/internal/domain/entity"
	"graphgen/internal/domain/repository"
)

func TestRunRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := NewRunRepository(filepath.Join(t.TempDir(), "runs"))
	require.NoError(t, err)

	run := entity.NewRun("interest rates 2023")
	require.NoError(t, repo.Create(ctx, run))
	require.Error(t, repo.Create(ctx, run))

	run.Code = "import matplotlib\n"
	run.Findings = []entity.ValidationFinding{{Line: 1, Rule: "r", Message: "m"}}
	run.UpdateStatus(entity.RunStatusSucceeded)
	require.NoError(t, repo.Update(ctx, run))

	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Topic, got.Topic)
	assert.Equal(t, entity.RunStatusSucceeded, got.Status)
	assert.Equal(t, run.Code, got.Code)
	assert.Equal(t, run.Findings, got.Findings)

	script, err := os.ReadFile(repo.ScriptPath(run.ID))
	require.NoError(t, err)
	assert.Equal(t, run.Code, string(script))

	require.NoError(t, repo.Delete(ctx, run.ID))
	_, err = repo.GetByID(ctx, run.ID)
	assert.ErrorIs(t, err, repository.ErrRunNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, run.ID), repository.ErrRunNotFound)
}

func TestRunRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo, err := NewRunRepository(t.TempDir())
	require.NoError(t, err)

	older := entity.NewRun("a")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := entity.NewRun("b")
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))
	require.NoError(t, os.MkdirAll(filepath.Join(repo.BasePath(), "stray"), 0o755))

	runs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)
}

func TestRunRepository_UpdateMissing(t *testing.T) {
	repo, err := NewRunRepository(t.TempDir())
	require.NoError(t, err)
	err = repo.Update(context.Background(), entity.NewRun("x"))
	assert.ErrorIs(t, err, repository.ErrRunNotFound)
}

func TestNewRunRepository_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := NewRunRepository(path)
	assert.ErrorIs(t, err, entity.ErrIO)
}

func TestRunRepository_RejectsIDsOutsideBase(t *testing.T) {
	ctx := context.Background()
	parent := t.TempDir()
	sibling := filepath.Join(parent, "sibling")
	require.NoError(t, os.MkdirAll(sibling, 0o755))

	repo, err := NewRunRepository(filepath.Join(parent, "runs"))
	require.NoError(t, err)

	for _, id := range []string{"..", ".", "", "../sibling", "sibling", "a/b"} {
		t.Run(id, func(t *testing.T) {
			assert.ErrorIs(t, repo.Delete(ctx, id), repository.ErrRunNotFound)

			_, err := repo.GetByID(ctx, id)
			assert.ErrorIs(t, err, repository.ErrRunNotFound)

			run := entity.NewRun("x")
			run.ID = id
			assert.ErrorIs(t, repo.Update(ctx, run), repository.ErrRunNotFound)
			assert.ErrorIs(t, repo.Create(ctx, run), repository.ErrRunNotFound)
		})
	}

	_, err = os.Stat(sibling)
	assert.NoError(t, err, "directories next to the run store must survive")
	_, err = os.Stat(repo.BasePath())
	assert.NoError(t, err)
}
