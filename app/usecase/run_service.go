package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"

	"graphgen/internal/domain/entity"
	"graphgen/internal/domain/repository"
)

type RunUsecase interface {
	GetRun(ctx context.Context, id string) (*entity.Run, error)
	ListRuns(ctx context.Context) ([]*entity.Run, error)
	DeleteRun(ctx context.Context, id string) error
}

var _ RunUsecase = (*RunService)(nil)

type RunService struct {
	runs repository.RunRepository
}

func NewRunService(runs repository.RunRepository) *RunService {
	return &RunService{runs: runs}
}

func (s *RunService) GetRun(ctx context.Context, id string) (*entity.Run, error) {
	if id == "" {
		return nil, fmt.Errorf("run id is required")
	}
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

func (s *RunService) ListRuns(ctx context.Context) ([]*entity.Run, error) {
	runs, err := s.runs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes the run record and its artifact, if any.
func (s *RunService) DeleteRun(ctx context.Context, id string) error {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.ArtifactPath != "" {
		if err := os.Remove(run.ArtifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: delete artifact of run %s: %v", entity.ErrIO, id, err)
		}
	}
	if err := s.runs.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	return nil
}
