package repository

import (
	"context"
	"errors"

	"graphgen/internal/domain/entity"
)

var ErrRunNotFound = errors.New("run not found")

type RunRepository interface {
	Create(ctx context.Context, run *entity.Run) error
	GetByID(ctx context.Context, id string) (*entity.Run, error)
	List(ctx context.Context) ([]*entity.Run, error)
	Update(ctx context.Context, run *entity.Run) error
	Delete(ctx context.Context, id string) error
}
