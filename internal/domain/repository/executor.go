package repository

import (
	"context"

	"graphgen/internal/domain/entity"
)

// CodeExecutor runs generated code in isolation and writes its artifact.
type CodeExecutor interface {
	Execute(ctx context.Context, script entity.Script) (*entity.ExecutionResult, error)
}
