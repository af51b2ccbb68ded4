package repository

import (
	"context"

	"graphgen/internal/domain/entity"
)

// Generator sends a generation request to a hosted model.
type Generator interface {
	Generate(ctx context.Context, req entity.GenerationRequest) (entity.GenerationResponse, error)
	Model() string
}
