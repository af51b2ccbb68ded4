package repository

import "graphgen/internal/domain/entity"

// ScriptValidator statically checks generated code before it is executed.
type ScriptValidator interface {
	Validate(code string) entity.ValidationResult
}
