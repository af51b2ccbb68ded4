package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"graphgen/internal/domain/entity"
	"graphgen/internal/domain/repository"
	"graphgen/internal/infrastructure/metrics"
)

const (
	metadataFile = "metadata.json"
	scriptFile   = "script.py"
)

// RunRepository keeps one directory per run holding metadata.json and the
// generated script.
type RunRepository struct {
	basePath string
	mu       sync.RWMutex
}

var _ repository.RunRepository = (*RunRepository)(nil)

func NewRunRepository(basePath string) (*RunRepository, error) {
	info, err := os.Stat(basePath)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(basePath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("%w: failed to create directory %s: %v", entity.ErrIO, basePath, mkErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: failed to check directory %s: %v", entity.ErrIO, basePath, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%w: path %s exists but is not a directory", entity.ErrIO, basePath)
	}

	return &RunRepository{basePath: basePath}, nil
}

func (r *RunRepository) BasePath() string {
	return r.basePath
}

// ScriptPath is where the generated code of a run is kept.
func (r *RunRepository) ScriptPath(id string) string {
	return filepath.Join(r.basePath, id, scriptFile)
}

func (r *RunRepository) Create(ctx context.Context, run *entity.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir, err := r.runDir(run.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	return r.save(dir, run)
}

func (r *RunRepository) Update(ctx context.Context, run *entity.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir, err := r.runDir(run.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, metadataFile)); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", repository.ErrRunNotFound, run.ID)
	}
	return r.save(dir, run)
}

func (r *RunRepository) save(dir string, run *entity.Run) error {
	metrics.IncStoreOp("filesystem", "put")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create run directory: %v", entity.ErrIO, err)
	}

	if run.Code != "" {
		if err := os.WriteFile(filepath.Join(dir, scriptFile), []byte(run.Code), 0o644); err != nil {
			return fmt.Errorf("%w: failed to write script: %v", entity.ErrIO, err)
		}
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	tmp := filepath.Join(dir, metadataFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: failed to write metadata: %v", entity.ErrIO, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, metadataFile)); err != nil {
		return fmt.Errorf("%w: failed to write metadata: %v", entity.ErrIO, err)
	}
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*entity.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load(id)
}

func (r *RunRepository) load(id string) (*entity.Run, error) {
	metrics.IncStoreOp("filesystem", "get")

	dir, err := r.runDir(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", repository.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("%w: failed to read metadata: %v", entity.ErrIO, err)
	}

	var run entity.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	code, err := os.ReadFile(filepath.Join(dir, scriptFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: failed to read script: %v", entity.ErrIO, err)
	}
	run.Code = string(code)

	return &run, nil
}

// List returns runs newest first.
func (r *RunRepository) List(ctx context.Context) ([]*entity.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	metrics.IncStoreOp("filesystem", "list")

	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read directory: %v", entity.ErrIO, err)
	}

	var runs []*entity.Run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		run, err := r.load(e.Name())
		if errors.Is(err, repository.ErrRunNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

func (r *RunRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	metrics.IncStoreOp("filesystem", "delete")

	dir, err := r.runDir(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", repository.ErrRunNotFound, id)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: failed to delete run directory: %v", entity.ErrIO, err)
	}
	return nil
}

// runDir maps a run id to its directory. Only canonical uuids are accepted,
// which rules out separators, "." and "..".
func (r *RunRepository) runDir(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return "", fmt.Errorf("%w: %q", repository.ErrRunNotFound, id)
	}
	return filepath.Join(r.basePath, id), nil
}
