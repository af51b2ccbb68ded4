package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"graphgen/internal/domain/entity"
	"graphgen/internal/domain/repository"
	"graphgen/internal/infrastructure/metrics"
)

const (
	DefaultTimeout        = 60 * time.Second
	DefaultMaxOutputBytes = 1 << 20

	// ArtifactName is the file name a sandbox reports its artifact under.
	ArtifactName = "artifact.png"
)

type ProcessConfig struct {
	Runtime string
	// Command overrides the runtime's interpreter command.
	Command        []string
	Timeout        time.Duration
	MaxOutputBytes int
	// WorkRoot is the parent of per-run scratch dirs; empty means os.TempDir.
	WorkRoot string
}

// ProcessExecutor runs a script as a child process in a scratch directory
// with a scrubbed environment and a deadline.
type ProcessExecutor struct {
	cfg     ProcessConfig
	runtime runtimeSpec
	logger  *slog.Logger
}

var _ repository.CodeExecutor = (*ProcessExecutor)(nil)

func NewProcessExecutor(cfg ProcessConfig, logger *slog.Logger) (*ProcessExecutor, error) {
	if cfg.Runtime == "" {
		cfg.Runtime = RuntimePython
	}
	rt, ok := runtimes[cfg.Runtime]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported sandbox runtime %q", entity.ErrConfig, cfg.Runtime)
	}
	if len(cfg.Command) > 0 {
		rt.command = cfg.Command
	}
	if _, err := exec.LookPath(rt.command[0]); err != nil {
		return nil, fmt.Errorf("%w: interpreter %q not found: %v", entity.ErrConfig, rt.command[0], err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessExecutor{cfg: cfg, runtime: rt, logger: logger}, nil
}

func (e *ProcessExecutor) Execute(parent context.Context, script entity.Script) (*entity.ExecutionResult, error) {
	data, result, err := e.Run(parent, script.Code)
	if err != nil {
		return result, err
	}
	if err := writeArtifact(script.ArtifactPath, data); err != nil {
		result.Success = false
		result.Error = err.Error()
		return result, err
	}
	result.ArtifactPath = script.ArtifactPath
	return result, nil
}

// Run executes code and returns the artifact bytes it produced. Nothing is
// written outside the scratch directory, which is removed before returning.
func (e *ProcessExecutor) Run(parent context.Context, code string) ([]byte, *entity.ExecutionResult, error) {
	result := &entity.ExecutionResult{ExitCode: -1}
	fail := func(err error) ([]byte, *entity.ExecutionResult, error) {
		result.Success = false
		result.Error = err.Error()
		return nil, result, err
	}

	if strings.TrimSpace(code) == "" {
		return fail(fmt.Errorf("%w: empty script", entity.ErrExecution))
	}

	workDir, err := os.MkdirTemp(e.cfg.WorkRoot, "graphgen-exec-*")
	if err != nil {
		return fail(fmt.Errorf("%w: create work dir: %v", entity.ErrIO, err))
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			e.logger.Warn("remove work dir failed", "dir", workDir, "err", err)
		}
	}()

	outputDir := filepath.Join(workDir, "output")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fail(fmt.Errorf("%w: create output dir: %v", entity.ErrIO, err))
	}
	artifactPath := filepath.Join(outputDir, ArtifactName)

	scriptPath := filepath.Join(workDir, "script"+e.runtime.scriptExt)
	if err := os.WriteFile(scriptPath, []byte(code), 0o644); err != nil {
		return fail(fmt.Errorf("%w: write script: %v", entity.ErrIO, err))
	}

	entry := scriptPath
	if e.runtime.harness != "" {
		entry = filepath.Join(workDir, "runner"+e.runtime.scriptExt)
		if err := os.WriteFile(entry, []byte(e.runtime.harness), 0o644); err != nil {
			return fail(fmt.Errorf("%w: write harness: %v", entity.ErrIO, err))
		}
	}

	ctx, cancel := context.WithTimeout(parent, e.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, e.runtime.command[1:]...), entry)
	cmd := exec.CommandContext(ctx, e.runtime.command[0], args...)
	cmd.Dir = workDir
	cmd.Env = []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + workDir,
		"MPLBACKEND=Agg",
		"MPLCONFIGDIR=" + workDir,
		"OUTPUT_DIR=" + outputDir,
		"ARTIFACT_PATH=" + artifactPath,
		"GRAPH_SCRIPT=" + scriptPath,
	}
	cmd.WaitDelay = 5 * time.Second

	stdout := &limitedBuffer{max: e.cfg.MaxOutputBytes}
	stderr := &limitedBuffer{max: e.cfg.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			metrics.ObserveExecution("process", "timeout", result.Duration)
			return fail(fmt.Errorf("%w: script timed out after %s", entity.ErrExecution, e.cfg.Timeout))
		case parent.Err() != nil:
			metrics.ObserveExecution("process", "error", result.Duration)
			return fail(fmt.Errorf("%w: canceled: %w", entity.ErrExecution, parent.Err()))
		case errors.As(runErr, &exitErr):
			result.ExitCode = exitErr.ExitCode()
			metrics.ObserveExecution("process", "error", result.Duration)
			return fail(fmt.Errorf("%w: script exited with code %d: %s", entity.ErrExecution, result.ExitCode, lastLine(result.Stderr)))
		default:
			metrics.ObserveExecution("process", "error", result.Duration)
			return fail(fmt.Errorf("%w: start interpreter: %v", entity.ErrExecution, runErr))
		}
	}
	result.ExitCode = 0

	data, err := readArtifact(artifactPath, outputDir, workDir)
	if err != nil {
		metrics.ObserveExecution("process", "error", result.Duration)
		return fail(err)
	}

	metrics.ObserveExecution("process", "success", result.Duration)
	e.logger.Debug("script executed", "duration", result.Duration, "artifact_bytes", len(data))

	result.Success = true
	return data, result, nil
}

// readArtifact prefers the agreed artifact path, then the first regular file
// the script left in the output directory, then the first png it saved into
// its working directory.
func readArtifact(artifactPath, outputDir, workDir string) ([]byte, error) {
	if data, err := os.ReadFile(artifactPath); err == nil {
		return data, nil
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: read output dir: %v", entity.ErrIO, err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(outputDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: read artifact %s: %v", entity.ErrIO, entry.Name(), err)
		}
		return data, nil
	}

	// Glob returns matches in lexical order.
	pngs, err := filepath.Glob(filepath.Join(workDir, "*.png"))
	if err != nil {
		return nil, fmt.Errorf("%w: scan work dir: %v", entity.ErrIO, err)
	}
	for _, path := range pngs {
		info, err := os.Lstat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read artifact %s: %v", entity.ErrIO, filepath.Base(path), err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: script produced no artifact", entity.ErrExecution)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
