package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"graphgen/internal/domain/entity"
	"graphgen/internal/domain/repository"
	"graphgen/internal/infrastructure/metrics"
	"graphgen/internal/infrastructure/validator"
)

// EmitFunc receives progress events of a run. It is called synchronously.
type EmitFunc func(entity.RunEvent)

type OutputOptions struct {
	Dir      string
	FileName string
	PerRun   bool
}

// GraphPipeline runs topic -> request -> generation -> validation -> execution.
// Stages run strictly in order; any failure ends the run.
type GraphPipeline struct {
	generator repository.Generator
	validator repository.ScriptValidator // nil disables validation
	executor  repository.CodeExecutor
	runs      repository.RunRepository
	logger    *slog.Logger

	capabilities []entity.Capability
	output       OutputOptions
}

func NewGraphPipeline(
	gen repository.Generator,
	val repository.ScriptValidator,
	exec repository.CodeExecutor,
	runs repository.RunRepository,
	output OutputOptions,
	capabilities []entity.Capability,
	logger *slog.Logger,
) *GraphPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if output.FileName == "" {
		output.FileName = "output.png"
	}
	return &GraphPipeline{
		generator:    gen,
		validator:    val,
		executor:     exec,
		runs:         runs,
		logger:       logger,
		capabilities: capabilities,
		output:       output,
	}
}

func (p *GraphPipeline) Run(ctx context.Context, topic string) (*entity.Run, error) {
	return p.RunWithEvents(ctx, topic, nil)
}

// RunWithEvents is Run with progress reported to emit. The returned run is
// non-nil whenever the topic was accepted, including on failure.
func (p *GraphPipeline) RunWithEvents(ctx context.Context, topic string, emit EmitFunc) (*entity.Run, error) {
	if emit == nil {
		emit = func(entity.RunEvent) {}
	}

	// 1) Build request
	req, err := entity.NewGenerationRequest(topic, p.capabilities...)
	if err != nil {
		return nil, err
	}

	run := entity.NewRun(req.Topic())
	run.Model = p.generator.Model()
	if err := p.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	startTime := time.Now()
	metrics.IncRunsStarted()
	defer func() { metrics.ObserveRunFinished(time.Since(startTime)) }()

	logger := p.logger.With("run_id", run.ID)
	logger.Info("start processing run", "topic", topic, "model", run.Model)
	emit(entity.RunEvent{RunID: run.ID, Stage: entity.StageRequest, Message: "request built", Payload: req.Prompt()})

	fail := func(stage entity.Stage, err error) (*entity.Run, error) {
		run.Fail(err)
		metrics.IncRunStatusChange(string(run.Status))
		if uerr := p.runs.Update(context.WithoutCancel(ctx), run); uerr != nil {
			logger.Warn("failed to persist failed run", "err", uerr)
		}
		logger.Error("run failed", "stage", stage, "err", err)
		emit(entity.RunEvent{RunID: run.ID, Stage: entity.StageFailed, Message: err.Error()})
		return run, err
	}

	// 2) Generate via LLM
	p.setStatus(ctx, run, entity.RunStatusGenerating)
	resp, err := p.generator.Generate(ctx, req)
	if err != nil {
		return fail(entity.StageGenerate, fmt.Errorf("generate: %w", err))
	}
	run.Code = resp.RawText
	run.Text = resp.Text
	run.SearchSummary = resp.SearchSummary
	emit(entity.RunEvent{RunID: run.ID, Stage: entity.StageGenerate, Message: resp.Text, Payload: resp.RawText})

	if resp.RawText == "" {
		return fail(entity.StageGenerate, fmt.Errorf("%w: model returned no code", entity.ErrExecution))
	}

	// 3) Static validation
	if p.validator != nil {
		p.setStatus(ctx, run, entity.RunStatusValidating)
		res := p.validator.Validate(resp.RawText)
		run.Findings = res.Findings
		if !res.Passed {
			return fail(entity.StageValidate, fmt.Errorf("%w: script rejected by static validation: %s",
				entity.ErrExecution, validator.FormatFindings(res.Findings)))
		}
		emit(entity.RunEvent{RunID: run.ID, Stage: entity.StageValidate, Message: "script passed static validation"})
	}

	// 4) Execute
	p.setStatus(ctx, run, entity.RunStatusExecuting)
	result, err := p.executor.Execute(ctx, entity.Script{
		Code:         resp.RawText,
		ArtifactPath: p.artifactPath(run),
	})
	if err != nil {
		if result != nil && result.Stderr != "" {
			logger.Debug("script stderr", "stderr", result.Stderr)
		}
		return fail(entity.StageExecute, fmt.Errorf("execute: %w", err))
	}
	emit(entity.RunEvent{RunID: run.ID, Stage: entity.StageExecute, Message: "script executed", Payload: result.Stdout})

	run.ArtifactPath = result.ArtifactPath
	run.UpdateStatus(entity.RunStatusSucceeded)
	metrics.IncRunStatusChange(string(run.Status))
	if err := p.runs.Update(ctx, run); err != nil {
		logger.Warn("failed to persist succeeded run", "err", err)
	}

	logger.Info("run processed", "artifact", run.ArtifactPath, "duration", time.Since(startTime))
	emit(entity.RunEvent{RunID: run.ID, Stage: entity.StageCompleted, Message: "graph written", Payload: run.ArtifactPath})
	return run, nil
}

func (p *GraphPipeline) setStatus(ctx context.Context, run *entity.Run, status entity.RunStatus) {
	run.UpdateStatus(status)
	metrics.IncRunStatusChange(string(status))
	if err := p.runs.Update(ctx, run); err != nil {
		p.logger.Warn("failed to update run status", "run_id", run.ID, "status", status, "err", err)
	}
}

func (p *GraphPipeline) artifactPath(run *entity.Run) string {
	if p.output.PerRun {
		return filepath.Join(p.output.Dir, run.ID+".png")
	}
	return filepath.Join(p.output.Dir, p.output.FileName)
}
