// Package bootstrap builds the pipeline components shared by the graphgen binaries.
package bootstrap

import (
	"log/slog"

	"graphgen/app/config"
	"graphgen/internal/domain/entity"
	"graphgen/internal/domain/repository"
	"graphgen/internal/infrastructure/llm"
	"graphgen/internal/infrastructure/sandbox"
	"graphgen/internal/infrastructure/validator"
)

func NewGenerator(cfg config.LLMConfig) *llm.GeminiGenerator {
	return llm.NewGeminiGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout)
}

// NewExecutor returns a local process executor or a remote sandbox client
// depending on the configured mode.
func NewExecutor(cfg config.SandboxConfig, logger *slog.Logger) (repository.CodeExecutor, error) {
	if cfg.Mode == config.SandboxModeRemote {
		logger.Info("using remote sandbox", "url", cfg.URL)
		return sandbox.NewRemoteExecutor(cfg.URL, cfg.Timeout), nil
	}
	pe, err := NewProcessExecutor(cfg, logger)
	if err != nil {
		return nil, err
	}
	return pe, nil
}

func NewProcessExecutor(cfg config.SandboxConfig, logger *slog.Logger) (*sandbox.ProcessExecutor, error) {
	return sandbox.NewProcessExecutor(sandbox.ProcessConfig{
		Runtime:        cfg.Runtime,
		Command:        cfg.Command,
		Timeout:        cfg.Timeout,
		MaxOutputBytes: cfg.MaxOutputBytes,
	}, logger)
}

// NewValidator returns nil when validation is disabled.
func NewValidator(cfg config.SandboxConfig) repository.ScriptValidator {
	if !cfg.Validate {
		return nil
	}
	return validator.NewStaticScriptValidator(cfg.DeniedModules...)
}

func Capabilities(cfg config.LLMConfig) []entity.Capability {
	if !cfg.Search {
		return []entity.Capability{entity.CapabilityCodeExecution}
	}
	return entity.DefaultCapabilities
}
