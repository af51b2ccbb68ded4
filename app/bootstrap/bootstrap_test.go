package bootstrap

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphgen/app/config"
	"graphgen/internal/domain/entity"
	"graphgen/internal/infrastructure/sandbox"
)

func TestNewExecutor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	remote, err := NewExecutor(config.SandboxConfig{
		Mode: config.SandboxModeRemote,
		URL:  "http://sandbox:8090",
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &sandbox.RemoteExecutor{}, remote)

	local, err := NewExecutor(config.SandboxConfig{
		Mode:    config.SandboxModeProcess,
		Runtime: sandbox.RuntimeShell,
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &sandbox.ProcessExecutor{}, local)

	_, err = NewExecutor(config.SandboxConfig{Mode: config.SandboxModeProcess, Runtime: "ruby"}, logger)
	assert.ErrorIs(t, err, entity.ErrConfig)
}

func TestNewValidator(t *testing.T) {
	assert.Nil(t, NewValidator(config.SandboxConfig{Validate: false}))

	v := NewValidator(config.SandboxConfig{Validate: true, DeniedModules: []string{"seaborn"}})
	require.NotNil(t, v)
	assert.False(t, v.Validate("import seaborn\n").Passed)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, entity.DefaultCapabilities, Capabilities(config.LLMConfig{Search: true}))
	assert.Equal(t, []entity.Capability{entity.CapabilityCodeExecution}, Capabilities(config.LLMConfig{Search: false}))
}
