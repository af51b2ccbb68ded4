package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphgen/app/config"
	"graphgen/internal/domain/entity"
	"graphgen/internal/infrastructure/sandbox"
	"graphgen/internal/infrastructure/transport"
)

func geminiStub(t *testing.T, code string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		payload, _ := json.Marshal(code)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[
			{"text":"Average rainfall by month."},
			{"executableCode":{"language":"PYTHON","code":` + string(payload) + `}}
		]}}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestRun_MissingAPIKeyFailsBeforeNetwork(t *testing.T) {
	srv, hits := geminiStub(t, "")

	var out bytes.Buffer
	err := run(context.Background(), strings.NewReader("rainfall\n"), &out, envFrom(map[string]string{
		config.EnvBaseURL:   srv.URL,
		config.EnvOutputDir: t.TempDir(),
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrConfig)
	assert.Zero(t, hits.Load())
	assert.NotContains(t, out.String(), topicPrompt)
}

// sandboxStub serves the sandbox API with a shell executor, so the CLI path is
// exercised end to end without a local matplotlib install.
func sandboxStub(t *testing.T) *httptest.Server {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	executor, err := sandbox.NewProcessExecutor(sandbox.ProcessConfig{
		Runtime:  sandbox.RuntimeShell,
		WorkRoot: t.TempDir(),
	}, logger)
	require.NoError(t, err)

	r := mux.NewRouter()
	transport.NewSandboxHandler(executor, 1, logger).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	sandboxSrv := sandboxStub(t)
	srv, hits := geminiStub(t, "echo drawing\nprintf 'PNG' > \"$ARTIFACT_PATH\"\n")

	cfgPath := filepath.Join(dir, "graphgen.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
file_repo {
  dir = %q
}
`, filepath.Join(dir, "runs"))), 0o644))

	var out bytes.Buffer
	err := run(context.Background(), strings.NewReader("rainfall in Lisbon\n"), &out, envFrom(map[string]string{
		config.EnvAPIKey:     "test-key",
		config.EnvBaseURL:    srv.URL,
		config.EnvConfigFile: cfgPath,
		config.EnvOutputDir:  dir,
		config.EnvSandboxURL: sandboxSrv.URL,
	}))
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	data, err := os.ReadFile(filepath.Join(dir, "output.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNG", string(data))

	printed := out.String()
	assert.True(t, strings.HasPrefix(printed, topicPrompt))
	assert.Contains(t, printed, "Here is the user topic: rainfall in Lisbon")
	assert.Contains(t, printed, "Average rainfall by month.")
	assert.Contains(t, printed, "drawing")
	assert.Contains(t, printed, "Graph written to "+filepath.Join(dir, "output.png"))
	assert.Contains(t, printed, "Python code written to")
}

func TestRun_ShellRuntimeRejected(t *testing.T) {
	srv, hits := geminiStub(t, "")
	cfgPath := filepath.Join(t.TempDir(), "graphgen.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`sandbox { runtime = "shell" }`), 0o644))

	var out bytes.Buffer
	err := run(context.Background(), strings.NewReader("rainfall\n"), &out, envFrom(map[string]string{
		config.EnvAPIKey:     "test-key",
		config.EnvBaseURL:    srv.URL,
		config.EnvConfigFile: cfgPath,
	}))
	assert.ErrorIs(t, err, entity.ErrConfig)
	assert.Zero(t, hits.Load())
}

func TestRun_EmptyTopic(t *testing.T) {
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	srv, hits := geminiStub(t, "")

	var out bytes.Buffer
	err := run(context.Background(), strings.NewReader("\n"), &out, envFrom(map[string]string{
		config.EnvAPIKey:     "test-key",
		config.EnvBaseURL:    srv.URL,
		config.EnvSandboxURL: "http://127.0.0.1:1",
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrConfig)
	assert.Zero(t, hits.Load())
}
