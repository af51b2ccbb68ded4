package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"graphgen/internal/domain/entity"
	"graphgen/internal/domain/repository"
	"graphgen/internal/infrastructure/metrics"
)

// ExecuteRequest is the body of POST /execute on a sandbox server.
type ExecuteRequest struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type ExecuteResponse struct {
	Status          string            `json:"status"` // success|error
	Stdout          string            `json:"stdout"`
	Stderr          string            `json:"stderr"`
	Error           string            `json:"error,omitempty"`
	ExitCode        int               `json:"exit_code"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	FilesProduced   map[string]string `json:"files_produced,omitempty"` // name -> base64
}

// RemoteExecutor runs scripts on a sandbox server and writes the returned
// artifact locally.
type RemoteExecutor struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

var _ repository.CodeExecutor = (*RemoteExecutor)(nil)

func NewRemoteExecutor(baseURL string, timeout time.Duration) *RemoteExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RemoteExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		// Execution timeout is enforced by the sandbox; leave headroom for transfer.
		httpClient: &http.Client{Timeout: timeout + 30*time.Second},
	}
}

func (e *RemoteExecutor) Execute(ctx context.Context, script entity.Script) (*entity.ExecutionResult, error) {
	result := &entity.ExecutionResult{ExitCode: -1}
	fail := func(err error) (*entity.ExecutionResult, error) {
		result.Success = false
		result.Error = err.Error()
		return result, err
	}

	start := time.Now()
	resp, err := e.call(ctx, ExecuteRequest{
		Code:           script.Code,
		TimeoutSeconds: int(e.timeout.Seconds()),
	})
	result.Duration = time.Since(start)
	if err != nil {
		metrics.ObserveExecution("remote", "error", result.Duration)
		return fail(err)
	}

	result.Stdout = resp.Stdout
	result.Stderr = resp.Stderr
	result.ExitCode = resp.ExitCode

	if resp.Status != "success" {
		metrics.ObserveExecution("remote", "error", result.Duration)
		msg := resp.Error
		if msg == "" {
			msg = lastLine(resp.Stderr)
		}
		return fail(fmt.Errorf("%w: sandbox exit code %d: %s", entity.ErrExecution, resp.ExitCode, msg))
	}

	data, err := pickArtifact(resp.FilesProduced)
	if err != nil {
		metrics.ObserveExecution("remote", "error", result.Duration)
		return fail(err)
	}
	if err := writeArtifact(script.ArtifactPath, data); err != nil {
		return fail(err)
	}

	metrics.ObserveExecution("remote", "success", result.Duration)
	result.Success = true
	result.ArtifactPath = script.ArtifactPath
	return result, nil
}

func (e *RemoteExecutor) call(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", entity.ErrNetwork, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: sandbox request failed: %w", entity.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", entity.ErrNetwork, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: sandbox at capacity (HTTP 429)", entity.ErrNetwork)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: sandbox returned HTTP %d: %s", entity.ErrNetwork, resp.StatusCode, string(respBody))
	}

	var out ExecuteResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", entity.ErrNetwork, err)
	}
	return &out, nil
}

// pickArtifact prefers the agreed artifact name, then the first file by name.
func pickArtifact(files map[string]string) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: sandbox produced no artifact", entity.ErrExecution)
	}

	name := ArtifactName
	if _, ok := files[name]; !ok {
		names := make([]string, 0, len(files))
		for n := range files {
			names = append(names, n)
		}
		sort.Strings(names)
		name = names[0]
	}

	data, err := base64.StdEncoding.DecodeString(files[name])
	if err != nil {
		return nil, fmt.Errorf("%w: decode artifact %s: %v", entity.ErrExecution, name, err)
	}
	return data, nil
}
