package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"graphgen/internal/domain/entity"
	"graphgen/internal/infrastructure/sandbox"
)

// ScriptRunner executes code and returns the artifact it produced.
type ScriptRunner interface {
	Run(ctx context.Context, code string) ([]byte, *entity.ExecutionResult, error)
}

// SandboxHandler serves the sandbox server API used by sandbox.RemoteExecutor.
type SandboxHandler struct {
	runner        ScriptRunner
	logger        *slog.Logger
	maxConcurrent int32
	currentLoad   atomic.Int32
	startTime     time.Time
}

func NewSandboxHandler(runner ScriptRunner, maxConcurrent int, logger *slog.Logger) *SandboxHandler {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &SandboxHandler{
		runner:        runner,
		logger:        logger,
		maxConcurrent: int32(maxConcurrent),
		startTime:     time.Now(),
	}
}

func (h *SandboxHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/execute", withMetrics(h.handleExecute)).Methods(http.MethodPost)
	r.HandleFunc("/health", withMetrics(h.handleHealth)).Methods(http.MethodGet)
}

// POST /execute
func (h *SandboxHandler) handleExecute(w http.ResponseWriter, r *http.Request) {
	current := h.currentLoad.Add(1)
	defer h.currentLoad.Add(-1)

	if current > h.maxConcurrent {
		writeError(w, http.StatusTooManyRequests,
			fmt.Errorf("at capacity (%d/%d concurrent executions)", current, h.maxConcurrent))
		return
	}

	var req sandbox.ExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 10<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, errors.New("code is required"))
		return
	}

	ctx := r.Context()
	if req.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	data, result, err := h.runner.Run(ctx, req.Code)
	resp := sandbox.ExecuteResponse{Status: "success"}
	if result != nil {
		resp.Stdout = result.Stdout
		resp.Stderr = result.Stderr
		resp.ExitCode = result.ExitCode
		resp.ExecutionTimeMs = result.Duration.Milliseconds()
	}
	if err != nil {
		resp.Status = "error"
		resp.Error = err.Error()
	} else {
		resp.FilesProduced = map[string]string{
			sandbox.ArtifactName: base64.StdEncoding.EncodeToString(data),
		}
	}

	h.logger.Info("execute complete",
		"status", resp.Status,
		"exit_code", resp.ExitCode,
		"duration_ms", resp.ExecutionTimeMs,
		"artifact_bytes", len(data),
	)
	writeJSON(w, http.StatusOK, resp)
}

// GET /health
func (h *SandboxHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"capacity":       h.maxConcurrent,
		"current_load":   h.currentLoad.Load(),
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}
