package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"graphgen/app/usecase"
	"graphgen/internal/domain/entity"
	"graphgen/internal/domain/repository"
)

// GraphRunner runs the graph pipeline for a topic.
type GraphRunner interface {
	RunWithEvents(ctx context.Context, topic string, emit usecase.EmitFunc) (*entity.Run, error)
}

type GraphHandler struct {
	pipeline   GraphRunner
	runService usecase.RunUsecase
	logger     *slog.Logger
	limiter    *rate.Limiter
	upgrader   websocket.Upgrader
}

// NewGraphHandler wires the HTTP API. A nil limiter disables rate limiting.
func NewGraphHandler(
	pipeline GraphRunner,
	runService usecase.RunUsecase,
	limiter *rate.Limiter,
	logger *slog.Logger,
) *GraphHandler {
	return &GraphHandler{
		pipeline:   pipeline,
		runService: runService,
		logger:     logger,
		limiter:    limiter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *GraphHandler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/graphs", withMetrics(withRateLimit(h.limiter, h.handleCreateGraph))).Methods(http.MethodPost)
	api.HandleFunc("/graphs", withMetrics(h.handleListGraphs)).Methods(http.MethodGet)
	// registered before /graphs/{id} so "stream" is not taken as an id
	api.HandleFunc("/graphs/stream", withMetrics(withRateLimit(h.limiter, h.handleStream))).Methods(http.MethodGet)
	api.HandleFunc("/graphs/{id}", withMetrics(h.handleGetGraph)).Methods(http.MethodGet)
	api.HandleFunc("/graphs/{id}", withMetrics(h.handleDeleteGraph)).Methods(http.MethodDelete)
	api.HandleFunc("/graphs/{id}/artifact", withMetrics(h.handleArtifact)).Methods(http.MethodGet)
	api.HandleFunc("/graphs/{id}/script", withMetrics(h.handleScript)).Methods(http.MethodGet)
	api.HandleFunc("/health", withMetrics(h.handleHealth)).Methods(http.MethodGet)

	// Prometheus
	r.Handle("/metrics", promhttp.Handler())
}

type createGraphReq struct {
	Topic string `json:"topic"`
}

type createGraphResp struct {
	Run   *entity.Run `json:"run,omitempty"`
	Error string      `json:"error,omitempty"`
}

// POST /api/v1/graphs
func (h *GraphHandler) handleCreateGraph(w http.ResponseWriter, r *http.Request) {
	var req createGraphReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad request body: %w", err))
		return
	}

	run, err := h.pipeline.RunWithEvents(r.Context(), req.Topic, nil)
	if err != nil {
		h.logger.Error("create graph failed", "topic", req.Topic, "err", err)
		writeJSON(w, StatusFor(err), createGraphResp{Run: run, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, createGraphResp{Run: run})
}

// GET /api/v1/graphs/stream (websocket)
//
// The client sends {"topic": "..."}; the server streams RunEvents until the
// run completes or fails, then closes the connection.
func (h *GraphHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var req createGraphReq
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(entity.RunEvent{Stage: entity.StageFailed, Message: "bad request: " + err.Error()})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	emit := func(ev entity.RunEvent) {
		if err := conn.WriteJSON(ev); err != nil {
			h.logger.Debug("websocket write failed", "run_id", ev.RunID, "err", err)
		}
	}

	run, err := h.pipeline.RunWithEvents(r.Context(), req.Topic, emit)
	if err != nil && run == nil {
		// rejected before a run existed, so no failure event was emitted
		emit(entity.RunEvent{Stage: entity.StageFailed, Message: err.Error()})
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// GET /api/v1/graphs
func (h *GraphHandler) handleListGraphs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runService.ListRuns(r.Context())
	if err != nil {
		h.logger.Error("list runs failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*entity.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GET /api/v1/graphs/{id}
func (h *GraphHandler) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GET /api/v1/graphs/{id}/artifact
func (h *GraphHandler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if run.Status != entity.RunStatusSucceeded || run.ArtifactPath == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("run %s has no artifact (status %s)", run.ID, run.Status))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, run.ArtifactPath)
}

// GET /api/v1/graphs/{id}/script
func (h *GraphHandler) handleScript(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if run.Code == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("run %s has no script", run.ID))
		return
	}
	w.Header().Set("Content-Type", "text/x-python; charset=utf-8")
	_, _ = w.Write([]byte(run.Code))
}

// DELETE /api/v1/graphs/{id}
func (h *GraphHandler) handleDeleteGraph(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.runService.DeleteRun(r.Context(), id); err != nil {
		h.logger.Error("delete run failed", "id", id, "err", err)
		writeError(w, StatusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/health
func (h *GraphHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true,
		"ts": time.Now().UTC(),
	})
}

func (h *GraphHandler) lookup(w http.ResponseWriter, r *http.Request) (*entity.Run, bool) {
	id := mux.Vars(r)["id"]
	run, err := h.runService.GetRun(r.Context(), id)
	if err != nil {
		if !errors.Is(err, repository.ErrRunNotFound) {
			h.logger.Error("get run failed", "id", id, "err", err)
		}
		writeError(w, StatusFor(err), err)
		return nil, false
	}
	return run, true
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrQuota):
		return http.StatusTooManyRequests
	case errors.Is(err, entity.ErrAuth), errors.Is(err, entity.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, entity.ErrExecution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
