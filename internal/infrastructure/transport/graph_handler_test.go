package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"graphgen/app/usecase"
	"graphgen/internal/domain/entity"
	"graphgen/internal/domain/repository"
)

type fakeRunner struct {
	run    *entity.Run
	err    error
	events []entity.RunEvent
}

func (f *fakeRunner) RunWithEvents(_ context.Context, topic string, emit usecase.EmitFunc) (*entity.Run, error) {
	if emit != nil {
		for _, ev := range f.events {
			emit(ev)
		}
	}
	if f.run != nil {
		f.run.Topic = topic
	}
	return f.run, f.err
}

type fakeRuns struct {
	mu   sync.Mutex
	runs map[string]*entity.Run
}

func (f *fakeRuns) GetRun(_ context.Context, id string) (*entity.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, fmt.Errorf("get run %s: %w", id, repository.ErrRunNotFound)
	}
	return run, nil
}

func (f *fakeRuns) ListRuns(context.Context) ([]*entity.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Run, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRuns) DeleteRun(ctx context.Context, id string) error {
	if _, err := f.GetRun(ctx, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.runs, id)
	return nil
}

func newGraphServer(t *testing.T, runner GraphRunner, runs usecase.RunUsecase, limiter *rate.Limiter) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := mux.NewRouter()
	NewGraphHandler(runner, runs, limiter, logger).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		entity.ErrConfig:          http.StatusBadRequest,
		entity.ErrAuth:            http.StatusBadGateway,
		entity.ErrQuota:           http.StatusTooManyRequests,
		entity.ErrNetwork:         http.StatusBadGateway,
		entity.ErrExecution:       http.StatusUnprocessableEntity,
		entity.ErrIO:              http.StatusInternalServerError,
		repository.ErrRunNotFound: http.StatusNotFound,
	}
	for sentinel, want := range cases {
		err := fmt.Errorf("%w: wrapped", sentinel)
		assert.Equal(t, want, StatusFor(err), sentinel.Error())
	}
}

func TestGraphHandler_CreateGraph(t *testing.T) {
	run := entity.NewRun("")
	run.UpdateStatus(entity.RunStatusSucceeded)
	srv := newGraphServer(t, &fakeRunner{run: run}, &fakeRuns{}, nil)

	resp, err := http.Post(srv.URL+"/api/v1/graphs", "application/json", strings.NewReader(`{"topic":"tides"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var body createGraphResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotNil(t, body.Run)
	assert.Equal(t, "tides", body.Run.Topic)
	assert.Equal(t, entity.RunStatusSucceeded, body.Run.Status)
}

func TestGraphHandler_CreateGraphErrors(t *testing.T) {
	t.Run("bad body", func(t *testing.T) {
		srv := newGraphServer(t, &fakeRunner{}, &fakeRuns{}, nil)
		resp, err := http.Post(srv.URL+"/api/v1/graphs", "application/json", strings.NewReader(`{`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("execution failure keeps the run", func(t *testing.T) {
		run := entity.NewRun("")
		failure := fmt.Errorf("%w: script exited with code 1", entity.ErrExecution)
		run.Fail(failure)
		srv := newGraphServer(t, &fakeRunner{run: run, err: failure}, &fakeRuns{}, nil)

		resp, err := http.Post(srv.URL+"/api/v1/graphs", "application/json", strings.NewReader(`{"topic":"x"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		var body createGraphResp
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.NotNil(t, body.Run)
		assert.Equal(t, entity.RunStatusFailed, body.Run.Status)
		assert.Contains(t, body.Error, "exited with code 1")
	})

	t.Run("rate limited", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Limit(0.001), 1)
		srv := newGraphServer(t, &fakeRunner{run: entity.NewRun("")}, &fakeRuns{}, limiter)

		first, err := http.Post(srv.URL+"/api/v1/graphs", "application/json", strings.NewReader(`{"topic":"x"}`))
		require.NoError(t, err)
		first.Body.Close()
		assert.Equal(t, http.StatusCreated, first.StatusCode)

		second, err := http.Post(srv.URL+"/api/v1/graphs", "application/json", strings.NewReader(`{"topic":"x"}`))
		require.NoError(t, err)
		second.Body.Close()
		assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	})
}

func TestGraphHandler_RunLookup(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "a.png")
	png := []byte("\x89PNG\r\n\x1a\nfake")
	require.NoError(t, os.WriteFile(artifact, png, 0o644))

	done := entity.NewRun("rainfall")
	done.Code = "print('hi')\n"
	done.ArtifactPath = artifact
	done.UpdateStatus(entity.RunStatusSucceeded)

	pending := entity.NewRun("wind")

	runs := &fakeRuns{runs: map[string]*entity.Run{done.ID: done, pending.ID: pending}}
	srv := newGraphServer(t, &fakeRunner{}, runs, nil)

	get := func(path string) (*http.Response, []byte) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, b
	}

	resp, body := get("/api/v1/graphs/" + done.ID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var got entity.Run
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "rainfall", got.Topic)
	assert.Empty(t, got.Code, "code is only served by the script endpoint")

	resp, body = get("/api/v1/graphs/" + done.ID + "/artifact")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, png, body)

	resp, body = get("/api/v1/graphs/" + done.ID + "/script")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, done.Code, string(body))

	resp, _ = get("/api/v1/graphs/" + pending.ID + "/artifact")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get("/api/v1/graphs/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = get("/api/v1/graphs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var list []entity.Run
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 2)

	resp, _ = get("/api/v1/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGraphHandler_DeleteGraph(t *testing.T) {
	run := entity.NewRun("x")
	runs := &fakeRuns{runs: map[string]*entity.Run{run.ID: run}}
	srv := newGraphServer(t, &fakeRunner{}, runs, nil)

	del := func() int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/graphs/"+run.ID, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusNoContent, del())
	assert.Equal(t, http.StatusNotFound, del())
}

func TestGraphHandler_Stream(t *testing.T) {
	run := entity.NewRun("")
	runner := &fakeRunner{
		run: run,
		events: []entity.RunEvent{
			{RunID: run.ID, Stage: entity.StageRequest, Message: "request built"},
			{RunID: run.ID, Stage: entity.StageGenerate, Message: "code generated"},
			{RunID: run.ID, Stage: entity.StageCompleted, Message: "artifact written"},
		},
	}
	srv := newGraphServer(t, runner, &fakeRuns{}, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/graphs/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.WriteJSON(createGraphReq{Topic: "tides"}))

	var stages []entity.Stage
	for {
		var ev entity.RunEvent
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		assert.Equal(t, run.ID, ev.RunID)
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []entity.Stage{entity.StageRequest, entity.StageGenerate, entity.StageCompleted}, stages)
}

func TestGraphHandler_StreamRejectedTopic(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w: topic is empty", entity.ErrConfig)}
	srv := newGraphServer(t, runner, &fakeRuns{}, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/graphs/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(createGraphReq{Topic: " "}))

	var ev entity.RunEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, entity.StageFailed, ev.Stage)
	assert.Contains(t, ev.Message, "topic is empty")
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _, err := rec.Hijack()
	assert.Error(t, err)
}
