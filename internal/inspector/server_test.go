package inspector

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/prowrite/pkg/bench"
	"github.com/cgast/prowrite/pkg/events"
	"github.com/cgast/prowrite/pkg/store"
)

func newTestServer(t *testing.T) (*Server, *events.MemoryBus, *store.BoltStore) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := prometheus.NewRegistry()
	bench.NewMetrics(reg)

	bus := events.NewMemoryBus()
	return New(bus, st, reg, nil), bus, st
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatus(t *testing.T) {
	s, bus, _ := newTestServer(t)
	bus.Publish(events.NewEvent(events.EventRunStart, "r1", events.RunInfo{Tasks: 2}))
	bus.Publish(events.NewEvent(events.EventTaskEnd, "r1", events.TaskInfo{TaskID: "a"}))
	bus.Publish(events.NewEvent(events.EventTaskFailed, "r1", events.TaskInfo{TaskID: "b"}))

	rec := get(t, s.Handler(), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Events)
	assert.Equal(t, 1, st.RunsStarted)
	assert.Equal(t, 1, st.TasksScored)
	assert.Equal(t, 1, st.TasksFailed)
	assert.Equal(t, "r1", st.CurrentRun)

	bus.Publish(events.NewEvent(events.EventRunEnd, "r1", nil))
	var after Status
	require.NoError(t, json.Unmarshal(get(t, s.Handler(), "/api/status").Body.Bytes(), &after))
	assert.Empty(t, after.CurrentRun)
	assert.Equal(t, 1, after.RunsFinished)
}

func TestRunsEndpoints(t *testing.T) {
	s, _, st := newTestServer(t)

	rec := get(t, s.Handler(), "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	final := 77.5
	require.NoError(t, st.SaveReport(bench.SuiteReport{
		RunID: "done", Model: "gpt-4o", StartedAt: time.Now(),
		Results: []bench.TaskResult{{RunID: "done", TaskID: "a", Status: bench.StatusScored, Final: &final}},
	}))
	require.NoError(t, st.SaveResult(bench.TaskResult{RunID: "live", TaskID: "a", Status: bench.StatusScored, Final: &final}))

	rec = get(t, s.Handler(), "/api/runs")
	var runs []store.RunInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "done", runs[0].RunID)

	rec = get(t, s.Handler(), "/api/runs/done")
	require.Equal(t, http.StatusOK, rec.Code)
	var report bench.SuiteReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "gpt-4o", report.Model)
	assert.Equal(t, 77.5, *report.Results[0].Final)

	rec = get(t, s.Handler(), "/api/runs/live")
	require.Equal(t, http.StatusOK, rec.Code)
	var progress runProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.True(t, progress.InProgress)
	assert.Len(t, progress.Results, 1)

	rec = get(t, s.Handler(), "/api/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestRunsWithoutStore(t *testing.T) {
	s := New(events.NewMemoryBus(), nil, nil, nil)

	assert.JSONEq(t, `[]`, get(t, s.Handler(), "/api/runs").Body.String())
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/api/runs/x").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/metrics").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "prowrite_tasks_in_flight")
}

func TestEventStream(t *testing.T) {
	s, bus, _ := newTestServer(t)
	bus.Publish(events.NewEvent(events.EventRunStart, "r1", events.RunInfo{Tasks: 1}))

	go s.broadcastEvents(bus.Subscribe())

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if strings.HasPrefix(sc.Text(), "data: ") {
				lines <- strings.TrimPrefix(sc.Text(), "data: ")
			}
		}
		close(lines)
	}()

	next := func() events.Event {
		select {
		case l := <-lines:
			var ev events.Event
			require.NoError(t, json.Unmarshal([]byte(l), &ev))
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return events.Event{}
		}
	}

	assert.Equal(t, events.EventRunStart, next().Type)

	// Wait for the handler to register before publishing live events.
	require.Eventually(t, func() bool {
		s.clientsMu.Lock()
		defer s.clientsMu.Unlock()
		return len(s.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	bus.Publish(events.NewEvent(events.EventTaskEnd, "r1", events.TaskInfo{TaskID: "a"}))
	ev := next()
	assert.Equal(t, events.EventTaskEnd, ev.Type)
	assert.Equal(t, "r1", ev.RunID)
}
