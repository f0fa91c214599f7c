package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuchang/junit5"
	httpadapter "github.com/tuchang/junit5/pkg/adapters/http"
	"github.com/tuchang/junit5/pkg/adapters/memory"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/dsl"
	"github.com/tuchang/junit5/pkg/observability"
)

const divides = "[engine:dsl]/[container:Calculator]/[test:divides]"

type fixture struct {
	server *httptest.Server
	store  *memory.ResultStore
}

func setup(t *testing.T) fixture {
	t.Helper()
	calc := dsl.Container("Calculator")
	calc.Test("adds", func() {}).Tags("fast")
	calc.Test("divides", func() error {
		return domain.Fail("expected <2> but was <3>")
	})
	engine, err := dsl.NewEngine("dsl", calc)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	store := memory.NewResultStore()
	l, err := junit5.New(
		junit5.WithEngines(engine),
		junit5.WithResultStore(store),
		junit5.WithMetrics(metrics),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(httpadapter.NewHandler(l,
		httpadapter.WithResults(store),
		httpadapter.WithMetrics(reg),
		httpadapter.WithVersion("1.2.3"),
	))
	t.Cleanup(srv.Close)
	return fixture{server: srv, store: store}
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func createRun(t *testing.T, f fixture, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.server.URL+"/runs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestServer_HealthAndInfo(t *testing.T) {
	f := setup(t)

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	var health map[string]string
	decode(t, resp, &health)
	assert.Equal(t, "ok", health["status"])

	resp, err = http.Get(f.server.URL + "/info")
	require.NoError(t, err)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	var info map[string]string
	decode(t, resp, &info)
	assert.Equal(t, "1.2.3", info["version"])
}

func TestServer_Plan(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name   string
		query  string
		status int
		tests  int
	}{
		{"everything", "", http.StatusOK, 2},
		{"by tag", "?include_tag=fast", http.StatusOK, 1},
		{"by id", "?select=id:" + divides, http.StatusOK, 1},
		{"bad selector", "?select=nope", http.StatusBadRequest, 0},
		{"bad tag", "?include_tag=a%7Cb", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(f.server.URL + "/plan" + tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body map[string]any
			decode(t, resp, &body)
			if tt.status == http.StatusOK {
				assert.EqualValues(t, tt.tests, body["tests"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestServer_RunLifecycle(t *testing.T) {
	f := setup(t)

	resp := createRun(t, f, `{"selectors": ["name:Calculator"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var run struct {
		ID       string                `json:"id"`
		Recorded bool                  `json:"recorded"`
		Summary  observability.Summary `json:"summary"`
	}
	decode(t, resp, &run)
	require.NotEmpty(t, run.ID)
	assert.True(t, run.Recorded)
	assert.Equal(t, 2, run.Summary.TestsFound)
	assert.Equal(t, 1, run.Summary.TestsFailed)

	resp, err := http.Get(f.server.URL + "/runs")
	require.NoError(t, err)
	var runs map[string][]string
	decode(t, resp, &runs)
	assert.Equal(t, []string{run.ID}, runs["runs"])

	resp, err = http.Get(f.server.URL + "/runs/" + run.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stored struct {
		Results []struct {
			UniqueID string `json:"unique_id"`
			Status   string `json:"status"`
		} `json:"results"`
	}
	decode(t, resp, &stored)
	var failed []string
	for _, r := range stored.Results {
		if r.Status == "failed" {
			failed = append(failed, r.UniqueID)
		}
	}
	assert.Equal(t, []string{divides}, failed)

	req, err := http.NewRequest(http.MethodDelete, f.server.URL+"/runs/"+run.ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(f.server.URL + "/runs/" + run.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_CreateRun_Invalid(t *testing.T) {
	f := setup(t)

	for name, body := range map[string]string{
		"malformed json": `{`,
		"bad selector":   `{"selectors": ["what:ever"]}`,
		"bad tag":        `{"exclude_tags": ["(x"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := createRun(t, f, body)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	f := setup(t)
	createRun(t, f, "").Body.Close()

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `junit5_nodes_total{status="failed",type="test"} 1`)
}

func TestServer_Events(t *testing.T) {
	f := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.server.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	require.True(t, scanner.Scan())
	assert.Equal(t, "event: ping", scanner.Text())

	createRun(t, f, `{"selectors": ["id:`+divides+`"]}`).Body.Close()

	var events []httpadapter.Event
	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok || line == "connected" {
			continue
		}
		var e httpadapter.Event
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		events = append(events, e)
		if e.Type == "finished" && e.UniqueID == "[engine:dsl]" {
			break
		}
	}
	require.NotEmpty(t, events)
	assert.Equal(t, "started", events[0].Type)

	var finished *httpadapter.Event
	for i := range events {
		if events[i].Type == "finished" && events[i].UniqueID == divides {
			finished = &events[i]
		}
	}
	require.NotNil(t, finished)
	assert.Equal(t, "failed", finished.Status)
	assert.Equal(t, "expected <2> but was <3>", finished.Reason)
}

func TestServer_WatchUnavailable(t *testing.T) {
	f := setup(t)

	resp, err := http.Get(f.server.URL + "/events?watch=true")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestStreamManager(t *testing.T) {
	sm := httpadapter.NewStreamManager()
	ch, cancel := sm.Subscribe()

	sm.Broadcast("hello")
	assert.Equal(t, "hello", <-ch)

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	cancel()
	sm.Broadcast("ignored")
}
