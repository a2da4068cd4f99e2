package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"qsoul/internal/logging"
	"qsoul/internal/model"
	"qsoul/pkg/qsoul"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	client, err := qsoul.New(qsoul.Options{
		ArtifactsDir: t.TempDir(),
		ExportsDir:   t.TempDir(),
		Registerer:   reg,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	srv := &httpServer{
		client:   client,
		base:     qsoul.RunRequest{Seed: 1, Evaluator: "quadratic", MaxSteps: 5, ParamCount: 4},
		gatherer: reg,
		logger:   logging.Discard(),
	}
	return srv.handler()
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeRunLifecycle(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/runs", `{"run_id":"run-http","energies":[0.5,0.3,0.3],"max_steps":50,"patience":3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start run: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/runs", "")
	var items []qsoul.RunItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(items) != 1 || items[0].RunID != "run-http" {
		t.Fatalf("unexpected runs: %+v", items)
	}

	rec = doRequest(t, h, http.MethodGet, "/runs/run-http", "")
	var run model.RunRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	// best at step 1, then three flat steps.
	if run.State != model.RunStateStoppedByStagnation || run.StepsRun != 5 || run.BestStep != 1 || run.BestEnergy != 0.3 {
		t.Fatalf("unexpected run record: %+v", run)
	}

	rec = doRequest(t, h, http.MethodGet, "/runs/latest/energy", "")
	var history []float64
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode energy: %v", err)
	}
	if len(history) != 5 || history[0] != 0.5 {
		t.Fatalf("unexpected energy history: %v", history)
	}

	rec = doRequest(t, h, http.MethodGet, "/runs/run-http/dream_log?limit=2", "")
	var events []model.DreamEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode dream log: %v", err)
	}
	if len(events) != 2 || events[0].Event != "run_start" {
		t.Fatalf("unexpected dream log: %+v", events)
	}

	rec = doRequest(t, h, http.MethodGet, "/runs/run-http/best", "")
	var best model.BestRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &best); err != nil {
		t.Fatalf("decode best: %v", err)
	}
	if best.Step != 1 || best.Energy != 0.3 {
		t.Fatalf("unexpected best: %+v", best)
	}

	rec = doRequest(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "qsoul_steps_total") {
		t.Fatalf("metrics missing search families: %d\n%s", rec.Code, rec.Body.String())
	}
}

func TestServeLookupErrors(t *testing.T) {
	h := newTestServer(t)

	if rec := doRequest(t, h, http.MethodGet, "/runs/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown run, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/runs/latest", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with empty index, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/runs?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodPost, "/runs", `{"evaluator":"nope"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown evaluator, got %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/runs", ""); rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestServeCompressesWhenAsked(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", got)
	}
}
