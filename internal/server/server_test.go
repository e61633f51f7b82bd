package server

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

	"github.com/cwbudde/batopt/internal/store"
)

func doRequest(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createJob(t *testing.T, h http.Handler, config JobConfig) Job {
	t.Helper()
	body, _ := json.Marshal(config)
	w := doRequest(t, h, http.MethodPost, "/api/v1/jobs", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return job
}

func waitForJob(t *testing.T, s *Server, id string) Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, _ := s.jobManager.GetJob(id)
		if job.State.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Job %s did not finish", id)
	return Job{}
}

func TestServer_CreateJob(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	job := createJob(t, h, smallJob())

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	// the worker starts immediately
	if job.State != StatePending && job.State != StateRunning {
		t.Errorf("Expected pending or running state, got %s", job.State)
	}

	done := waitForJob(t, s, job.ID)
	if done.State != StateCompleted {
		t.Fatalf("Expected completed, got %s (%s)", done.State, done.Error)
	}
	if done.Evaluations != 500 {
		t.Errorf("Expected 500 evaluations, got %d", done.Evaluations)
	}
}

func TestServer_CreateJobDefaultsMissingFields(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	w := doRequest(t, h, http.MethodPost, "/api/v1/jobs", []byte(`{"dim": 2, "iters": 5, "popSize": 4}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var job Job
	json.NewDecoder(w.Body).Decode(&job)

	if job.Config.Objective != "sphere" {
		t.Errorf("Objective should default to sphere, got %q", job.Config.Objective)
	}
	if job.Config.Seed != 42 {
		t.Errorf("Seed should default to 42, got %d", job.Config.Seed)
	}
	waitForJob(t, s, job.ID)
}

func TestServer_CreateJobRejectsBadInput(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"dim":`},
		{"unknown field", `{"circles": 3}`},
		{"unknown objective", `{"objective": "nope"}`},
		{"zero dimension", `{"dim": 0}`},
		{"zero population", `{"popSize": 0}`},
		{"inverted frequency", `{"frequencyMin": 3, "frequencyMax": 1}`},
		{"bad bounds length", `{"dim": 3, "lower": [0, 0]}`},
		{"unknown move rule", `{"move": "teleport"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, h, http.MethodPost, "/api/v1/jobs", []byte(tt.body))
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d: %s", w.Code, w.Body.String())
			}
			var resp map[string]string
			json.NewDecoder(w.Body).Decode(&resp)
			if resp["error"] == "" {
				t.Error("Error response should carry a message")
			}
		})
	}

	if n := len(s.jobManager.ListJobs()); n != 0 {
		t.Errorf("Rejected requests should not create jobs, got %d", n)
	}
}

func TestServer_ListJobs(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	s.jobManager.CreateJob(smallJob(), nil)
	s.jobManager.CreateJob(smallJob(), nil)

	w := doRequest(t, h, http.MethodGet, "/api/v1/jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var jobs []Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	job := createJob(t, h, smallJob())
	waitForJob(t, s, job.ID)

	for _, path := range []string{"/api/v1/jobs/" + job.ID, "/api/v1/jobs/" + job.ID + "/status"} {
		w := doRequest(t, h, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, w.Code)
		}

		var status map[string]any
		if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if status["state"] != string(StateCompleted) {
			t.Errorf("Expected completed state, got %v", status["state"])
		}
		if _, ok := status["eps"]; !ok {
			t.Error("Status should report evaluations per second")
		}
		if pos, ok := status["bestPosition"].([]any); !ok || len(pos) != 3 {
			t.Errorf("Expected 3-element bestPosition, got %v", status["bestPosition"])
		}
	}
}

func TestServer_NotFound(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/jobs/nonexistent/status", http.StatusNotFound},
		{http.MethodGet, "/api/v1/jobs/nonexistent/stream", http.StatusNotFound},
		{http.MethodGet, "/api/v1/jobs/nonexistent/trace", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/jobs/nonexistent", http.StatusNotFound},
		{http.MethodGet, "/api/v1/jobs/", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/runs", http.StatusNotFound},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodPut, "/api/v1/jobs", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		w := doRequest(t, h, tt.method, tt.path, nil)
		if w.Code != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, w.Code)
		}
	}
}

func TestServer_CancelJob(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	config := smallJob()
	config.Iters = 1 << 40
	job := createJob(t, h, config)

	w := doRequest(t, h, http.MethodDelete, "/api/v1/jobs/"+job.ID, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	done := waitForJob(t, s, job.ID)
	if done.State != StateCancelled {
		t.Errorf("Expected cancelled, got %s", done.State)
	}

	// a finished job cannot be cancelled again
	w = doRequest(t, h, http.MethodDelete, "/api/v1/jobs/"+job.ID, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestServer_ShutdownCancelsJobs(t *testing.T) {
	s := NewServer(":0", nil, WithLogger(quietLogger()))
	h := s.Handler()

	config := smallJob()
	config.Iters = 1 << 40
	job := createJob(t, h, config)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	done, _ := s.jobManager.GetJob(job.ID)
	if done.State != StateCancelled {
		t.Errorf("Expected cancelled after shutdown, got %s", done.State)
	}
}

func TestServer_JobTrace(t *testing.T) {
	s := newTestServer(t, nil, WithTraceDir(t.TempDir()))
	h := s.Handler()

	config := smallJob()
	config.TraceEvery = 10
	job := createJob(t, h, config)
	waitForJob(t, s, job.ID)

	w := doRequest(t, h, http.MethodGet, "/api/v1/jobs/"+job.ID+"/trace", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var entries []store.TraceEntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode trace: %v", err)
	}
	if len(entries) != 6 {
		t.Errorf("Expected 6 trace entries, got %d", len(entries))
	}
}

func TestServer_TraceDisabled(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	job := s.jobManager.CreateJob(smallJob(), nil)
	w := doRequest(t, h, http.MethodGet, "/api/v1/jobs/"+job.ID+"/trace", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_StreamFinishedJob(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	job := createJob(t, h, smallJob())
	waitForJob(t, s, job.ID)

	w := doRequest(t, h, http.MethodGet, "/api/v1/jobs/"+job.ID+"/stream", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %q", ct)
	}

	scanner := bufio.NewScanner(w.Body)
	var first string
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
			first = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if first == "" {
		t.Fatal("No SSE data line")
	}

	var event ProgressEvent
	if err := json.Unmarshal([]byte(first), &event); err != nil {
		t.Fatalf("Bad event %q: %v", first, err)
	}
	if event.JobID != job.ID || event.State != StateCompleted {
		t.Errorf("Unexpected event %+v", event)
	}
}

func TestServer_StreamLiveJob(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	config := smallJob()
	config.Iters = 20000
	job := createJob(t, s.Handler(), config)

	resp, err := http.Get(ts.URL + "/api/v1/jobs/" + job.ID + "/stream")
	if err != nil {
		t.Fatalf("GET stream failed: %v", err)
	}
	defer resp.Body.Close()

	var last ProgressEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &last); err != nil {
			t.Fatalf("Bad event: %v", err)
		}
	}

	if last.State != StateCompleted {
		t.Errorf("Stream should end with the completed event, got %s", last.State)
	}
	if last.Generation != 20000 {
		t.Errorf("Final event generation = %d", last.Generation)
	}
}

func TestServer_Runs(t *testing.T) {
	st, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	s := newTestServer(t, st)
	h := s.Handler()

	job := createJob(t, h, smallJob())
	waitForJob(t, s, job.ID)

	// the record is saved just before the final state is published
	w := doRequest(t, h, http.MethodGet, "/api/v1/runs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var infos []store.RunInfo
	json.NewDecoder(w.Body).Decode(&infos)
	if len(infos) != 1 || infos[0].RunID != job.ID {
		t.Fatalf("Expected one run %s, got %+v", job.ID, infos)
	}

	w = doRequest(t, h, http.MethodGet, "/api/v1/runs/"+job.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var rec store.RunRecord
	json.NewDecoder(w.Body).Decode(&rec)
	if rec.Evaluations != 500 {
		t.Errorf("Record evaluations = %d", rec.Evaluations)
	}

	w = doRequest(t, h, http.MethodDelete, "/api/v1/runs/"+job.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	w = doRequest(t, h, http.MethodGet, "/api/v1/runs/"+job.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after delete, got %d", w.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	job := createJob(t, h, smallJob())
	waitForJob(t, s, job.ID)

	w := doRequest(t, h, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"batopt_jobs_started_total 1",
		`batopt_jobs_finished_total{state="completed"} 1`,
		"batopt_objective_evaluations_total 500",
		`batopt_last_best_fitness{objective="sphere"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Metrics missing %q", want)
		}
	}
}

func TestServer_Index(t *testing.T) {
	s := newTestServer(t, nil)
	h := s.Handler()

	w := doRequest(t, h, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No jobs yet") {
		t.Error("Empty index should say there are no jobs")
	}

	job := s.jobManager.CreateJob(smallJob(), nil)
	w = doRequest(t, h, http.MethodGet, "/", nil)
	body := w.Body.String()
	if !strings.Contains(body, "/api/v1/jobs/"+job.ID+"/status") {
		t.Error("Index should link the job status")
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Unexpected content type %q", w.Header().Get("Content-Type"))
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	w := doRequest(t, s.Handler(), http.MethodOptions, "/api/v1/jobs", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}

func TestServer_GzipResponses(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Errorf("Expected gzip encoding, got %q", w.Header().Get("Content-Encoding"))
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path    string
		wantID  string
		wantSub string
	}{
		{"/api/v1/jobs/abc", "abc", ""},
		{"/api/v1/jobs/abc/", "abc", ""},
		{"/api/v1/jobs/abc/status", "abc", "status"},
		{"/api/v1/jobs/", "", ""},
	}
	for _, tt := range tests {
		id, sub := splitPath(tt.path, "/api/v1/jobs/")
		if id != tt.wantID || sub != tt.wantSub {
			t.Errorf("splitPath(%q) = (%q, %q), want (%q, %q)", tt.path, id, sub, tt.wantID, tt.wantSub)
		}
	}
}
