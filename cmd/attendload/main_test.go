package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/attendance/attendload/internal/auth"
	"github.com/attendance/attendload/internal/config"
	"github.com/attendance/attendload/internal/runner"
	"github.com/attendance/attendload/internal/threshold"
)

type attendanceAPI struct {
	createStatus int
	trends       atomic.Int64
	creates      atomic.Int64

	mu     sync.Mutex
	bodies []string
}

func newAttendanceAPI(t *testing.T, createStatus int) (*attendanceAPI, *httptest.Server) {
	t.Helper()
	api := &attendanceAPI{createStatus: createStatus}
	r := mux.NewRouter()
	r.HandleFunc("/api/attendance/trends", func(w http.ResponseWriter, _ *http.Request) {
		api.trends.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}).Methods(http.MethodGet).Queries("start", "2024-03-01", "end", "2024-03-31")
	r.HandleFunc("/api/attendance", func(w http.ResponseWriter, req *http.Request) {
		api.creates.Add(1)
		body, _ := io.ReadAll(req.Body)
		api.mu.Lock()
		api.bodies = append(api.bodies, string(body))
		api.mu.Unlock()
		w.WriteHeader(api.createStatus)
	}).Methods(http.MethodPost)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return api, srv
}

func shortRunArgs(baseURL string, extra ...string) []string {
	args := []string{
		"--base-url", baseURL,
		"--rate", "20",
		"--duration", "300ms",
		"--pre-allocated-vus", "2",
		"--max-vus", "4",
		"--pause", "0s",
		"--graceful-stop", "2s",
		"--quiet",
	}
	return append(args, extra...)
}

func TestRunPassesAgainstHealthyAPI(t *testing.T) {
	api, srv := newAttendanceAPI(t, http.StatusCreated)

	var stdout, stderr bytes.Buffer
	code := run(shortRunArgs(srv.URL, "--summary-format", "json"), &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("run() = %d, stderr: %s", code, stderr.String())
	}

	var summary struct {
		Passed  bool `json:"passed"`
		Metrics struct {
			Requests   int64 `json:"http_reqs"`
			Iterations int64 `json:"iterations"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &summary); err != nil {
		t.Fatalf("summary is not JSON: %v\n%s", err, stdout.String())
	}
	if !summary.Passed {
		t.Errorf("passed = false")
	}
	if summary.Metrics.Iterations == 0 {
		t.Fatalf("no iterations ran")
	}
	if summary.Metrics.Requests != 2*summary.Metrics.Iterations {
		t.Errorf("http_reqs = %d, want %d", summary.Metrics.Requests, 2*summary.Metrics.Iterations)
	}
	if api.trends.Load() != api.creates.Load() {
		t.Errorf("trends = %d, creates = %d", api.trends.Load(), api.creates.Load())
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	for _, b := range api.bodies {
		if b != `{"employeeId":1,"date":"2024-03-30","status":"PRESENT"}` {
			t.Fatalf("body = %s", b)
		}
	}
}

func TestRunCrossedThresholdsExit99(t *testing.T) {
	_, srv := newAttendanceAPI(t, http.StatusInternalServerError)

	var stdout, stderr bytes.Buffer
	code := run(shortRunArgs(srv.URL, "--log-errors"), &stdout, &stderr)
	if code != exitThresholdsCrossed {
		t.Fatalf("run() = %d, want %d\nstderr: %s", code, exitThresholdsCrossed, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"✗ post status 201", "✓ trends status 200", "result: FAIL"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
	errOut := stderr.String()
	if !strings.Contains(errOut, "[attendload] request failed") {
		t.Errorf("stderr missing failure log: %s", errOut)
	}
	if !strings.Contains(errOut, "http_req_failed:rate < 0.01") {
		t.Errorf("stderr missing crossed threshold: %s", errOut)
	}
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"help", []string{"--help"}, exitOK},
		{"unknown flag", []string{"--nope"}, exitError},
		{"invalid rate", []string{"--rate", "-1"}, exitError},
		{"bad base url", []string{"--base-url", "ftp://example.com"}, exitError},
		{"max below pre-allocated", []string{"--pre-allocated-vus", "10", "--max-vus", "5"}, exitError},
		{"bad threshold", []string{"--threshold", "http_req_duration:p95 <"}, exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := run(tt.args, &stdout, &stderr); got != tt.want {
				t.Fatalf("run(%v) = %d, want %d\nstderr: %s", tt.args, got, tt.want, stderr.String())
			}
		})
	}
}

func TestRunFeederAuthAndExport(t *testing.T) {
	var authSeen atomic.Value
	var mu sync.Mutex
	var bodies []string
	r := mux.NewRouter()
	r.HandleFunc("/api/attendance/trends", func(w http.ResponseWriter, req *http.Request) {
		authSeen.Store(req.Header.Get("X-Api-Key"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/attendance", func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}).Methods(http.MethodPost)
	srv := httptest.NewServer(r)
	defer srv.Close()

	dir := t.TempDir()
	feederPath := filepath.Join(dir, "records.csv")
	csv := "employeeId,date,status\n7,2024-03-29,absent\n8,2024-03-30,WFH\n"
	if err := os.WriteFile(feederPath, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	exportPath := filepath.Join(dir, "history.jsonl")

	var stdout, stderr bytes.Buffer
	code := run(shortRunArgs(srv.URL,
		"--feeder-path", feederPath,
		"--auth-header", "X-API-Key",
		"--auth-token", "secret",
		"--summary-export", exportPath,
	), &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("run() = %d, stderr: %s", code, stderr.String())
	}

	if got, _ := authSeen.Load().(string); got != "secret" {
		t.Errorf("X-API-Key = %q", got)
	}
	mu.Lock()
	if len(bodies) == 0 || bodies[0] != `{"employeeId":7,"date":"2024-03-29","status":"ABSENT"}` {
		t.Errorf("bodies = %v", bodies)
	}
	mu.Unlock()

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("export file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], `"run_id"`) {
		t.Errorf("export = %q", string(data))
	}
}

func TestServeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "attendload_ready_total", Help: "ready"}))

	stop, err := serveMetrics("127.0.0.1:0", reg)
	if err != nil {
		t.Fatalf("serveMetrics() error = %v", err)
	}
	stop()

	if _, err := serveMetrics("256.0.0.1:http", reg); err == nil {
		t.Fatalf("serveMetrics() with bad address should fail")
	}
}

func TestBuildAuthProvider(t *testing.T) {
	tests := []struct {
		name       string
		auth       config.AuthConfig
		wantNil    bool
		wantHeader string
		wantValue  string
	}{
		{"none", config.AuthConfig{}, true, "", ""},
		{"bearer", config.AuthConfig{Token: "abc"}, false, "Authorization", "Bearer abc"},
		{"custom header", config.AuthConfig{Token: "abc", Header: "x-api-key"}, false, "X-Api-Key", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := buildAuthProvider(&config.Config{Auth: tt.auth})
			if err != nil {
				t.Fatalf("buildAuthProvider() error = %v", err)
			}
			if tt.wantNil {
				if p != nil {
					t.Fatalf("provider = %v, want nil", p)
				}
				return
			}
			req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
			if err := p.InjectHeader(context.Background(), req); err != nil {
				t.Fatalf("InjectHeader() error = %v", err)
			}
			if got := req.Header.Get(tt.wantHeader); got != tt.wantValue {
				t.Errorf("%s = %q, want %q", tt.wantHeader, got, tt.wantValue)
			}
		})
	}
	var _ auth.Provider = auth.NewStaticTokenProvider("x")

	if _, err := buildAuthProvider(nil); err == nil {
		t.Errorf("buildAuthProvider(nil) should fail")
	}
}

func TestBuildRecordSource(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	jsonPath := write("rows.data", `[{"employeeId":"3","date":"2024-03-01","status":"wfh"}]`)
	badPath := write("bad.csv", "employeeId,date,status\n0,2024-03-01,PRESENT\n")
	emptyPath := write("empty.csv", "employeeId,date,status\n")

	src, closeFn, err := buildRecordSource(context.Background(), &config.Config{})
	if err != nil || src != nil || closeFn != nil {
		t.Fatalf("no feeder: src=%v close=%v err=%v", src, closeFn != nil, err)
	}

	src, closeFn, err = buildRecordSource(context.Background(), &config.Config{Feeder: config.FeederConfig{Path: jsonPath, Type: "json"}})
	if err != nil {
		t.Fatalf("json feeder with explicit type: %v", err)
	}
	defer closeFn()
	for i := 0; i < 3; i++ {
		rec, err := src.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if rec.EmployeeID != 3 || rec.Status != "WFH" {
			t.Fatalf("record = %+v", rec)
		}
	}

	for _, path := range []string{badPath, emptyPath} {
		if _, _, err := buildRecordSource(context.Background(), &config.Config{Feeder: config.FeederConfig{Path: path}}); err == nil {
			t.Errorf("buildRecordSource(%s) should fail", filepath.Base(path))
		}
	}
}

func TestRunnerOptions(t *testing.T) {
	cfg := config.Default()
	cfg.TimeUnit = time.Minute
	cfg.Rate = 600
	cfg.Arrival.Model = config.ArrivalModelPoisson
	cfg.Stages = []config.Stage{{Duration: 10 * time.Second, Target: 1200}, {Duration: 5 * time.Second, Target: 0}}

	opt := runnerOptions(cfg, runner.IterationFunc(func(context.Context) error { return nil }), nil)
	if opt.RatePerSecond != 10 {
		t.Errorf("RatePerSecond = %g, want 10", opt.RatePerSecond)
	}
	if opt.ArrivalModel != runner.ArrivalModelPoisson {
		t.Errorf("ArrivalModel = %q", opt.ArrivalModel)
	}
	if len(opt.Stages) != 2 || opt.Stages[0].Target != 20 || opt.Stages[1].Duration != 5*time.Second {
		t.Errorf("Stages = %+v", opt.Stages)
	}
	if opt.PreAllocatedVUs != 10 || opt.MaxVUs != 50 || opt.GracefulStop != config.DefaultGracefulStop {
		t.Errorf("VUs/GracefulStop = %d/%d/%s", opt.PreAllocatedVUs, opt.MaxVUs, opt.GracefulStop)
	}
}

func TestThresholdErrorMessage(t *testing.T) {
	ts, err := threshold.ParseMultiple(threshold.Defaults)
	if err != nil {
		t.Fatal(err)
	}
	err = &ThresholdError{Failed: []threshold.Result{{Threshold: ts[0]}, {Threshold: ts[1]}}}
	want := "thresholds crossed: http_req_failed:rate < 0.01, http_req_duration:p(95) < 500"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	var target *ThresholdError
	if !errors.As(err, &target) {
		t.Errorf("errors.As failed")
	}
}

func TestStderrFailureLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &stderrFailureLogger{w: &buf}
	l.LogFailure(nil)
	l.LogFailure(&runner.HTTPError{Endpoint: "create", StatusCode: 500})
	if got := buf.String(); !strings.HasPrefix(got, "[attendload] request failed: ") || strings.Count(got, "\n") != 1 {
		t.Errorf("log = %q", got)
	}
}
