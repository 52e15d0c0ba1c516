package check_test

import (
	"testing"

	"github.com/attendance/attendload/internal/check"
)

type recorder struct {
	results []check.Result
}

func (r *recorder) RecordCheck(res check.Result) {
	r.results = append(r.results, res)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   int
		passed bool
	}{
		{"match", 200, 200, true},
		{"mismatch", 500, 201, false},
		{"no response", 0, 0, false},
		{"created", 201, 201, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := check.Status("status", tt.status, tt.want)
			if got.Passed != tt.passed {
				t.Fatalf("Status(%d, %d).Passed = %v, want %v", tt.status, tt.want, got.Passed, tt.passed)
			}
			if got.Name != "status" {
				t.Fatalf("Name = %q", got.Name)
			}
		})
	}
}

func TestEvalRecordsEveryResult(t *testing.T) {
	rec := &recorder{}
	passed := check.Eval(rec,
		check.Result{Name: "a", Passed: true},
		check.Result{Name: "b", Passed: false},
	)
	if passed != 1 {
		t.Fatalf("passed = %d, want 1", passed)
	}
	if len(rec.results) != 2 {
		t.Fatalf("recorded %d results, want 2", len(rec.results))
	}
	if rec.results[1].Name != "b" || rec.results[1].Passed {
		t.Fatalf("unexpected second result: %+v", rec.results[1])
	}
}

func TestEvalNilRecorder(t *testing.T) {
	if got := check.Eval(nil, check.Result{Name: "a", Passed: true}); got != 1 {
		t.Fatalf("passed = %d, want 1", got)
	}
}
