// Package check evaluates named boolean assertions against single responses.
//
// A failing check never aborts an iteration. Results are handed to a [Recorder]
// which aggregates pass and fail counts per check name for the run summary.
package check

// Result is the outcome of one named check within one iteration.
type Result struct {
	Name   string
	Passed bool
}

// Recorder receives check results as they are evaluated.
type Recorder interface {
	RecordCheck(r Result)
}

// Status reports whether status equals want. A zero status (no response
// received) always fails.
func Status(name string, status, want int) Result {
	return Result{Name: name, Passed: status != 0 && status == want}
}

// Eval runs each result through rec and returns the number that passed.
func Eval(rec Recorder, results ...Result) int {
	passed := 0
	for _, r := range results {
		if rec != nil {
			rec.RecordCheck(r)
		}
		if r.Passed {
			passed++
		}
	}
	return passed
}
