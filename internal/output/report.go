package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/attendance/attendload/internal/metrics"
)

const metricNameWidth = 32

// PrintReport outputs a human-readable summary in the layout of k6's
// end-of-test summary.
func PrintReport(w io.Writer, s Summary) {
	sc := s.Scenario
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  run:      %s\n", s.RunID)
	fmt.Fprintf(w, "  target:   %s\n", sc.BaseURL)
	fmt.Fprintf(w, "  scenario: %s, %g iterations per %s for %s (%d-%d VUs, pause %s, %s arrivals)\n",
		sc.Executor, sc.Rate, sc.TimeUnit, sc.Duration, sc.PreAllocatedVUs, sc.MaxVUs, sc.Pause, sc.ArrivalModel)

	st := s.Metrics
	if len(st.Checks) > 0 {
		fmt.Fprintln(w)
		for _, c := range st.Checks {
			mark := "✓"
			if c.Fails > 0 {
				mark = "✗"
			}
			fmt.Fprintf(w, "     %s %s\n", mark, c.Name)
			if c.Fails > 0 {
				fmt.Fprintf(w, "      ↳  %.0f%% passed | ✓ %d / ✗ %d\n", c.Rate*100, c.Passes, c.Fails)
			}
		}
	}

	if len(s.Thresholds) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  THRESHOLDS")
		for _, t := range s.Thresholds {
			fmt.Fprintf(w, "     %s\n", t.Message)
		}
	}

	fmt.Fprintln(w)
	checksTotal := st.ChecksPassed + st.ChecksFailed
	metricLine(w, "checks", fmt.Sprintf("%.2f%% %d out of %d", st.ChecksRate*100, st.ChecksPassed, checksTotal))
	metricLine(w, "data_received", formatBytes(st.DataReceived))
	metricLine(w, "data_sent", formatBytes(st.DataSent))
	metricLine(w, "dropped_iterations", fmt.Sprintf("%d %.2f/s", st.DroppedIterations, st.DroppedPerSec))
	metricLine(w, "http_req_duration", formatTrend(st.RequestDuration))
	for _, name := range sortedEndpoints(st.Endpoints) {
		metricLine(w, "  { endpoint:"+name+" }", formatTrend(st.Endpoints[name].Duration))
	}
	metricLine(w, "http_req_failed", fmt.Sprintf("%.2f%% %d out of %d", st.FailedRate*100, st.FailedRequests, st.Requests))
	metricLine(w, "http_reqs", fmt.Sprintf("%d %.2f/s", st.Requests, st.RequestsPerSec))
	metricLine(w, "iteration_duration", formatTrend(st.IterationDuration))
	metricLine(w, "iterations", fmt.Sprintf("%d %.2f/s", st.Iterations, st.IterationsPerSec))
	if st.InterruptedIterations > 0 {
		metricLine(w, "interrupted_iterations", fmt.Sprintf("%d", st.InterruptedIterations))
	}
	metricLine(w, "vus_max", fmt.Sprintf("%d (peak busy %d)", st.VUsMax, s.Iterations.PeakVUs))

	if rows := metrics.FlattenStatusBuckets(st.StatusBuckets); len(rows) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  FAILED RESPONSES")
		for _, row := range rows {
			fmt.Fprintf(w, "     %s %s: %d\n", row.Endpoint, row.Code, row.Count)
		}
	}
	if len(st.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  ERRORS")
		names := make([]string, 0, len(st.Errors))
		for name := range st.Errors {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if st.Errors[names[i]] == st.Errors[names[j]] {
				return names[i] < names[j]
			}
			return st.Errors[names[i]] > st.Errors[names[j]]
		})
		for _, name := range names {
			fmt.Fprintf(w, "     %s: %d\n", name, st.Errors[name])
		}
	}

	fmt.Fprintln(w)
	if s.Passed {
		fmt.Fprintln(w, "  result: PASS")
	} else {
		fmt.Fprintln(w, "  result: FAIL (thresholds crossed)")
	}
}

// PrintJSONReport outputs the summary as indented JSON.
func PrintJSONReport(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// PrintYAMLReport outputs the summary as YAML.
func PrintYAMLReport(w io.Writer, s Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

func metricLine(w io.Writer, name, value string) {
	dots := metricNameWidth - len(name)
	if dots < 3 {
		dots = 3
	}
	fmt.Fprintf(w, "     %s%s: %s\n", name, strings.Repeat(".", dots), value)
}

func formatTrend(t metrics.Trend) string {
	return fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s",
		formatMs(t.Avg), formatMs(t.Min), formatMs(t.Med), formatMs(t.Max), formatMs(t.P90), formatMs(t.P95))
}

func formatMs(ms float64) string {
	switch {
	case ms >= 1000:
		return fmt.Sprintf("%.2fs", ms/1000)
	case ms >= 1:
		return fmt.Sprintf("%.2fms", ms)
	default:
		return fmt.Sprintf("%.0fµs", ms*1000)
	}
}

func formatBytes(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "kMGTPE"[exp])
}

func sortedEndpoints(endpoints map[string]metrics.EndpointStats) []string {
	names := make([]string, 0, len(endpoints))
	for name := range endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
