// Package metrics collects and aggregates load test measurements.
//
// A [Collector] receives one [RequestSample] per HTTP request, one check result
// per evaluated check, and iteration and VU events from the runner. [Collector.Stats]
// produces a [Stats] summary whose [Trend] values expose latency percentiles
// backed by an HDR histogram:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//	collector.RecordRequest(metrics.RequestSample{Endpoint: "trends", Status: 200, Duration: d})
//	stats := collector.Stats(collector.Elapsed())
//	p95 := stats.RequestDuration.Percentile(95)
//
// A request counts as failed when it produced a transport error or a status
// outside 200..399.
//
// Sinks such as [PrometheusSink] mirror events for live scraping. The Collector
// is safe for concurrent use.
package metrics
