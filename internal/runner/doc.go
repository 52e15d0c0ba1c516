// Package runner provides the load execution engine for attendload.
//
// The runner implements a constant-arrival-rate executor: iterations are
// started at a fixed rate regardless of how long each one takes. A pool of
// virtual users (VUs) executes them:
//   - PreAllocatedVUs are started before the first arrival
//   - the pool grows on demand up to MaxVUs
//   - arrivals that find every VU busy at MaxVUs are dropped and counted
//
// # Basic Usage
//
//	r := runner.New(runner.Options{
//		RatePerSecond:   50,
//		Duration:        time.Minute,
//		PreAllocatedVUs: 10,
//		MaxVUs:          50,
//		GracefulStop:    runner.DefaultGracefulStop,
//		Iteration:       scenario,
//		Observer:        collector,
//	})
//	result := r.Run(ctx)
//
// # Stopping
//
// No iteration is started after Duration elapses. Iterations still running
// get GracefulStop to finish; after that their context is cancelled and they
// are reported as interrupted. Cancelling the context passed to Run
// interrupts in-flight iterations immediately.
//
// # Arrival Models & Stages
//
//   - [ArrivalModelUniform]: arrivals at fixed intervals
//   - [ArrivalModelPoisson]: exponential gaps with the same mean rate
//
// [Stage] values ramp the rate linearly between targets; when set, the run
// lasts for the sum of the stage durations.
//
// # Middleware
//
// [WithLogging] reports iteration errors to a [FailureLogger]. [HTTPError]
// carries the endpoint and status of a rejected response.
package runner
