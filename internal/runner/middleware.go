package runner

import (
	"context"
	"errors"
	"fmt"
)

// HTTPError represents an HTTP response outside the accepted status range.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// FailureLogger logs failed requests and iterations.
type FailureLogger interface {
	LogFailure(err error)
}

type loggingIteration struct {
	inner  Iteration
	logger FailureLogger
}

// WithLogging wraps an Iteration so errors other than cancellation are logged.
func WithLogging(it Iteration, logger FailureLogger) Iteration {
	if logger == nil {
		return it
	}
	return &loggingIteration{inner: it, logger: logger}
}

func (l *loggingIteration) Do(ctx context.Context) error {
	err := l.inner.Do(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		l.logger.LogFailure(err)
	}
	return err
}
