// Package scenario implements the attendance iteration: read the monthly
// trends, record one attendance entry, then pause.
package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/attendance/attendload/internal/check"
	"github.com/attendance/attendload/internal/httpclient"
	"github.com/attendance/attendload/internal/metrics"
	"github.com/attendance/attendload/internal/runner"
	"github.com/attendance/attendload/internal/tracing"
)

const (
	TrendsPath  = "/api/attendance/trends"
	TrendsStart = "2024-03-01"
	TrendsEnd   = "2024-03-31"
	CreatePath  = "/api/attendance"

	EndpointTrends = "trends"
	EndpointCreate = "create"

	CheckTrendsStatus = "trends status 200"
	CheckCreateStatus = "post status 201"
)

// Recorder receives request samples and check results.
type Recorder interface {
	RecordRequest(s metrics.RequestSample)
	check.Recorder
}

// Options configure an Attendance iteration. BaseURL and Recorder are required.
type Options struct {
	BaseURL string
	Client  *http.Client
	// Headers are sent with both requests. Content-Type on the POST is
	// always application/json.
	Headers   map[string]string
	Auth      httpclient.AuthProvider
	Records   RecordSource
	Pause     time.Duration
	Recorder  Recorder
	Logger    runner.FailureLogger
	Tracer    trace.Tracer
	Propagate bool
}

// Attendance is a runner.Iteration issuing exactly two requests per call.
type Attendance struct {
	client    *http.Client
	trends    *httpclient.RequestBuilder
	create    *httpclient.RequestBuilder
	records   RecordSource
	pause     time.Duration
	recorder  Recorder
	logger    runner.FailureLogger
	tracer    trace.Tracer
	propagate bool
}

var _ runner.Iteration = (*Attendance)(nil)

func New(opt Options) (*Attendance, error) {
	base := strings.TrimRight(strings.TrimSpace(opt.BaseURL), "/")
	if base == "" {
		return nil, errors.New("base URL is required")
	}
	if opt.Recorder == nil {
		return nil, errors.New("recorder is required")
	}
	if opt.Pause < 0 {
		return nil, fmt.Errorf("pause must be >= 0, got %s", opt.Pause)
	}

	trends, err := httpclient.NewRequestBuilder(http.MethodGet, TrendsURL(base), opt.Headers)
	if err != nil {
		return nil, fmt.Errorf("trends request: %w", err)
	}

	createHeaders := make(map[string]string, len(opt.Headers)+1)
	for k, v := range opt.Headers {
		if http.CanonicalHeaderKey(strings.TrimSpace(k)) == "Content-Type" {
			continue
		}
		createHeaders[k] = v
	}
	createHeaders["Content-Type"] = "application/json"
	create, err := httpclient.NewRequestBuilder(http.MethodPost, base+CreatePath, createHeaders)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if opt.Auth != nil {
		trends.WithAuth(opt.Auth)
		create.WithAuth(opt.Auth)
	}

	a := &Attendance{
		client:    opt.Client,
		trends:    trends,
		create:    create,
		records:   opt.Records,
		pause:     opt.Pause,
		recorder:  opt.Recorder,
		logger:    opt.Logger,
		tracer:    opt.Tracer,
		propagate: opt.Propagate,
	}
	if a.client == nil {
		a.client = httpclient.NewClient(0, 0)
	}
	if a.records == nil {
		a.records = Fixed(DefaultRecord)
	}
	if a.tracer == nil {
		a.tracer = noop.NewTracerProvider().Tracer("attendload")
	}
	return a, nil
}

// TrendsURL returns the trends query for the fixed March 2024 range.
func TrendsURL(base string) string {
	return strings.TrimRight(base, "/") + TrendsPath + "?start=" + TrendsStart + "&end=" + TrendsEnd
}

// Do runs one iteration. Request failures are recorded and never abort the
// iteration; only cancellation of ctx is returned as an error.
func (a *Attendance) Do(ctx context.Context) (err error) {
	info, _ := runner.IterationFromContext(ctx)
	ctx, span := tracing.StartIterationSpan(ctx, a.tracer, info.VU, info.Iteration)
	defer func() { tracing.EndSpan(span, err) }()

	status, err := a.send(ctx, a.trends, EndpointTrends, nil)
	if err != nil {
		return err
	}
	check.Eval(a.recorder, check.Status(CheckTrendsStatus, status, http.StatusOK))

	rec, err := a.records.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("next attendance record: %w", err)
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode attendance record: %w", err)
	}

	status, err = a.send(ctx, a.create, EndpointCreate, body)
	if err != nil {
		return err
	}
	check.Eval(a.recorder, check.Status(CheckCreateStatus, status, http.StatusCreated))

	return Pause(ctx, a.pause)
}

// send performs one request, records it and returns the status (0 without a
// response). The error is non-nil only when ctx was cancelled, in which case
// nothing is recorded.
func (a *Attendance) send(ctx context.Context, b *httpclient.RequestBuilder, endpoint string, body []byte) (int, error) {
	reqCtx, span := tracing.StartRequestSpan(ctx, a.tracer, b.Method(), endpoint, b.Target())

	sample := metrics.RequestSample{Endpoint: endpoint, Method: b.Method()}
	var resp httpclient.Response
	req, err := b.Build(reqCtx, body)
	if err == nil {
		if a.propagate {
			tracing.InjectHTTPHeaders(reqCtx, req.Header)
		}
		resp, err = httpclient.Send(a.client, req)
		sample.Status = resp.Status
		sample.Duration = resp.Duration
		sample.BytesSent = resp.BytesSent
		sample.BytesReceived = resp.BytesReceived
	}
	tracing.EndRequestSpan(span, sample.Status, err)
	if err == nil && sample.Failed() {
		err = &runner.HTTPError{Endpoint: endpoint, StatusCode: sample.Status, Body: strings.TrimSpace(resp.Body)}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ctxErr
	}

	sample.Err = err
	a.recorder.RecordRequest(sample)
	if err != nil && a.logger != nil {
		var httpErr *runner.HTTPError
		if !errors.As(err, &httpErr) {
			err = fmt.Errorf("%s: %w", endpoint, err)
		}
		a.logger.LogFailure(err)
	}
	return sample.Status, nil
}

// Pause sleeps for d or until ctx is done, whichever comes first.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
