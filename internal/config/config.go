package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/attendance/attendload/internal/threshold"
)

// Defaults mirror the canonical attendance scenario: 50 iterations per second
// for one minute on 10 pre-allocated VUs growing to at most 50.
const (
	DefaultBaseURL         = "http://localhost:8081"
	DefaultRate            = 50
	DefaultTimeUnit        = time.Second
	DefaultDuration        = time.Minute
	DefaultPreAllocatedVUs = 10
	DefaultMaxVUs          = 50
	DefaultPause           = 500 * time.Millisecond
	DefaultTimeout         = 60 * time.Second
	DefaultGracefulStop    = 30 * time.Second
)

type Config struct {
	BaseURL         string            `mapstructure:"base_url"`
	Headers         map[string]string `mapstructure:"headers"`
	Rate            float64           `mapstructure:"rate"`
	TimeUnit        time.Duration     `mapstructure:"time_unit"`
	Duration        time.Duration     `mapstructure:"duration"`
	PreAllocatedVUs int               `mapstructure:"pre_allocated_vus"`
	MaxVUs          int               `mapstructure:"max_vus"`
	Pause           time.Duration     `mapstructure:"pause"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	GracefulStop    time.Duration     `mapstructure:"graceful_stop"`
	Arrival         ArrivalConfig     `mapstructure:"arrival"`
	Stages          []Stage           `mapstructure:"stages"`
	Thresholds      []string          `mapstructure:"thresholds"`
	Feeder          FeederConfig      `mapstructure:"feeder"`
	Auth            AuthConfig        `mapstructure:"auth"`
	Tracing         TracingConfig     `mapstructure:"tracing"`
	JSONOutput      bool              `mapstructure:"json_output"`
	SummaryFormat   SummaryFormat     `mapstructure:"summary_format"`
	SummaryExport   string            `mapstructure:"summary_export"`
	LogErrors       bool              `mapstructure:"log_errors"`
	MetricsAddr     string            `mapstructure:"metrics_addr"`
	Quiet           bool              `mapstructure:"quiet"`
	ConfigFile      string            `mapstructure:"-"`
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

// Stage ramps the arrival rate to Target iterations per TimeUnit over Duration.
type Stage struct {
	Duration time.Duration `mapstructure:"duration"`
	Target   float64       `mapstructure:"target"`
}

type FeederConfig struct {
	Path string `mapstructure:"path"`
	Type string `mapstructure:"type"` // "csv" or "json"; inferred from the extension when empty
}

type AuthConfig struct {
	Token  string `mapstructure:"token"`
	Header string `mapstructure:"header"` // defaults to "Authorization: Bearer <token>"
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an OTLP endpoint is configured, directly or via
// OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate defaults to Enabled unless Propagate is set explicitly.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type SummaryFormat string

const (
	SummaryText SummaryFormat = "text"
	SummaryJSON SummaryFormat = "json"
	SummaryYAML SummaryFormat = "yaml"
)

// Format resolves the summary format, with JSONOutput as a shorthand for json.
func (c Config) Format() SummaryFormat {
	if c.JSONOutput {
		return SummaryJSON
	}
	if c.SummaryFormat == "" {
		return SummaryText
	}
	return c.SummaryFormat
}

// RatePerSecond converts Rate per TimeUnit into iterations per second.
func (c Config) RatePerSecond() float64 {
	return perSecond(c.Rate, c.TimeUnit)
}

// StageTargetsPerSecond converts every stage target into iterations per second.
func (c Config) StageTargetsPerSecond() []Stage {
	if len(c.Stages) == 0 {
		return nil
	}
	out := make([]Stage, len(c.Stages))
	for i, s := range c.Stages {
		out[i] = Stage{Duration: s.Duration, Target: perSecond(s.Target, c.TimeUnit)}
	}
	return out
}

func perSecond(v float64, unit time.Duration) float64 {
	if unit <= 0 {
		unit = DefaultTimeUnit
	}
	return v / unit.Seconds()
}

// TotalDuration is how long new iterations are scheduled.
func (c Config) TotalDuration() time.Duration {
	if len(c.Stages) == 0 {
		return c.Duration
	}
	var total time.Duration
	for _, s := range c.Stages {
		total += s.Duration
	}
	return total
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	issues = append(issues, validateBaseURL(c.BaseURL)...)

	if len(c.Stages) == 0 {
		if c.Rate <= 0 {
			issues = append(issues, "rate must be > 0")
		}
		if c.Duration <= 0 {
			issues = append(issues, "duration must be > 0")
		}
	} else if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.TimeUnit <= 0 {
		issues = append(issues, "time_unit must be > 0")
	}
	if c.PreAllocatedVUs < 1 {
		issues = append(issues, "pre_allocated_vus must be >= 1")
	}
	if c.MaxVUs < c.PreAllocatedVUs {
		issues = append(issues, fmt.Sprintf("max_vus (%d) must be >= pre_allocated_vus (%d)", c.MaxVUs, c.PreAllocatedVUs))
	}
	if c.Pause < 0 {
		issues = append(issues, "pause must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.GracefulStop < 0 {
		issues = append(issues, "graceful_stop must be >= 0")
	}

	// Security warnings for high rate/VU counts
	if rps := c.RatePerSecond(); rps > 1000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High arrival rate configured (%g iterations/s). Ensure you have authorization to test the target system.", rps))
	}
	if c.MaxVUs > 500 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High VU limit configured (%d VUs). Ensure you have authorization to test the target system.", c.MaxVUs))
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, validateStages(c.Stages)...)

	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}

	issues = append(issues, validateFeederConfig(c.Feeder)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	switch c.SummaryFormat {
	case "", SummaryText, SummaryJSON, SummaryYAML:
	default:
		issues = append(issues, fmt.Sprintf("summary_format must be 'text', 'json' or 'yaml', got %q", c.SummaryFormat))
	}
	if c.JSONOutput && c.SummaryFormat != "" && c.SummaryFormat != SummaryJSON {
		issues = append(issues, "json-output and summary-format are mutually exclusive")
	}

	if addr := strings.TrimSpace(c.MetricsAddr); addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			issues = append(issues, fmt.Sprintf("metrics_addr %q must be host:port", addr))
		}
	}

	if strings.TrimSpace(c.Auth.Header) != "" && strings.TrimSpace(c.Auth.Token) == "" {
		issues = append(issues, "auth: token is required when header is set")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateBaseURL(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{"base_url is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return []string{fmt.Sprintf("base_url: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return []string{fmt.Sprintf("base_url must use http or https, got %q", raw)}
	}
	if u.Host == "" {
		return []string{fmt.Sprintf("base_url %q has no host", raw)}
	}
	return nil
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func validateStages(stages []Stage) []string {
	var issues []string
	for idx, stage := range stages {
		if stage.Duration <= 0 {
			issues = append(issues, fmt.Sprintf("stages[%d]: duration must be > 0", idx))
		}
		if stage.Target < 0 {
			issues = append(issues, fmt.Sprintf("stages[%d]: target must be >= 0", idx))
		}
	}
	return issues
}

func validateFeederConfig(feeder FeederConfig) []string {
	path := strings.TrimSpace(feeder.Path)
	if path == "" {
		return nil
	}

	kind := strings.ToLower(strings.TrimSpace(feeder.Type))
	if kind == "" {
		kind = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		if kind != "csv" && kind != "json" {
			return []string{fmt.Sprintf("feeder: cannot infer type from %q, set type to 'csv' or 'json'", path)}
		}
		return nil
	}
	if kind != "csv" && kind != "json" {
		return []string{fmt.Sprintf("feeder: type must be 'csv' or 'json', got %q", feeder.Type)}
	}
	return nil
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
