package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "attendload",
		Short:         "Drive constant-rate load against the attendance service",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	// Target
	flags.String("base-url", DefaultBaseURL, "Base URL of the attendance service")
	flags.StringSlice("header", nil, "Additional request header in key=value form (repeatable)")

	// Load profile
	flags.Float64P("rate", "r", DefaultRate, "Iterations started per time unit")
	flags.Duration("time-unit", DefaultTimeUnit, "Period the rate is expressed in")
	flags.DurationP("duration", "d", DefaultDuration, "How long new iterations are started")
	flags.Int("pre-allocated-vus", DefaultPreAllocatedVUs, "Virtual users created before the run starts")
	flags.Int("max-vus", DefaultMaxVUs, "Upper bound on virtual users")
	flags.Duration("pause", DefaultPause, "Think time at the end of each iteration")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.Duration("graceful-stop", DefaultGracefulStop, "How long in-flight iterations may finish after the run ends (0 interrupts immediately)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model used to pace iterations (uniform or poisson)")
	flags.StringSlice("stage", nil, "Ramp stage in duration:target form (repeatable, replaces --rate/--duration)")

	// Pass/fail criteria
	flags.StringSlice("threshold", nil, "Performance threshold (repeatable, e.g. 'http_req_duration:p(95)<500')")

	// Data and auth
	flags.String("feeder-path", "", "CSV or JSON file with employeeId,date,status records for the POST body")
	flags.String("feeder-type", "", "Type of feeder file: 'csv' or 'json'")
	flags.String("auth-token", "", "Static token sent with every request")
	flags.String("auth-header", "", "Header carrying the raw token (default Authorization: Bearer <token>)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint; tracing is off when empty")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "attendload", "service.name resource attribute")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of iterations traced (0.0-1.0)")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Inject W3C trace context headers into requests")

	// Output
	flags.Bool("json-output", false, "Emit the end-of-run summary as JSON")
	flags.String("summary-format", "", "Summary format: 'text', 'json' or 'yaml'")
	flags.String("summary-export", "", "Append the summary as a JSON line to this file")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this host:port during the run")
	flags.BoolP("quiet", "q", false, "Suppress the live progress line")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("base-url") {
		val, err := fs.GetString("base-url")
		if err != nil {
			return err
		}
		cfg.BaseURL = strings.TrimSpace(val)
	}
	if fs.Changed("rate") {
		val, err := fs.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("time-unit") {
		val, err := fs.GetDuration("time-unit")
		if err != nil {
			return err
		}
		cfg.TimeUnit = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("pre-allocated-vus") {
		val, err := fs.GetInt("pre-allocated-vus")
		if err != nil {
			return err
		}
		cfg.PreAllocatedVUs = val
	}
	if fs.Changed("max-vus") {
		val, err := fs.GetInt("max-vus")
		if err != nil {
			return err
		}
		cfg.MaxVUs = val
	}
	if fs.Changed("pause") {
		val, err := fs.GetDuration("pause")
		if err != nil {
			return err
		}
		cfg.Pause = val
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("graceful-stop") {
		val, err := fs.GetDuration("graceful-stop")
		if err != nil {
			return err
		}
		cfg.GracefulStop = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("stage") {
		vals, err := fs.GetStringSlice("stage")
		if err != nil {
			return err
		}
		stages := make([]Stage, 0, len(vals))
		for _, v := range vals {
			stage, err := parseStageFlag(v)
			if err != nil {
				return err
			}
			stages = append(stages, stage)
		}
		cfg.Stages = stages
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	if fs.Changed("feeder-path") {
		val, err := fs.GetString("feeder-path")
		if err != nil {
			return err
		}
		cfg.Feeder.Path = strings.TrimSpace(val)
	}
	if fs.Changed("feeder-type") {
		val, err := fs.GetString("feeder-type")
		if err != nil {
			return err
		}
		cfg.Feeder.Type = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("auth-token") {
		val, err := fs.GetString("auth-token")
		if err != nil {
			return err
		}
		cfg.Auth.Token = strings.TrimSpace(val)
	}
	if fs.Changed("auth-header") {
		val, err := fs.GetString("auth-header")
		if err != nil {
			return err
		}
		cfg.Auth.Header = strings.TrimSpace(val)
	}

	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}

	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("summary-format") {
		val, err := fs.GetString("summary-format")
		if err != nil {
			return err
		}
		cfg.SummaryFormat = SummaryFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("summary-export") {
		val, err := fs.GetString("summary-export")
		if err != nil {
			return err
		}
		cfg.SummaryExport = strings.TrimSpace(val)
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("metrics-addr") {
		val, err := fs.GetString("metrics-addr")
		if err != nil {
			return err
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if fs.Changed("quiet") {
		val, err := fs.GetBool("quiet")
		if err != nil {
			return err
		}
		cfg.Quiet = val
	}

	return nil
}
