package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/attendance/attendload/internal/threshold"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Default returns the configuration of the canonical attendance scenario.
func Default() *Config {
	return &Config{
		BaseURL:         DefaultBaseURL,
		Headers:         map[string]string{},
		Rate:            DefaultRate,
		TimeUnit:        DefaultTimeUnit,
		Duration:        DefaultDuration,
		PreAllocatedVUs: DefaultPreAllocatedVUs,
		MaxVUs:          DefaultMaxVUs,
		Pause:           DefaultPause,
		Timeout:         DefaultTimeout,
		GracefulStop:    DefaultGracefulStop,
		Arrival:         ArrivalConfig{Model: ArrivalModelUniform},
		Tracing: TracingConfig{
			Protocol:    "grpc",
			ServiceName: "attendload",
			SampleRate:  1.0,
		},
	}
}

// Load parses command-line arguments and configuration files to produce a
// Config. Running without arguments yields the default scenario.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(extra, " "))
	}

	configPath := strings.TrimSpace(flagSet.Lookup("config").Value.String())
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = append([]string(nil), threshold.Defaults...)
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "baseurl", "base_url", "base-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		cfg.BaseURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "timeunit", "time_unit", "time-unit"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("time_unit: %w", err)
		}
		cfg.TimeUnit = dur
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "preallocatedvus", "pre_allocated_vus", "pre-allocated-vus"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("pre_allocated_vus: %w", err)
		}
		cfg.PreAllocatedVUs = val
	}

	if raw, ok := lookupSetting(settings, "maxvus", "max_vus", "max-vus"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_vus: %w", err)
		}
		cfg.MaxVUs = val
	}

	if raw, ok := lookupSetting(settings, "pause", "sleep"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("pause: %w", err)
		}
		cfg.Pause = dur
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "gracefulstop", "graceful_stop", "graceful-stop"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("graceful_stop: %w", err)
		}
		cfg.GracefulStop = dur
	}

	if raw, ok := lookupSetting(settings, "arrival"); ok {
		arr, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if arr.Model != "" {
			cfg.Arrival = arr
		}
	}

	if raw, ok := lookupSetting(settings, "stages"); ok {
		stages, err := parseStages(raw)
		if err != nil {
			return fmt.Errorf("stages: %w", err)
		}
		cfg.Stages = stages
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		vals, err := parseThresholds(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = vals
	}

	if raw, ok := lookupSetting(settings, "feeder"); ok {
		feeder, err := parseFeeder(raw)
		if err != nil {
			return fmt.Errorf("feeder: %w", err)
		}
		cfg.Feeder = feeder
	}

	if raw, ok := lookupSetting(settings, "auth"); ok {
		auth, err := parseAuth(raw)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		cfg.Auth = auth
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("json_output: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "summaryformat", "summary_format", "summary-format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("summary_format: %w", err)
		}
		cfg.SummaryFormat = SummaryFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "summaryexport", "summary_export", "summary-export"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("summary_export: %w", err)
		}
		cfg.SummaryExport = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "logerrors", "log_errors", "log-errors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("log_errors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "metricsaddr", "metrics_addr", "metrics-addr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metrics_addr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "quiet"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("quiet: %w", err)
		}
		cfg.Quiet = val
	}

	return nil
}
