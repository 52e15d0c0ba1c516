// Package config loads attendload settings from defaults, an optional
// JSON/YAML file and command-line flags, in that order of precedence.
package config

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// lookupSetting searches for a value in settings using multiple candidate keys.
// It performs case-insensitive matching by also checking lowercase versions.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		lower := strings.ToLower(key)
		if val, ok := settings[lower]; ok {
			return val, true
		}
	}
	return nil, false
}

// asString converts an interface value to a string.
func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// asInt converts an interface value to an int. Fractional numbers are rejected.
func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float32:
		return asInt(float64(v))
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected a whole number, got %g", v)
		}
		return int(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
}

// asFloat64 converts an interface value to a float64.
func asFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("unsupported float type %T", value)
	}
}

// asBool converts an interface value to a bool.
func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return false, nil
		}
		return strconv.ParseBool(s)
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asDuration converts an interface value to a time.Duration. Strings are
// parsed with time.ParseDuration; bare numbers are seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return time.ParseDuration(s)
	default:
		secs, err := asFloat64(v)
		if err != nil {
			return 0, fmt.Errorf("unsupported duration type %T", value)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}

// asStringMap converts an interface value to a map[string]string.
func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case map[string]string:
		result := make(map[string]string, len(v))
		for k, val := range v {
			result[k] = val
		}
		return result, nil
	case map[string]interface{}:
		result := make(map[string]string, len(v))
		for k, val := range v {
			str, err := asString(val)
			if err != nil {
				return nil, err
			}
			result[k] = str
		}
		return result, nil
	case map[interface{}]interface{}:
		result := make(map[string]string, len(v))
		for k, val := range v {
			key, err := asString(k)
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(key) == "" {
				return nil, fmt.Errorf("header key cannot be empty")
			}
			str, err := asString(val)
			if err != nil {
				return nil, err
			}
			result[key] = str
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported headers type %T", value)
	}
}

// asStringSlice converts an interface value to a []string.
func asStringSlice(value interface{}) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = str
		}
		return result, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("unsupported string slice type %T", value)
	}
}

// toInterfaceSlice converts various slice types to []interface{}.
func toInterfaceSlice(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	case []map[string]interface{}:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", value)
	}
}

// toStringKeyMap converts a map with various key types to map[string]interface{}.
// Keys are normalized to lowercase.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	result := map[string]interface{}{}
	switch v := value.(type) {
	case map[string]interface{}:
		for key, val := range v {
			result[strings.ToLower(strings.TrimSpace(key))] = val
		}
	case map[interface{}]interface{}:
		for key, val := range v {
			str, err := asString(key)
			if err != nil {
				return nil, err
			}
			result[strings.ToLower(strings.TrimSpace(str))] = val
		}
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	return result, nil
}

// parseThresholds accepts either a list of "metric:expr" strings or a map
// from metric name to one or more expressions:
//
//	thresholds:
//	  http_req_failed: ["rate<0.01"]
//	  http_req_duration: ["p(95)<500"]
func parseThresholds(value interface{}) ([]string, error) {
	switch value.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}, map[interface{}]interface{}:
		entries, err := toStringKeyMap(value)
		if err != nil {
			return nil, err
		}
		metrics := make([]string, 0, len(entries))
		for metric := range entries {
			metrics = append(metrics, metric)
		}
		sort.Strings(metrics)

		var out []string
		for _, metric := range metrics {
			exprs, err := asStringSlice(entries[metric])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", metric, err)
			}
			for _, expr := range exprs {
				out = append(out, metric+":"+strings.TrimSpace(expr))
			}
		}
		return out, nil
	default:
		return asStringSlice(value)
	}
}

func parseStages(value interface{}) ([]Stage, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	stages := make([]Stage, 0, len(items))
	for idx, item := range items {
		if s, ok := item.(string); ok {
			stage, err := parseStageFlag(s)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", idx, err)
			}
			stages = append(stages, stage)
			continue
		}
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		var stage Stage
		if raw, ok := lookupSetting(entry, "duration"); ok {
			dur, err := asDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("index %d duration: %w", idx, err)
			}
			stage.Duration = dur
		}
		if raw, ok := lookupSetting(entry, "target"); ok {
			target, err := asFloat64(raw)
			if err != nil {
				return nil, fmt.Errorf("index %d target: %w", idx, err)
			}
			stage.Target = target
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// parseStageFlag parses the "duration:target" form, e.g. "30s:100".
func parseStageFlag(s string) (Stage, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return Stage{}, fmt.Errorf("stage must be in duration:target form, got %q", s)
	}
	dur, err := time.ParseDuration(strings.TrimSpace(parts[0]))
	if err != nil {
		return Stage{}, fmt.Errorf("stage duration: %w", err)
	}
	target, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Stage{}, fmt.Errorf("stage target: %w", err)
	}
	return Stage{Duration: dur, Target: target}, nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	if value == nil {
		return ArrivalConfig{}, nil
	}
	switch v := value.(type) {
	case string:
		return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(v)))}, nil
	default:
		entry, err := toStringKeyMap(value)
		if err != nil {
			return ArrivalConfig{}, err
		}
		raw, ok := lookupSetting(entry, "model")
		if !ok {
			return ArrivalConfig{}, fmt.Errorf("model field is required")
		}
		val, err := asString(raw)
		if err != nil {
			return ArrivalConfig{}, fmt.Errorf("model: %w", err)
		}
		return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(val)))}, nil
	}
}

func parseFeeder(value interface{}) (FeederConfig, error) {
	if s, ok := value.(string); ok {
		return FeederConfig{Path: strings.TrimSpace(s)}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return FeederConfig{}, err
	}
	var cfg FeederConfig
	if raw, ok := lookupSetting(entry, "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return FeederConfig{}, fmt.Errorf("path: %w", err)
		}
		cfg.Path = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return FeederConfig{}, fmt.Errorf("type: %w", err)
		}
		cfg.Type = strings.ToLower(strings.TrimSpace(val))
	}
	return cfg, nil
}

func parseAuth(value interface{}) (AuthConfig, error) {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return AuthConfig{}, err
	}
	var cfg AuthConfig
	if raw, ok := lookupSetting(entry, "token"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("token: %w", err)
		}
		cfg.Token = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "header"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("header: %w", err)
		}
		cfg.Header = strings.TrimSpace(val)
	}
	return cfg, nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	cfg := base
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		cfg.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		cfg.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		cfg.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		cfg.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		cfg.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		cfg.Propagate = &val
	}
	return cfg, nil
}
