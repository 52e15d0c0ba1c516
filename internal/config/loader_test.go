package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsInt(t *testing.T) {
	tests := []struct {
		input   interface{}
		want    int
		wantErr bool
	}{
		{123, 123, false},
		{" 456 ", 456, false},
		{int64(789), 789, false},
		{float64(10.0), 10, false},
		{float64(10.5), 0, true},
		{nil, 0, false},
		{"ten", 0, true},
		{[]int{1}, 0, true},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("asInt(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsFloat64AndBool(t *testing.T) {
	if v, err := asFloat64("0.25"); err != nil || v != 0.25 {
		t.Errorf("asFloat64(\"0.25\") = %v, %v", v, err)
	}
	if v, err := asFloat64(3); err != nil || v != 3 {
		t.Errorf("asFloat64(3) = %v, %v", v, err)
	}
	if _, err := asFloat64(true); err == nil {
		t.Errorf("asFloat64(true) should fail")
	}
	if v, err := asBool("1"); err != nil || !v {
		t.Errorf("asBool(\"1\") = %v, %v", v, err)
	}
	if _, err := asBool(2); err == nil {
		t.Errorf("asBool(2) should fail")
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"500ms", 500 * time.Millisecond},
		{10, 10 * time.Second},
		{1.5, 1500 * time.Millisecond},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseThresholds(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  []string
	}{
		{"nil", nil, nil},
		{"list", []interface{}{"http_req_failed:rate<0.01"}, []string{"http_req_failed:rate<0.01"}},
		{"single string", "checks:rate>0.9", []string{"checks:rate>0.9"}},
		{
			"map sorted by metric",
			map[string]interface{}{
				"http_req_failed":   []interface{}{"rate<0.01"},
				"http_req_duration": []interface{}{"p(95)<500", " avg<200 "},
			},
			[]string{"http_req_duration:p(95)<500", "http_req_duration:avg<200", "http_req_failed:rate<0.01"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseThresholds(tt.input)
			if err != nil {
				t.Fatalf("parseThresholds() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("parseThresholds() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseStages(t *testing.T) {
	input := []interface{}{
		map[string]interface{}{"duration": "30s", "target": 20},
		"1m:0",
	}
	got, err := parseStages(input)
	if err != nil {
		t.Fatalf("parseStages() error = %v", err)
	}
	want := []Stage{{Duration: 30 * time.Second, Target: 20}, {Duration: time.Minute, Target: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseStages() = %+v, want %+v", got, want)
	}

	if _, err := parseStages("30s:10"); err == nil {
		t.Fatal("non-list stages should fail")
	}
}

func TestParseStageFlag(t *testing.T) {
	tests := []struct {
		in      string
		want    Stage
		wantErr bool
	}{
		{"30s:100", Stage{Duration: 30 * time.Second, Target: 100}, false},
		{" 1m : 2.5 ", Stage{Duration: time.Minute, Target: 2.5}, false},
		{"30s", Stage{}, true},
		{"soon:10", Stage{}, true},
		{"30s:many", Stage{}, true},
	}
	for _, tt := range tests {
		got, err := parseStageFlag(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseStageFlag(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseStageFlag(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Default()
	settings := map[string]interface{}{
		"base_url":          "http://example.com",
		"rate":              25,
		"pre_allocated_vus": 2,
		"timeout":           "5s",
		"headers": map[string]interface{}{
			"content-type": "application/json",
		},
		"auth": map[string]interface{}{
			"token":  "secret",
			"header": "X-Api-Key",
		},
		"arrival": "Poisson",
		"tracing": map[string]interface{}{
			"protocol":  "HTTP",
			"propagate": true,
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.BaseURL != "http://example.com" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Rate != 25 || cfg.PreAllocatedVUs != 2 || cfg.Timeout != 5*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MaxVUs != DefaultMaxVUs {
		t.Errorf("MaxVUs = %d, unset keys should keep defaults", cfg.MaxVUs)
	}
	if cfg.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers[Content-Type] = %q", cfg.Headers["Content-Type"])
	}
	if cfg.Auth.Token != "secret" || cfg.Auth.Header != "X-Api-Key" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Arrival.Model != ArrivalModelPoisson {
		t.Errorf("Arrival.Model = %q", cfg.Arrival.Model)
	}
	if cfg.Tracing.Protocol != "http" || cfg.Tracing.Propagate == nil || !*cfg.Tracing.Propagate {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("Tracing.SampleRate = %g, default should survive", cfg.Tracing.SampleRate)
	}
}

func TestApplyConfigSettingsErrors(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]interface{}
	}{
		{"rate", map[string]interface{}{"rate": "fast"}},
		{"vus", map[string]interface{}{"max_vus": 1.5}},
		{"pause", map[string]interface{}{"pause": "soon"}},
		{"stages", map[string]interface{}{"stages": map[string]interface{}{"a": 1}}},
		{"arrival", map[string]interface{}{"arrival": map[string]interface{}{"rate": 1}}},
		{"feeder", map[string]interface{}{"feeder": 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := applyConfigSettings(Default(), tt.settings); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Default()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--rate=7.5",
		"--pause=0s",
		"--header=x-test=123",
		"--auth-token= tok ",
		"--summary-format=YAML",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Rate != 7.5 {
		t.Errorf("Rate = %g, want 7.5", cfg.Rate)
	}
	if cfg.Pause != 0 {
		t.Errorf("Pause = %s, want 0", cfg.Pause)
	}
	if cfg.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Headers["X-Test"])
	}
	if cfg.Auth.Token != "tok" {
		t.Errorf("Auth.Token = %q", cfg.Auth.Token)
	}
	if cfg.SummaryFormat != SummaryYAML {
		t.Errorf("SummaryFormat = %q", cfg.SummaryFormat)
	}
	if cfg.Duration != DefaultDuration {
		t.Errorf("Duration = %s, unchanged flags must not override", cfg.Duration)
	}
}

func TestLookupSetting(t *testing.T) {
	settings := map[string]interface{}{"base_url": "a", "maxvus": 3}
	if v, ok := lookupSetting(settings, "baseurl", "base_url"); !ok || v != "a" {
		t.Errorf("lookupSetting(base_url) = %v, %v", v, ok)
	}
	if v, ok := lookupSetting(settings, "maxVUs"); !ok || v != 3 {
		t.Errorf("lookupSetting(maxVUs) = %v, %v", v, ok)
	}
	if _, ok := lookupSetting(settings, "missing"); ok {
		t.Errorf("lookupSetting(missing) should not be found")
	}
}
