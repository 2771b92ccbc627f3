package config

import (
	"strings"
	"testing"

	"github.com/samirrijal/siteintel/internal/pkg/apnformat"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("siteintel-test")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telemetry.ServiceName != "siteintel-test" {
		t.Errorf("expected service name default, got %q", cfg.Telemetry.ServiceName)
	}
	if cfg.Matching.HighThreshold != 70 || cfg.Matching.MediumThreshold != 40 {
		t.Errorf("unexpected thresholds %+v", cfg.Matching)
	}
	if cfg.Geocoding.Timeout().Seconds() != 15 {
		t.Errorf("expected 15s geocoder timeout, got %s", cfg.Geocoding.Timeout())
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SITEINTEL_SERVER_PORT", "9090")
	t.Setenv("SITEINTEL_MATCHING_AUTO_SELECT_MARGIN", "20")
	cfg, err := Load("siteintel-test")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Matching.AutoSelectMargin != 20 {
		t.Errorf("env overrides not applied: port=%d margin=%v", cfg.Server.Port, cfg.Matching.AutoSelectMargin)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg, err := Load("siteintel-test")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Server.Port = 0
	cfg.Matching.HighThreshold = 30
	cfg.Registry.Counties = []apnformat.CountyFormat{{County: "bexar", Pattern: "("}}

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, want := range []string{"server.port", "matching thresholds", "registry"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestRegistryBuild_ExtendsDefaults(t *testing.T) {
	r, err := RegistryConfig{Version: "2025-06", Counties: []apnformat.CountyFormat{
		{County: "Bexar", Name: "Bexar", Pattern: `^\d{12}$`},
		{County: "harris", Name: "Harris", Pattern: `^\d{14}$`},
	}}.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(r.Counties()) != len(apnformat.DefaultFormats)+1 {
		t.Errorf("expected defaults plus one, got %d", len(r.Counties()))
	}
	if f, ok := r.Lookup("harris"); !ok || f.Pattern != `^\d{14}$` {
		t.Errorf("expected harris override, got %+v", f)
	}
	if r.Counties()[0].County != "harris" {
		t.Error("an override keeps its detection position")
	}
}
