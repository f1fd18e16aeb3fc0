package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/proximity.report/internal/fsutil"
	"github.com/banshee-data/proximity.report/internal/sim"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsFileMatchesBuiltins(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if diff := cmp.Diff(Defaults(), cfg); diff != "" {
		t.Errorf("defaults file drifted from Defaults() (-want +got):\n%s", diff)
	}
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "partial.json", `{"collision_threshold": 20, "tick_interval": "250ms", "topic": "lab/bay-2"}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got := cfg.GetTickInterval(); got != 250*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 250ms", got)
	}
	if got := cfg.GetTopic(); got != "lab/bay-2" {
		t.Errorf("GetTopic() = %q", got)
	}
	if got := cfg.GetBroker(); got != "localhost:1883" {
		t.Errorf("GetBroker() = %q", got)
	}
	if got := cfg.GetLogCapacity(); got != 50 {
		t.Errorf("GetLogCapacity() = %d, want 50", got)
	}

	want := sim.DefaultParams()
	want.CollisionThreshold = 20
	if diff := cmp.Diff(want, cfg.SimParams()); diff != "" {
		t.Errorf("SimParams() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "cfg.yaml", `{}`, ".json extension"},
		{"bad json", "cfg.json", `{"seed":`, "failed to parse config JSON"},
		{"bad interval", "cfg.json", `{"tick_interval": "soon"}`, "invalid tick_interval"},
		{"negative interval", "cfg.json", `{"tick_interval": "-1s"}`, "must be positive"},
		{"zero log capacity", "cfg.json", `{"log_capacity": 0}`, "log_capacity must be at least 1"},
		{"several bad capacities", "cfg.json", `{"alert_window": 0, "history_capacity": -1, "log_capacity": 0}`, "log_capacity must be at least 1"},
		{"bad capacity after good", "cfg.json", `{"alert_window": 0, "history_capacity": -1}`, "history_capacity must be at least 1"},
		{"negative alert threshold", "cfg.json", `{"alert_threshold": -2}`, "alert_threshold"},
		{"threshold above max", "cfg.json", `{"collision_threshold": 500}`, "invalid simulation parameters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEmpty_GettersReturnDefaults(t *testing.T) {
	c := Empty()
	if c.GetTickInterval() != time.Second {
		t.Errorf("GetTickInterval() = %v", c.GetTickInterval())
	}
	if c.GetHistoryCapacity() != 120 || c.GetAlertThreshold() != 10 || c.GetAlertWindow() != 60 {
		t.Errorf("unexpected collaborator defaults: %d %d %d",
			c.GetHistoryCapacity(), c.GetAlertThreshold(), c.GetAlertWindow())
	}
	if c.GetLogLevel() != "info" || c.GetLogJSON() {
		t.Errorf("unexpected logging defaults: %q %v", c.GetLogLevel(), c.GetLogJSON())
	}
	if diff := cmp.Diff(sim.DefaultParams(), c.SimParams()); diff != "" {
		t.Errorf("SimParams() mismatch (-want +got):\n%s", diff)
	}
}

func TestOverrides(t *testing.T) {
	base := Defaults()

	seeded := base.WithSeed(99)
	if seeded.SimParams().Seed != 99 {
		t.Errorf("WithSeed did not apply, got %d", seeded.SimParams().Seed)
	}
	if base.SimParams().Seed != 1 {
		t.Error("WithSeed modified the receiver")
	}

	fast, err := base.WithInitialSpeed(1.8)
	if err != nil {
		t.Fatalf("WithInitialSpeed() error: %v", err)
	}
	if fast.SimParams().InitialSpeed != 1.8 {
		t.Errorf("InitialSpeed = %v, want 1.8", fast.SimParams().InitialSpeed)
	}
	if _, err := base.WithInitialSpeed(-0.5); err == nil {
		t.Error("expected error for negative initial speed")
	}
}

func TestLoadFS(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	if err := fsys.WriteFile("lab.json", []byte(`{"seed": 42, "broker": "mqtt.lab:1883"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fsys.WriteFile("huge.json", make([]byte, 1<<20+1), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFS(fsys, "./lab.json")
	if err != nil {
		t.Fatalf("LoadFS() error: %v", err)
	}
	if cfg.SimParams().Seed != 42 || cfg.GetBroker() != "mqtt.lab:1883" {
		t.Errorf("LoadFS() = seed %d broker %q", cfg.SimParams().Seed, cfg.GetBroker())
	}

	if _, err := LoadFS(fsys, "huge.json"); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("LoadFS(huge) error = %v, want size error", err)
	}
	if _, err := LoadFS(fsys, "absent.json"); err == nil || !strings.Contains(err.Error(), "failed to stat") {
		t.Errorf("LoadFS(absent) error = %v", err)
	}
}
