package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmp := t.TempDir()
	reports := filepath.Join(tmp, "reports")
	elsewhere := filepath.Join(tmp, "elsewhere")
	for _, d := range []string{reports, elsewhere} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Symlink(elsewhere, filepath.Join(reports, "escape")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"root itself", reports, false},
		{"direct child", filepath.Join(reports, "run.json"), false},
		{"not yet created subdir", filepath.Join(reports, "lab", "a", "run.json"), false},
		{"dot segments staying inside", filepath.Join(reports, "lab", "..", "run.json"), false},
		{"dot segments escaping", filepath.Join(reports, "..", "run.json"), true},
		{"sibling with shared prefix", reports + "-old/run.json", true},
		{"through symlink", filepath.Join(reports, "escape", "run.json"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, reports)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePathWithinDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrOutsideRoot) {
				t.Errorf("error %v does not wrap ErrOutsideRoot", err)
			}
		})
	}
}

func TestValidatePathWithinAllowedDirs(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()

	if err := ValidatePathWithinAllowedDirs(filepath.Join(b, "x.json"), []string{a, b}); err != nil {
		t.Errorf("path under second root rejected: %v", err)
	}
	if err := ValidatePathWithinAllowedDirs("/etc/hosts", []string{a, b}); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("path outside roots: error = %v", err)
	}
	if err := ValidatePathWithinAllowedDirs(filepath.Join(a, "x"), nil); !errors.Is(err, ErrOutsideRoot) {
		t.Errorf("no roots: error = %v", err)
	}
}

func TestValidateExportPath(t *testing.T) {
	if err := ValidateExportPath(filepath.Join(os.TempDir(), "proximity", "run.json")); err != nil {
		t.Errorf("temp dir path rejected: %v", err)
	}
	if err := ValidateExportPath("reports/run.json"); err != nil {
		t.Errorf("relative path rejected: %v", err)
	}
	if err := ValidateExportPath("../../../../../../run.json"); err == nil {
		t.Error("escaping relative path accepted")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                   "unnamed",
		"bench run #3":       "bench_run_3",
		"../../etc/passwd":   "etc_passwd",
		"lab-2025.06.01":     "lab-2025.06.01",
		"  ":                 "unnamed",
		"ключ":               "unnamed",
		"sensor/front left!": "sensor_front_left",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}

	if got := SanitizeFilename(strings.Repeat("a", 500)); len(got) != maxNameLen {
		t.Errorf("long name length = %d, want %d", len(got), maxNameLen)
	}
}
