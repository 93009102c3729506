package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestEmptySettingsDefaults(t *testing.T) {
	s := EmptySettings()

	if s.GetOrder() != 6 {
		t.Errorf("GetOrder() = %d, want 6", s.GetOrder())
	}
	if s.GetCutoffThreshold() != 1e-10 {
		t.Errorf("GetCutoffThreshold() = %g, want 1e-10", s.GetCutoffThreshold())
	}
	if s.GetRemainderEstimation() != 0.01 {
		t.Errorf("GetRemainderEstimation() = %g, want 0.01", s.GetRemainderEstimation())
	}
	if s.GetEpsilon() != 1e-10 {
		t.Errorf("GetEpsilon() = %g, want 1e-10", s.GetEpsilon())
	}
	if s.GetCoverageTolerance() != 1e-6 {
		t.Errorf("GetCoverageTolerance() = %g, want 1e-6", s.GetCoverageTolerance())
	}
	if s.GetWorkers() != runtime.GOMAXPROCS(0) {
		t.Errorf("GetWorkers() = %d, want GOMAXPROCS", s.GetWorkers())
	}
	if s.GetProgressInterval() != 250*time.Millisecond {
		t.Errorf("GetProgressInterval() = %v, want 250ms", s.GetProgressInterval())
	}
}

func TestLoadSettings(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "settings.json")

	testJSON := `{
  "order": 4,
  "cutoff_threshold": 1e-12,
  "workers": 3,
  "progress_interval": "1s"
}`
	if err := os.WriteFile(path, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test settings: %v", err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if s.GetOrder() != 4 {
		t.Errorf("GetOrder() = %d, want 4", s.GetOrder())
	}
	if s.GetCutoffThreshold() != 1e-12 {
		t.Errorf("GetCutoffThreshold() = %g, want 1e-12", s.GetCutoffThreshold())
	}
	if s.GetWorkers() != 3 {
		t.Errorf("GetWorkers() = %d, want 3", s.GetWorkers())
	}
	if s.GetProgressInterval() != time.Second {
		t.Errorf("GetProgressInterval() = %v, want 1s", s.GetProgressInterval())
	}
	// Unset fields keep their defaults.
	if s.GetCoverageTolerance() != 1e-6 {
		t.Errorf("GetCoverageTolerance() = %g, want 1e-6", s.GetCoverageTolerance())
	}
}

func TestLoadSettings_DefaultsFile(t *testing.T) {
	s, err := LoadSettings(filepath.Join("..", "..", DefaultSettingsPath))
	if err != nil {
		t.Fatalf("Failed to load defaults file: %v", err)
	}
	defaults := EmptySettings()
	if s.GetOrder() != defaults.GetOrder() ||
		s.GetEpsilon() != defaults.GetEpsilon() ||
		s.GetCoverageTolerance() != defaults.GetCoverageTolerance() ||
		s.GetRemainderEstimation() != defaults.GetRemainderEstimation() {
		t.Errorf("defaults file disagrees with built-in defaults: %+v", s)
	}
}

func TestLoadSettings_Errors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(tmpDir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("s.yaml", "{}"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "nope.json"), "failed to stat"},
		{"bad json", write("bad.json", "{"), "failed to parse"},
		{"order", write("order.json", `{"order": 0}`), "order must be at least 1"},
		{"cutoff", write("cutoff.json", `{"cutoff_threshold": -1}`), "cutoff_threshold"},
		{"remainder", write("rem.json", `{"remainder_estimation": 0}`), "remainder_estimation"},
		{"epsilon", write("eps.json", `{"epsilon": 0}`), "epsilon"},
		{"tolerance", write("tol.json", `{"coverage_tolerance": -1}`), "coverage_tolerance"},
		{"workers", write("w.json", `{"workers": -2}`), "workers"},
		{"interval", write("pi.json", `{"progress_interval": "soon"}`), "progress_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSettings(tt.path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSettings_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(path, big, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSettings(path); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}
