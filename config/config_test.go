package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewAppliesDocumentedDefaults(t *testing.T) {
	cfg := New(nil)

	if cfg.TrackingMethod != TrackingHybrid {
		t.Errorf("TrackingMethod = %v, want %v", cfg.TrackingMethod, TrackingHybrid)
	}
	if cfg.Compute2D2DPose.Validity.Method != ValidityFlow {
		t.Errorf("Validity.Method = %v, want %v", cfg.Compute2D2DPose.Validity.Method, ValidityFlow)
	}
	if cfg.Compute2D2DPose.Validity.Thre != 0.1 {
		t.Errorf("Validity.Thre = %v, want 0.1", cfg.Compute2D2DPose.Validity.Thre)
	}
	if cfg.Compute2D2DPose.Ransac.Repeat != 10 {
		t.Errorf("Ransac.Repeat = %v, want 10", cfg.Compute2D2DPose.Ransac.Repeat)
	}
	if cfg.ETracker.KpSrc != KpBest {
		t.Errorf("ETracker.KpSrc = %v, want %v", cfg.ETracker.KpSrc, KpBest)
	}
	if cfg.ScaleRecovery.KpSrc != KpDepth {
		t.Errorf("ScaleRecovery.KpSrc = %v, want %v", cfg.ScaleRecovery.KpSrc, KpDepth)
	}
	if cfg.ScaleRecovery.Method != ScaleSingle {
		t.Errorf("ScaleRecovery.Method = %v, want %v", cfg.ScaleRecovery.Method, ScaleSingle)
	}
	if cfg.ScaleRecovery.Ransac.MaxTrials != 100 {
		t.Errorf("ScaleRecovery.Ransac.MaxTrials = %v, want 100", cfg.ScaleRecovery.Ransac.MaxTrials)
	}
	if cfg.FrameStep != 1 {
		t.Errorf("FrameStep = %v, want 1", cfg.FrameStep)
	}
}

func TestNewPreservesExplicitOverrides(t *testing.T) {
	cfg := New(&Config{
		TrackingMethod: TrackingPnP,
		FrameStep:      3,
		ScaleRecovery:  ScaleRecovery{Method: ScaleIterative},
	})

	if cfg.TrackingMethod != TrackingPnP {
		t.Errorf("TrackingMethod = %v, want %v (override should survive defaulting)", cfg.TrackingMethod, TrackingPnP)
	}
	if cfg.FrameStep != 3 {
		t.Errorf("FrameStep = %v, want 3", cfg.FrameStep)
	}
	if cfg.ScaleRecovery.Method != ScaleIterative {
		t.Errorf("ScaleRecovery.Method = %v, want %v", cfg.ScaleRecovery.Method, ScaleIterative)
	}
	// fields left zero in the override still pick up their defaults.
	if cfg.ScaleRecovery.Ransac.MaxTrials != 100 {
		t.Errorf("ScaleRecovery.Ransac.MaxTrials = %v, want 100", cfg.ScaleRecovery.Ransac.MaxTrials)
	}
}

func TestLoadParsesYAMLAndApplesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	yaml := `
tracking_method: PnP
frame_step: 2
scale_recovery:
  ransac:
    method: abs_diff
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TrackingMethod != TrackingPnP {
		t.Errorf("TrackingMethod = %v, want %v", cfg.TrackingMethod, TrackingPnP)
	}
	if cfg.FrameStep != 2 {
		t.Errorf("FrameStep = %v, want 2", cfg.FrameStep)
	}
	if cfg.ScaleRecovery.Ransac.Method != ScaleRansacAbsDiff {
		t.Errorf("ScaleRecovery.Ransac.Method = %v, want %v", cfg.ScaleRecovery.Ransac.Method, ScaleRansacAbsDiff)
	}
	// untouched by the YAML: still defaulted.
	if cfg.Compute2D2DPose.Validity.Method != ValidityFlow {
		t.Errorf("Validity.Method = %v, want %v", cfg.Compute2D2DPose.Validity.Method, ValidityFlow)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(New(nil)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsUnsupportedEnumValues(t *testing.T) {
	cases := []struct {
		name string
		cfg  *Config
	}{
		{"tracking_method", New(&Config{TrackingMethod: "bogus"})},
		{"validity.method", New(&Config{Compute2D2DPose: Compute2D2DPose{Validity: Validity{Method: "bogus"}}})},
		{"scale_recovery.method", New(&Config{ScaleRecovery: ScaleRecovery{Method: "bogus"}})},
		{"scale_recovery.ransac.method", New(&Config{ScaleRecovery: ScaleRecovery{Ransac: ScaleRansac{Method: "bogus"}}})},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := Validate(c.cfg); err == nil {
				t.Errorf("expected Validate to reject an unsupported %s", c.name)
			}
		})
	}
}
