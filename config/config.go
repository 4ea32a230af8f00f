// Package config parses and defaults the YAML configuration surface that
// drives a tracking run: which tracker to use, keypoint-selection and
// validity rules, RANSAC tunables, and scale-recovery behavior.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TrackingMethod selects which per-frame tracker produces the relative
// pose consumed by the orchestrator.
type TrackingMethod string

const (
	TrackingHybrid   TrackingMethod = "hybrid"
	TrackingPnP      TrackingMethod = "PnP"
	TrackingDeepPose TrackingMethod = "deep_pose"
)

// ValidityMethod selects how a two-view Essential-matrix solve is
// accepted or rejected.
type ValidityMethod string

const (
	ValidityFlow      ValidityMethod = "flow"
	ValidityHomoRatio ValidityMethod = "homo_ratio"
)

// KeypointSource selects which per-frame keypoint set (kp_best or
// kp_depth) a tracker consumes.
type KeypointSource string

const (
	KpBest  KeypointSource = "kp_best"
	KpDepth KeypointSource = "kp_depth"
)

// ScaleMethod selects the scale-recovery pass: a single regression
// against the current reference, or an iterative re-sampling loop.
type ScaleMethod string

const (
	ScaleSingle    ScaleMethod = "single"
	ScaleIterative ScaleMethod = "iterative"
)

// ScaleRansacMethod selects the residual used by the scale-recovery
// RANSAC regression.
type ScaleRansacMethod string

const (
	ScaleRansacDepthRatio ScaleRansacMethod = "depth_ratio"
	ScaleRansacAbsDiff    ScaleRansacMethod = "abs_diff"
)

// Validity configures two-view pose acceptance (compute_2d2d_pose.validity).
type Validity struct {
	Method ValidityMethod `yaml:"method"`
	Thre   float64        `yaml:"thre"`
}

// Ransac2D2D configures the repeated-shuffle Essential-matrix RANSAC
// (compute_2d2d_pose.ransac).
type Ransac2D2D struct {
	Repeat     int     `yaml:"repeat"`
	ReprojThre float64 `yaml:"reproj_thre"`
}

// Compute2D2DPose configures the Essential-matrix two-view stage.
type Compute2D2DPose struct {
	Validity Validity   `yaml:"validity"`
	Ransac   Ransac2D2D `yaml:"ransac"`
}

// DepthConsistency configures the depth-consistency keypoint filter
// (kp_selection.depth_consistency).
type DepthConsistency struct {
	Enable bool    `yaml:"enable"`
	Thre   float64 `yaml:"thre"`
}

// GoodDepthKp configures the separate kp_depth sampling pass
// (kp_selection.good_depth_kp).
type GoodDepthKp struct {
	Enable bool `yaml:"enable"`
}

// KpSelection groups the keypoint-sampling configuration.
type KpSelection struct {
	DepthConsistency DepthConsistency `yaml:"depth_consistency"`
	GoodDepthKp      GoodDepthKp      `yaml:"good_depth_kp"`
}

// IterativeKp configures whether a tracker re-samples keypoints under its
// own pose estimate, and which keypoint source the re-sample draws from.
type IterativeKp struct {
	Enable bool           `yaml:"enable"`
	KpSrc  KeypointSource `yaml:"kp_src"`
}

// ETracker configures the Essential-matrix tracker (C4).
type ETracker struct {
	KpSrc       KeypointSource `yaml:"kp_src"`
	IterativeKp IterativeKp    `yaml:"iterative_kp"`
}

// PnpTracker configures the PnP fallback tracker (C6).
type PnpTracker struct {
	KpSrc       KeypointSource `yaml:"kp_src"`
	IterativeKp IterativeKp    `yaml:"iterative_kp"`
}

// ScaleRansac configures the RANSAC regression used by scale recovery.
type ScaleRansac struct {
	Method     ScaleRansacMethod `yaml:"method"`
	MinSamples int               `yaml:"min_samples"`
	MaxTrials  int               `yaml:"max_trials"`
	StopProb   float64           `yaml:"stop_prob"`
	Thre       float64           `yaml:"thre"`
}

// ScaleRecovery configures C5.
type ScaleRecovery struct {
	KpSrc  KeypointSource `yaml:"kp_src"`
	Method ScaleMethod    `yaml:"method"`
	Ransac ScaleRansac    `yaml:"ransac"`
}

// OnlineFinetune is accepted for forward-compatibility with upstream
// configuration files but is not consulted by the core pipeline.
type OnlineFinetune struct {
	Enable bool `yaml:"enable"`
}

// Config is the full tracking-run configuration surface.
type Config struct {
	TrackingMethod      TrackingMethod  `yaml:"tracking_method"`
	Compute2D2DPose     Compute2D2DPose `yaml:"compute_2d2d_pose"`
	KpSelection         KpSelection     `yaml:"kp_selection"`
	ETracker            ETracker        `yaml:"e_tracker"`
	PnpTracker          PnpTracker      `yaml:"pnp_tracker"`
	ScaleRecovery       ScaleRecovery   `yaml:"scale_recovery"`
	FrameStep           int             `yaml:"frame_step"`
	UseMultiprocessing  bool            `yaml:"use_multiprocessing"`
	OnlineFinetune      OnlineFinetune  `yaml:"online_finetune"`
}

// Load reads and defaults a Config from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// New builds a Config from zero or more field overrides applied over the
// documented defaults, mirroring the zero-value-means-default convention
// used throughout this module's config structs.
func New(overrides *Config) *Config {
	cfg := &Config{}
	if overrides != nil {
		*cfg = *overrides
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero-valued fields with the documented defaults.
//
// Defaults:
//   - TrackingMethod: hybrid
//   - Compute2D2DPose.Validity.Method: flow
//   - Compute2D2DPose.Validity.Thre: 0.1
//   - Compute2D2DPose.Ransac.Repeat: 10
//   - Compute2D2DPose.Ransac.ReprojThre: 1.0
//   - KpSelection.DepthConsistency.Thre: 0.05
//   - ETracker.KpSrc: kp_best
//   - PnpTracker.KpSrc: kp_best
//   - ScaleRecovery.KpSrc: kp_depth
//   - ScaleRecovery.Method: single
//   - ScaleRecovery.Ransac.Method: depth_ratio
//   - ScaleRecovery.Ransac.MinSamples: 3
//   - ScaleRecovery.Ransac.MaxTrials: 100
//   - ScaleRecovery.Ransac.StopProb: 0.99
//   - ScaleRecovery.Ransac.Thre: 0.1
//   - FrameStep: 1
func applyDefaults(cfg *Config) {
	if cfg.TrackingMethod == "" {
		cfg.TrackingMethod = TrackingHybrid
	}
	if cfg.Compute2D2DPose.Validity.Method == "" {
		cfg.Compute2D2DPose.Validity.Method = ValidityFlow
	}
	if cfg.Compute2D2DPose.Validity.Thre == 0 {
		cfg.Compute2D2DPose.Validity.Thre = 0.1
	}
	if cfg.Compute2D2DPose.Ransac.Repeat == 0 {
		cfg.Compute2D2DPose.Ransac.Repeat = 10
	}
	if cfg.Compute2D2DPose.Ransac.ReprojThre == 0 {
		cfg.Compute2D2DPose.Ransac.ReprojThre = 1.0
	}
	if cfg.KpSelection.DepthConsistency.Thre == 0 {
		cfg.KpSelection.DepthConsistency.Thre = 0.05
	}
	if cfg.ETracker.KpSrc == "" {
		cfg.ETracker.KpSrc = KpBest
	}
	if cfg.PnpTracker.KpSrc == "" {
		cfg.PnpTracker.KpSrc = KpBest
	}
	if cfg.ScaleRecovery.KpSrc == "" {
		cfg.ScaleRecovery.KpSrc = KpDepth
	}
	if cfg.ScaleRecovery.Method == "" {
		cfg.ScaleRecovery.Method = ScaleSingle
	}
	if cfg.ScaleRecovery.Ransac.Method == "" {
		cfg.ScaleRecovery.Ransac.Method = ScaleRansacDepthRatio
	}
	if cfg.ScaleRecovery.Ransac.MinSamples == 0 {
		cfg.ScaleRecovery.Ransac.MinSamples = 3
	}
	if cfg.ScaleRecovery.Ransac.MaxTrials == 0 {
		cfg.ScaleRecovery.Ransac.MaxTrials = 100
	}
	if cfg.ScaleRecovery.Ransac.StopProb == 0 {
		cfg.ScaleRecovery.Ransac.StopProb = 0.99
	}
	if cfg.ScaleRecovery.Ransac.Thre == 0 {
		cfg.ScaleRecovery.Ransac.Thre = 0.1
	}
	if cfg.FrameStep == 0 {
		cfg.FrameStep = 1
	}
}

// Validate rejects configuration values with no implemented code path.
// The core is expected to call this once at setup and abort on error.
func Validate(cfg *Config) error {
	switch cfg.TrackingMethod {
	case TrackingHybrid, TrackingPnP, TrackingDeepPose:
	default:
		return fmt.Errorf("config: unsupported tracking_method %q", cfg.TrackingMethod)
	}
	switch cfg.Compute2D2DPose.Validity.Method {
	case ValidityFlow, ValidityHomoRatio:
	default:
		return fmt.Errorf("config: unsupported compute_2d2d_pose.validity.method %q", cfg.Compute2D2DPose.Validity.Method)
	}
	switch cfg.ScaleRecovery.Method {
	case ScaleSingle, ScaleIterative:
	default:
		return fmt.Errorf("config: unsupported scale_recovery.method %q", cfg.ScaleRecovery.Method)
	}
	switch cfg.ScaleRecovery.Ransac.Method {
	case ScaleRansacDepthRatio, ScaleRansacAbsDiff:
	default:
		return fmt.Errorf("config: unsupported scale_recovery.ransac.method %q", cfg.ScaleRecovery.Ransac.Method)
	}
	return nil
}
