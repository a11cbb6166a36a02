// Package config defines the culling engine's configuration document.
package config

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/culling/logging"
	"go.viam.com/culling/octree"
	rutils "go.viam.com/culling/utils"
	"go.viam.com/culling/visibility"
)

// Defaults applied by Validate.
const (
	DefaultCellSize     = 10.0
	DefaultTickInterval = time.Second / 60
	DefaultMode         = "normal"
	DefaultLogLevel     = "info"
	// DefaultOctreeHalfSize is only used by Default; configs read from files must set half_size.
	DefaultOctreeHalfSize = 500.0
)

// Config describes how a culling engine indexes and classifies objects.
type Config struct {
	ConfigFilePath string `json:"-"`

	CellSize        float64                          `json:"cell_size,omitempty"`
	Octree          OctreeConfig                     `json:"octree"`
	TickInterval    string                           `json:"tick_interval,omitempty"`
	Mode            string                           `json:"mode,omitempty"`
	Modes           map[string]visibility.ModeConfig `json:"modes,omitempty"`
	Workers         int                              `json:"workers,omitempty"`
	Occlusion       OcclusionConfig                  `json:"occlusion"`
	CoherenceFrames int                              `json:"coherence_frames,omitempty"`
	LogLevel        string                           `json:"log_level,omitempty"`
}

// Vector is a JSON friendly point.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// R3 converts the vector.
func (v Vector) R3() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

// OctreeConfig bounds the octree. Objects positioned outside of it are still tracked, but are
// never pruned by the octree.
type OctreeConfig struct {
	Center            Vector  `json:"center"`
	HalfSize          float64 `json:"half_size"`
	MaxDepth          *int    `json:"max_depth,omitempty"`
	MaxObjectsPerNode int     `json:"max_objects_per_node,omitempty"`
}

// OcclusionConfig bounds the occlusion ray-march.
type OcclusionConfig struct {
	StepSize float64 `json:"step_size,omitempty"`
	MaxSteps int     `json:"max_steps,omitempty"`
}

// Default returns a validated config whose octree covers a cube around the origin.
func Default() *Config {
	cfg := &Config{Octree: OctreeConfig{HalfSize: DefaultOctreeHalfSize}}
	utils.UncheckedError(cfg.Validate(""))
	return cfg
}

// Validate fills in defaults and ensures the config can build an engine.
func (cfg *Config) Validate(path string) error {
	var errs error
	if cfg.CellSize == 0 {
		cfg.CellSize = DefaultCellSize
	}
	if cfg.CellSize < 0 || !rutils.IsFinite(cfg.CellSize) {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("cell_size must be a positive number, got %v", cfg.CellSize)))
	}

	if err := cfg.Octree.Validate(fmt.Sprintf("%s.%s", path, "octree")); err != nil {
		errs = multierr.Append(errs, err)
	}

	if cfg.TickInterval == "" {
		cfg.TickInterval = DefaultTickInterval.String()
	}
	if _, err := cfg.ParsedTickInterval(); err != nil {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path, err))
	}

	if cfg.Mode == "" {
		cfg.Mode = DefaultMode
	}
	if _, err := visibility.ParseMode(cfg.Mode); err != nil {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path, err))
	}
	if _, err := cfg.ModeConfigs(); err != nil {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path, err))
	}

	if cfg.Workers < 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			errors.Errorf("workers must not be negative, got %d", cfg.Workers)))
	}

	evalCfg := cfg.EvaluatorConfig()
	if err := evalCfg.Validate(); err != nil {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path, err))
	} else {
		cfg.Occlusion.StepSize = evalCfg.OcclusionStep
		cfg.Occlusion.MaxSteps = evalCfg.MaxOcclusionSteps
		cfg.CoherenceFrames = evalCfg.CoherenceFrames
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if _, err := logging.LevelFromString(cfg.LogLevel); err != nil {
		errs = multierr.Append(errs, utils.NewConfigValidationError(path, err))
	}
	return errs
}

// Validate fills in octree defaults and rejects unusable bounds.
func (oc *OctreeConfig) Validate(path string) error {
	if oc.HalfSize == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "half_size")
	}
	if oc.HalfSize < 0 || !rutils.IsFinite(oc.HalfSize, oc.Center.X, oc.Center.Y, oc.Center.Z) {
		return utils.NewConfigValidationError(path, errors.Errorf("half_size must be a positive number, got %v", oc.HalfSize))
	}
	if oc.MaxDepth == nil {
		depth := octree.DefaultMaxDepth
		oc.MaxDepth = &depth
	}
	if *oc.MaxDepth < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("max_depth must not be negative, got %d", *oc.MaxDepth))
	}
	if oc.MaxObjectsPerNode == 0 {
		oc.MaxObjectsPerNode = octree.DefaultMaxObjectsPerNode
	}
	if oc.MaxObjectsPerNode < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("max_objects_per_node must be positive, got %d", oc.MaxObjectsPerNode))
	}
	return nil
}

// Depth returns the configured max depth, or the default before validation.
func (oc *OctreeConfig) Depth() int {
	if oc.MaxDepth == nil {
		return octree.DefaultMaxDepth
	}
	return *oc.MaxDepth
}

// ParsedTickInterval parses the tick interval, which must be a positive Go duration.
func (cfg *Config) ParsedTickInterval() (time.Duration, error) {
	if cfg.TickInterval == "" {
		return DefaultTickInterval, nil
	}
	d, err := time.ParseDuration(cfg.TickInterval)
	if err != nil {
		return 0, errors.Wrap(err, "error parsing tick_interval")
	}
	if d <= 0 {
		return 0, errors.Errorf("tick_interval must be positive, got %s", d)
	}
	return d, nil
}

// CullingMode returns the configured mode.
func (cfg *Config) CullingMode() (visibility.Mode, error) {
	if cfg.Mode == "" {
		return visibility.ParseMode(DefaultMode)
	}
	return visibility.ParseMode(cfg.Mode)
}

// ModeConfigs merges the configured per-mode overrides over the defaults.
func (cfg *Config) ModeConfigs() (map[visibility.Mode]visibility.ModeConfig, error) {
	out := visibility.DefaultModeConfigs()
	for name, mc := range cfg.Modes {
		mode, err := visibility.ParseMode(name)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing modes")
		}
		if mode == visibility.Disabled {
			return nil, errors.New("the disabled mode cannot be configured")
		}
		if mc.MaxDistance <= 0 || !rutils.IsFinite(mc.MaxDistance) {
			return nil, errors.Errorf("modes.%s.max_distance must be a positive number, got %v", name, mc.MaxDistance)
		}
		out[mode] = mc
	}
	return out, nil
}

// EvaluatorConfig returns the visibility evaluator settings.
func (cfg *Config) EvaluatorConfig() visibility.EvaluatorConfig {
	return visibility.EvaluatorConfig{
		OcclusionStep:     cfg.Occlusion.StepSize,
		MaxOcclusionSteps: cfg.Occlusion.MaxSteps,
		CoherenceFrames:   cfg.CoherenceFrames,
	}
}

// Level returns the configured log level.
func (cfg *Config) Level() (logging.Level, error) {
	if cfg.LogLevel == "" {
		return logging.LevelFromString(DefaultLogLevel)
	}
	return logging.LevelFromString(cfg.LogLevel)
}
