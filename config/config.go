// Package config provides configuration loading and access for the
// visibility pipeline.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all pipeline configuration parameters.
type Config struct {
	World     WorldConfig     `yaml:"world"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Fog       FogConfig       `yaml:"fog"`
	Device    DeviceConfig    `yaml:"device"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig bounds the simulated volume. The fog grid covers this box.
type WorldConfig struct {
	MinX float64 `yaml:"min_x"`
	MinY float64 `yaml:"min_y"`
	MinZ float64 `yaml:"min_z"`
	MaxX float64 `yaml:"max_x"`
	MaxY float64 `yaml:"max_y"`
	MaxZ float64 `yaml:"max_z"`
}

// PipelineConfig holds the fixed per-cycle buffer capacities. These bound
// device memory; overfull arenas drop writes rather than grow.
type PipelineConfig struct {
	MaxUnits              int `yaml:"max_units"`
	MaxSeeables           int `yaml:"max_seeables"`
	MaxCandidatesPerGroup int `yaml:"max_candidates_per_group"`
	MaxVisiblePerGroup    int `yaml:"max_visible_per_group"`
}

// FogConfig holds the optional stage-0 fog volume parameters.
type FogConfig struct {
	Enabled         bool    `yaml:"enabled"`
	PlayerGroup     int     `yaml:"player_group"`
	GridX           int     `yaml:"grid_x"`
	GridY           int     `yaml:"grid_y"`
	GridZ           int     `yaml:"grid_z"`
	BlendRate       float64 `yaml:"blend_rate"`       // lerp factor toward newly computed visibility
	DissipationRate float64 `yaml:"dissipation_rate"` // exponential decay per second when no longer seen
	UpdateInterval  int     `yaml:"update_interval"`  // cycles between fog passes
}

// DeviceConfig holds the data-parallel executor parameters.
type DeviceConfig struct {
	Workers      int `yaml:"workers"`       // 0 = GOMAXPROCS
	BlockSize    int `yaml:"block_size"`    // lanes per cooperative block
	StagingBatch int `yaml:"staging_batch"` // unit records staged per block iteration
}

// TransferConfig holds the device-to-host readback parameters.
type TransferConfig struct {
	LatencyCycles int `yaml:"latency_cycles"` // simulated copy latency, bounded small
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow int  `yaml:"stats_window"` // cycles per perf window
	LogStats    bool `yaml:"log_stats"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	WorldMin  [3]float32 // world box corner as float32
	WorldSize [3]float32 // world box extent as float32
	FogCell   [3]float32 // fog voxel size per axis
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if
// path is empty. Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.ComputeDerived()

	return cfg, nil
}

// ComputeDerived recalculates the cached quantities after the raw fields
// change. Load calls it automatically.
func (c *Config) ComputeDerived() {
	c.Derived.WorldMin = [3]float32{
		float32(c.World.MinX), float32(c.World.MinY), float32(c.World.MinZ),
	}
	c.Derived.WorldSize = [3]float32{
		float32(c.World.MaxX - c.World.MinX),
		float32(c.World.MaxY - c.World.MinY),
		float32(c.World.MaxZ - c.World.MinZ),
	}
	dims := [3]int{c.Fog.GridX, c.Fog.GridY, c.Fog.GridZ}
	for i := range dims {
		if dims[i] > 0 {
			c.Derived.FogCell[i] = c.Derived.WorldSize[i] / float32(dims[i])
		}
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
