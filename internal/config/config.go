package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPath overrides the config path given on the command line.
const EnvPath = "ECSRENDER_CONFIG"

type Config struct {
	Window    WindowConfig    `toml:"window"`
	Render    RenderConfig    `toml:"render"`
	Data      DataConfig      `toml:"data"`
	Scripting ScriptingConfig `toml:"scripting"`
	Logging   LoggingConfig   `toml:"logging"`
	Database  DatabaseConfig  `toml:"database"`
	Profiling ProfilingConfig `toml:"profiling"`
}

type WindowConfig struct {
	Width      uint32 `toml:"width"`
	Height     uint32 `toml:"height"`
	Title      string `toml:"title"`
	MaxFrames  int    `toml:"max_frames"`  // 0 runs until the input track ends
	InputTrack string `toml:"input_track"` // YAML file, relative to data.dir
}

type RenderConfig struct {
	FramesInFlight     int           `toml:"frames_in_flight"`
	ConstBufferEntries int           `toml:"const_buffer_entries"`
	ShadowMapSize      uint32        `toml:"shadow_map_size"`
	ShaderDir          string        `toml:"shader_dir"`
	WatchShaders       bool          `toml:"watch_shaders"`
	TickRate           time.Duration `toml:"tick_rate"` // 0 renders as fast as possible
	InboxCapacity      int           `toml:"inbox_capacity"`
	DrawMode           uint32        `toml:"draw_mode"`
	SSAOEnabled        bool          `toml:"ssao_enabled"`
	SSAORadius         float32       `toml:"ssao_radius"`
	SSAOBias           float32       `toml:"ssao_bias"`
	DepthBiasConstant  float32       `toml:"depth_bias_constant"`
	DepthBiasSlope     float32       `toml:"depth_bias_slope"`
}

type DataConfig struct {
	Dir string `toml:"dir"`
}

type ScriptingConfig struct {
	LevelDir string `toml:"level_dir"`
	Level    string `toml:"level"`
	Seed     int64  `toml:"seed"` // 0 seeds from the clock
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // "json" or "console"
	File       string `toml:"file"`   // empty disables file output
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type DatabaseConfig struct {
	DSN              string        `toml:"dsn"` // empty disables snapshots
	MaxOpenConns     int           `toml:"max_open_conns"`
	MaxIdleConns     int           `toml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `toml:"conn_max_lifetime"`
	SnapshotInterval int           `toml:"snapshot_interval"` // ticks between scene snapshots
}

type ProfilingConfig struct {
	Mode string `toml:"mode"` // "", "cpu", "mem", "trace"
	Dir  string `toml:"dir"`
}

// Load reads path, or the file named by ECSRENDER_CONFIG when set, on top
// of the defaults.
func Load(path string) (*Config, error) {
	if env := os.Getenv(EnvPath); env != "" {
		path = env
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config { return defaults() }

func (c *Config) validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Render.FramesInFlight < 1 {
		return fmt.Errorf("frames_in_flight %d", c.Render.FramesInFlight)
	}
	if c.Render.ShadowMapSize == 0 || c.Render.ShadowMapSize&(c.Render.ShadowMapSize-1) != 0 {
		return fmt.Errorf("shadow_map_size %d is not a power of two", c.Render.ShadowMapSize)
	}
	if c.Render.InboxCapacity < 1 {
		return fmt.Errorf("inbox_capacity %d", c.Render.InboxCapacity)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Window: WindowConfig{
			Width:      1280,
			Height:     720,
			Title:      "ecsrender",
			MaxFrames:  0,
			InputTrack: "input_track.yaml",
		},
		Render: RenderConfig{
			FramesInFlight:     2,
			ConstBufferEntries: 1024,
			ShadowMapSize:      2048,
			ShaderDir:          "shaders",
			WatchShaders:       false,
			TickRate:           0,
			InboxCapacity:      256,
			DrawMode:           0,
			SSAOEnabled:        true,
			SSAORadius:         0.5,
			SSAOBias:           0.025,
			DepthBiasConstant:  1.25,
			DepthBiasSlope:     1.65,
		},
		Data: DataConfig{
			Dir: "data",
		},
		Scripting: ScriptingConfig{
			LevelDir: "levels",
			Level:    "simple",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Database: DatabaseConfig{
			MaxOpenConns:     4,
			MaxIdleConns:     2,
			ConnMaxLifetime:  30 * time.Minute,
			SnapshotInterval: 600,
		},
		Profiling: ProfilingConfig{
			Dir: ".",
		},
	}
}
