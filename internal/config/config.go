// Package config handles meshtool configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Supported GPU backends.
const (
	BackendHeadless = "headless"
	BackendGL       = "gl"
)

// ErrInvalid reports a configuration value outside its allowed range.
var ErrInvalid = errors.New("config: invalid value")

// Config holds all tool settings.
type Config struct {
	Mesh    MeshConfig    `yaml:"mesh"`
	Import  ImportConfig  `yaml:"import"`
	GPU     GPUConfig     `yaml:"gpu"`
	Watch   WatchConfig   `yaml:"watch"`
	Logging LoggingConfig `yaml:"logging"`
}

// MeshConfig holds defaults applied to every mesh the tool builds.
type MeshConfig struct {
	Readable       bool `yaml:"readable"`         // Keep CPU copies after upload
	MirrorPhysicsX bool `yaml:"mirror_physics_x"` // Negate X in collision shapes
	MaxInstances   int  `yaml:"max_instances"`    // Capacity of the shared instance buffers
}

// ImportConfig holds glTF import settings.
type ImportConfig struct {
	MeshIndex int  `yaml:"mesh_index"` // Which glTF mesh to load
	FlipV     bool `yaml:"flip_v"`     // Store 1-v for texture coordinates
}

// GPUConfig selects the upload backend.
type GPUConfig struct {
	Backend string `yaml:"backend"` // headless or gl
	Width   int    `yaml:"width"`   // Hidden GL window size
	Height  int    `yaml:"height"`
}

// WatchConfig holds hot-reload settings.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Mesh: MeshConfig{
			Readable:       true,
			MirrorPhysicsX: true,
			MaxInstances:   1024,
		},
		Import: ImportConfig{
			MeshIndex: 0,
			FlipV:     false,
		},
		GPU: GPUConfig{
			Backend: BackendHeadless,
			Width:   64,
			Height:  64,
		},
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.GPU.Backend {
	case BackendHeadless, BackendGL:
	default:
		return fmt.Errorf("%w: gpu.backend %q", ErrInvalid, c.GPU.Backend)
	}
	if c.Mesh.MaxInstances <= 0 {
		return fmt.Errorf("%w: mesh.max_instances %d", ErrInvalid, c.Mesh.MaxInstances)
	}
	if c.Import.MeshIndex < 0 {
		return fmt.Errorf("%w: import.mesh_index %d", ErrInvalid, c.Import.MeshIndex)
	}
	if c.GPU.Width <= 0 || c.GPU.Height <= 0 {
		return fmt.Errorf("%w: gpu size %dx%d", ErrInvalid, c.GPU.Width, c.GPU.Height)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("%w: watch.debounce %v", ErrInvalid, c.Watch.Debounce)
	}
	return nil
}
