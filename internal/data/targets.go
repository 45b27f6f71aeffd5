package data

import (
	"fmt"
	"os"

	"github.com/gogpu/gputypes"
	"gopkg.in/yaml.v3"

	"github.com/ecsrender/engine/internal/render/target"
)

// TargetEntry overrides the allocation of one render target.
type TargetEntry struct {
	Name   string  `yaml:"name"`
	Format string  `yaml:"format"`
	Size   uint32  `yaml:"size"`  // fixed square size; 0 follows the back buffer
	Scale  float32 `yaml:"scale"` // back buffer scale when size is 0
}

var formatNames = map[string]gputypes.TextureFormat{
	"rgba8unorm":            gputypes.TextureFormatRGBA8Unorm,
	"bgra8unorm":            gputypes.TextureFormatBGRA8Unorm,
	"rgba8snorm":            gputypes.TextureFormatRGBA8Snorm,
	"rg8snorm":              gputypes.TextureFormatRG8Snorm,
	"r8unorm":               gputypes.TextureFormatR8Unorm,
	"rgba16float":           gputypes.TextureFormatRGBA16Float,
	"rgba32float":           gputypes.TextureFormatRGBA32Float,
	"depth16unorm":          gputypes.TextureFormatDepth16Unorm,
	"depth32float-stencil8": gputypes.TextureFormatDepth32FloatStencil8,
}

// ParseFormat resolves a texture format by its table name.
func ParseFormat(name string) (gputypes.TextureFormat, error) {
	f, ok := formatNames[name]
	if !ok {
		return gputypes.TextureFormatUndefined, fmt.Errorf("unknown texture format %q", name)
	}
	return f, nil
}

// LoadTargetTable reads render_targets.yaml and applies its entries on top
// of base. Targets the file does not name keep their base spec; the back
// buffer belongs to the swapchain and cannot be overridden.
func LoadTargetTable(path string, base [target.Count]target.Spec) ([target.Count]target.Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read render targets: %w", err)
	}
	var entries []TargetEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return base, fmt.Errorf("parse render targets: %w", err)
	}
	specs := base
	for _, e := range entries {
		id, ok := target.ParseID(e.Name)
		if !ok {
			return base, fmt.Errorf("render target %q: unknown name", e.Name)
		}
		if id == target.BackBuffer {
			return base, fmt.Errorf("render target %q: owned by the swapchain", e.Name)
		}
		s := specs[id]
		if e.Format != "" {
			f, err := ParseFormat(e.Format)
			if err != nil {
				return base, fmt.Errorf("render target %q: %w", e.Name, err)
			}
			s.Format = f
		}
		switch {
		case e.Size > 0:
			s.Size = e.Size
		case e.Scale > 0:
			s.Size, s.Scale = 0, e.Scale
		}
		specs[id] = s
	}
	return specs, nil
}
