// Package asset generates and uploads the meshes, textures and materials
// levels refer to by name.
package asset

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	mat32 "goki.dev/mat32/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/data"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/gpu"
)

// ErrNotFound is returned for names the library does not hold.
var ErrNotFound = errors.New("asset not found")

// Built-in texture and material names.
const (
	DefaultAlbedo         = "default_albedo"
	DefaultNormal         = "default_normal"
	DefaultMetalRoughness = "default_metal_roughness"
	DefaultMaterial       = "default"
)

const (
	sphereRings    = 16
	sphereSegments = 32
)

// Library owns everything it uploaded. It is read-only after Load.
type Library struct {
	dev       gpu.Device
	log       *zap.Logger
	meshes    map[string]*Mesh
	textures  map[string]gpu.Texture
	materials map[string]component.Material
}

type textureJob struct {
	entry  data.TextureEntry
	format gputypes.TextureFormat
	pixels []byte
}

// Load generates geometry and texture data in parallel, then uploads it
// from the calling goroutine. textures and materials may be nil.
func Load(ctx context.Context, dev gpu.Device, textures *data.TextureTable, materials *data.MaterialTable, log *zap.Logger) (*Library, error) {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Library{
		dev:       dev,
		log:       log,
		meshes:    make(map[string]*Mesh),
		textures:  make(map[string]gpu.Texture),
		materials: make(map[string]component.Material),
	}

	jobs := defaultTextures()
	if textures != nil {
		for _, e := range textures.All() {
			jobs = append(jobs, &textureJob{entry: e})
		}
	}
	meshes := make([]*Mesh, 3)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { meshes[0] = Cube(); return gctx.Err() })
	g.Go(func() error { meshes[1] = Sphere(sphereRings, sphereSegments); return gctx.Err() })
	g.Go(func() error { meshes[2] = Fullscreen(); return gctx.Err() })
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := data.ParseFormat(j.entry.Format)
			if err != nil {
				return fmt.Errorf("texture %q: %w", j.entry.Name, err)
			}
			j.format = f
			j.pixels = j.entry.Pixels()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("generate assets: %w", err)
	}

	for _, m := range meshes {
		if err := l.uploadMesh(m); err != nil {
			l.Close()
			return nil, err
		}
	}
	for _, j := range jobs {
		if err := l.uploadTexture(j); err != nil {
			l.Close()
			return nil, err
		}
	}

	l.materials[DefaultMaterial] = l.resolveMaterial(data.MaterialEntry{Name: DefaultMaterial, Roughness: 0.5})
	if materials != nil {
		for _, e := range materials.All() {
			l.materials[e.Name] = l.resolveMaterial(e)
		}
	}
	log.Info("assets loaded",
		zap.Int("meshes", len(l.meshes)),
		zap.Int("textures", len(l.textures)),
		zap.Int("materials", len(l.materials)))
	return l, nil
}

func defaultTextures() []*textureJob {
	solid := func(name string, c [4]uint8) *textureJob {
		return &textureJob{entry: data.TextureEntry{Name: name, Width: 1, Height: 1, Format: "rgba8unorm", Color: c}}
	}
	return []*textureJob{
		solid(DefaultAlbedo, [4]uint8{255, 255, 255, 255}),
		solid(DefaultNormal, [4]uint8{128, 128, 255, 255}),
		solid(DefaultMetalRoughness, [4]uint8{255, 255, 255, 255}),
	}
}

func (l *Library) uploadMesh(m *Mesh) error {
	m.Component = component.Mesh{Name: m.Name, Format: effect.VertexEmpty, VertexCount: m.GeneratedVertices}
	if len(m.Vertices) == 0 {
		l.meshes[m.Name] = m
		return nil
	}
	vb, err := l.dev.CreateBuffer(gpu.BufferDescriptor{
		Label: m.Name + "_vertices",
		Size:  uint64(len(m.Vertices)) * uint64(effect.VertexStride[effect.VertexSimple]),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
		Data:  m.VertexBytes(),
	})
	if err != nil {
		return fmt.Errorf("mesh %q vertices: %w", m.Name, err)
	}
	m.Component.VertexBuffer = vb
	m.Component.VertexCount = uint32(len(m.Vertices))
	m.Component.Format = effect.VertexSimple
	l.meshes[m.Name] = m

	if len(m.Indices) > 0 {
		ib, err := l.dev.CreateBuffer(gpu.BufferDescriptor{
			Label: m.Name + "_indices",
			Size:  uint64(len(m.Indices)) * 4,
			Usage: gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
			Data:  m.IndexBytes(),
		})
		if err != nil {
			return fmt.Errorf("mesh %q indices: %w", m.Name, err)
		}
		m.Component.IndexBuffer = ib
		m.Component.IndexCount = uint32(len(m.Indices))
	}
	return nil
}

func (l *Library) uploadTexture(j *textureJob) error {
	if _, dup := l.textures[j.entry.Name]; dup {
		return fmt.Errorf("texture %q: name taken", j.entry.Name)
	}
	tex, err := l.dev.CreateTexture(gpu.TextureDescriptor{
		Label:     j.entry.Name,
		Format:    j.format,
		Width:     j.entry.Width,
		Height:    j.entry.Height,
		MipLevels: 1,
		Usage:     gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		Data:      j.pixels,
	})
	if err != nil {
		return fmt.Errorf("texture %q: %w", j.entry.Name, err)
	}
	l.textures[j.entry.Name] = tex
	return nil
}

// resolveMaterial looks up e's textures, substituting the defaults for
// names that are empty or unknown.
func (l *Library) resolveMaterial(e data.MaterialEntry) component.Material {
	tex := func(name, fallback string) gpu.Texture {
		if name == "" {
			return l.textures[fallback]
		}
		if t, ok := l.textures[name]; ok {
			return t
		}
		l.log.Warn("material texture missing, using default",
			zap.String("material", e.Name), zap.String("texture", name))
		return l.textures[fallback]
	}
	return component.Material{
		Name:           e.Name,
		Albedo:         tex(e.Albedo, DefaultAlbedo),
		Normal:         tex(e.Normal, DefaultNormal),
		MetalRoughness: tex(e.MetalRoughness, DefaultMetalRoughness),
		Metalness:      mat32.Vec3{X: e.Metalness[0], Y: e.Metalness[1], Z: e.Metalness[2]},
		Roughness:      e.Roughness,
	}
}

func (l *Library) MeshByName(name string) (*Mesh, bool) {
	m, ok := l.meshes[name]
	return m, ok
}

func (l *Library) TextureByName(name string) (gpu.Texture, bool) {
	t, ok := l.textures[name]
	return t, ok
}

// Material returns the named material, or an error wrapping ErrNotFound.
func (l *Library) Material(name string) (component.Material, error) {
	m, ok := l.materials[name]
	if !ok {
		return component.Material{}, fmt.Errorf("material %q: %w", name, ErrNotFound)
	}
	return m, nil
}

// DefaultMaterial is the material the G-buffer pass uses for entities
// without one.
func (l *Library) DefaultMaterial() component.Material { return l.materials[DefaultMaterial] }

// Close destroys every uploaded buffer and texture.
func (l *Library) Close() {
	for _, m := range l.meshes {
		if !m.Component.VertexBuffer.IsZero() {
			l.dev.DestroyBuffer(m.Component.VertexBuffer)
		}
		if !m.Component.IndexBuffer.IsZero() {
			l.dev.DestroyBuffer(m.Component.IndexBuffer)
		}
	}
	for _, t := range l.textures {
		l.dev.DestroyTexture(t)
	}
	clear(l.meshes)
	clear(l.textures)
	clear(l.materials)
}
