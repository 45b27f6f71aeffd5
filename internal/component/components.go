// Package component holds the plain-data components the renderer's systems
// match on. Components are copied into packed arrays, so none of them holds
// pointers into other components.
package component

import (
	"goki.dev/mat32/v2"

	"github.com/ecsrender/engine/internal/render/gpu"
)

// Camera holds projection parameters and the matrices CameraMatrixSystem
// derives from them and CameraTransform.
type Camera struct {
	FOV      float32 // vertical, degrees
	Aspect   float32
	Near     float32
	Far      float32
	View     mat32.Mat4
	Proj     mat32.Mat4
	ViewProj mat32.Mat4
}

// DefaultCamera matches the level default: 120° field of view at 16:9.
func DefaultCamera() Camera {
	return Camera{FOV: 120, Aspect: 16.0 / 9.0, Near: 1, Far: 100}
}

// CameraTransform is a camera position and a unit look direction.
type CameraTransform struct {
	Position  mat32.Vec3
	Direction mat32.Vec3
}

type Transform struct {
	Position mat32.Vec3
}

type Rotate struct {
	Quat mat32.Quat
}

// InputControlled tags the entity the movement keys and mouse steer.
type InputControlled struct{}

// Rendered tags entities that cast shadows and are candidates for the
// G-buffer pass.
type Rendered struct{}

// Visible is set each tick on the Rendered entities the camera sees.
type Visible struct{}

// Mesh references vertex and index data already uploaded to the device.
type Mesh struct {
	Name         string
	VertexBuffer gpu.Buffer
	IndexBuffer  gpu.Buffer
	VertexCount  uint32
	IndexCount   uint32
	Format       gpu.VertexFormatID
}

// Indexed reports whether the mesh is drawn through its index buffer.
func (m *Mesh) Indexed() bool { return m.IndexCount > 0 }

type Material struct {
	Name           string
	Albedo         gpu.Texture
	Normal         gpu.Texture
	MetalRoughness gpu.Texture
	Metalness      mat32.Vec3
	Roughness      float32
}

type PointLight struct {
	Color       mat32.Vec3
	Ambient     mat32.Vec3
	Intensity   float32
	Attenuation float32
	ViewProj    mat32.Mat4
}

type DirectionalLight struct {
	Direction mat32.Vec3
	Color     mat32.Vec3
	Intensity float32
	ViewProj  mat32.Mat4
}
