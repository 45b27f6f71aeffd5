// Package pass holds the render passes of the deferred frame. Every pass is
// an ECS system so the ones that draw entities receive them through
// component subscriptions; fullscreen passes subscribe to nothing.
package pass

import (
	mat32 "goki.dev/mat32/v2"

	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/geom"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/gpu"
	"github.com/ecsrender/engine/internal/render/pipeline"
)

// Pass records one stage of the frame.
type Pass interface {
	ecs.System
	Record(d *pipeline.Driver, f *Frame) error
}

// SSAOSettings are the debug-tunable occlusion parameters.
type SSAOSettings struct {
	Enabled bool
	Radius  float32
	Bias    float32
}

// Frame is the per-frame data the renderer gathers before the first pass.
type Frame struct {
	Common    effect.CommonData
	Lights    effect.Lights
	Debug     effect.Debug
	SSAO      SSAOSettings
	DepthBias [2]float32
	Overlay   []string
}

// Sky is the clear colour of the colour targets the scene is drawn into.
var Sky = [4]float32{0.1, 0.6, 0.9, 0}

func worldMatrix(w *ecs.World, id ecs.EntityID) mat32.Mat4 {
	var rot *mat32.Quat
	if r := ecs.GetComponent[component.Rotate](w, id); r != nil {
		rot = &r.Quat
	}
	var pos *mat32.Vec3
	if t := ecs.GetComponent[component.Transform](w, id); t != nil {
		pos = &t.Position
	}
	return geom.World(rot, pos)
}

// drawMesh binds m's buffers and draws it, indexed when it has indices.
func drawMesh(d *pipeline.Driver, m *component.Mesh) error {
	d.SetVertexFormat(m.Format)
	d.SetVertexBuffer(m.VertexBuffer)
	if !m.Indexed() {
		return d.Draw(m.VertexCount)
	}
	d.SetIndexBuffer(m.IndexBuffer)
	return d.DrawIndexed(m.IndexCount, 0, 0)
}

// fullscreen draws the generated triangle with shader.
func fullscreen(d *pipeline.Driver, shader gpu.ShaderID) error {
	d.SetShader(shader)
	d.SetVertexFormat(effect.VertexEmpty)
	return d.DrawFullscreen()
}
