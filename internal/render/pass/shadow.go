package pass

import (
	"github.com/gogpu/gputypes"

	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/geom"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/gpu"
	"github.com/ecsrender/engine/internal/render/pipeline"
	"github.com/ecsrender/engine/internal/render/target"
)

// ShadowPass renders the depth of every Rendered mesh from the light into
// the shadow map.
type ShadowPass struct {
	ecs.SystemBase
	world *ecs.World
}

func NewShadowPass(w *ecs.World) *ShadowPass {
	p := ecs.RegisterSystem(w, &ShadowPass{world: w})
	ecs.SubscribeComponent[component.Rendered](w, p)
	ecs.SubscribeComponent[component.Mesh](w, p)
	return p
}

func (p *ShadowPass) Record(d *pipeline.Driver, f *Frame) error {
	d.SetDepthBuffer(target.ShadowMap, gputypes.LoadOpClear, gputypes.StoreOpStore)
	if err := d.BeginRenderPass(); err != nil {
		return err
	}
	defer d.EndRenderPass()

	d.SetShader(effect.ShaderShadow)
	d.SetDepthTestState(true)
	d.SetDepthWriteState(true)
	d.SetDepthCompare(gputypes.CompareFunctionLess)
	d.SetStencilTestState(false)
	d.SetDynamicState(gpu.DynamicDepthBias, true)
	d.SetDepthBias(f.DepthBias[0], f.DepthBias[1])

	if err := d.FillConstBuffer(effect.CBLights, effect.Bytes(f.Lights)); err != nil {
		return err
	}
	for _, id := range p.Entities() {
		d.SetConstBuffer(effect.CBLights)
		d.FillPushConstants(geom.Bytes(worldMatrix(p.world, id)))
		if err := drawMesh(d, ecs.GetComponent[component.Mesh](p.world, id)); err != nil {
			return err
		}
	}
	return nil
}
