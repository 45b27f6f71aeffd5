package pass

import (
	"github.com/gogpu/gputypes"

	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/geom"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/pipeline"
	"github.com/ecsrender/engine/internal/render/target"
)

// GBufferPass fills albedo, normal, metal-roughness and world position for
// every Visible mesh. Entities without a Material use the fallback.
type GBufferPass struct {
	ecs.SystemBase
	world    *ecs.World
	fallback component.Material
}

func NewGBufferPass(w *ecs.World, fallback component.Material) *GBufferPass {
	p := ecs.RegisterSystem(w, &GBufferPass{world: w, fallback: fallback})
	ecs.SubscribeComponent[component.Visible](w, p)
	ecs.SubscribeComponent[component.Mesh](w, p)
	return p
}

func (p *GBufferPass) Record(d *pipeline.Driver, f *Frame) error {
	d.SetRenderTarget(target.GBufferAlbedo, 0, gputypes.LoadOpClear, gputypes.StoreOpStore)
	d.SetRenderTarget(target.GBufferNormal, 1, gputypes.LoadOpClear, gputypes.StoreOpStore)
	d.SetRenderTarget(target.GBufferMetalRoughness, 2, gputypes.LoadOpClear, gputypes.StoreOpStore)
	d.SetRenderTarget(target.GBufferWorldPos, 3, gputypes.LoadOpClear, gputypes.StoreOpStore)
	d.SetDepthBuffer(target.DepthBuffer, gputypes.LoadOpClear, gputypes.StoreOpStore)
	d.SetClearColor(Sky)
	if err := d.BeginRenderPass(); err != nil {
		return err
	}
	defer d.EndRenderPass()

	d.SetShader(effect.ShaderFillGBuffer)
	d.SetDepthTestState(true)
	d.SetDepthWriteState(true)
	d.SetDepthCompare(gputypes.CompareFunctionLess)
	d.SetStencilTestState(false)

	if err := d.FillConstBuffer(effect.CBCommonData, effect.Bytes(f.Common)); err != nil {
		return err
	}
	if err := d.FillConstBuffer(effect.CBDebug, effect.Bytes(f.Debug)); err != nil {
		return err
	}
	for _, id := range p.Entities() {
		d.SetConstBuffer(effect.CBCommonData)
		d.SetConstBuffer(effect.CBDebug)
		d.FillPushConstants(geom.Bytes(worldMatrix(p.world, id)))

		mat := ecs.GetComponent[component.Material](p.world, id)
		if mat == nil {
			mat = &p.fallback
		}
		d.SetTexture(mat.Albedo, effect.SlotAlbedo)
		d.SetTexture(mat.Normal, effect.SlotNormal)
		d.SetTexture(mat.MetalRoughness, effect.SlotMetalRoughness)
		params := effect.Material{
			Metalness: [3]float32{mat.Metalness.X, mat.Metalness.Y, mat.Metalness.Z},
			Roughness: mat.Roughness,
		}
		if err := d.FillConstBuffer(effect.CBMaterial, effect.Bytes(params)); err != nil {
			return err
		}
		d.SetConstBuffer(effect.CBMaterial)

		if err := drawMesh(d, ecs.GetComponent[component.Mesh](p.world, id)); err != nil {
			return err
		}
	}
	return nil
}
