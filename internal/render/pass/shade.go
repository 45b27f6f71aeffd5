package pass

import (
	"github.com/gogpu/gputypes"

	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/pipeline"
	"github.com/ecsrender/engine/internal/render/target"
)

// ShadePass lights the G-buffer into the FP16 target.
type ShadePass struct {
	ecs.SystemBase
}

func NewShadePass(w *ecs.World) *ShadePass {
	return ecs.RegisterSystem(w, &ShadePass{})
}

func (p *ShadePass) Record(d *pipeline.Driver, f *Frame) error {
	d.SetRenderTarget(target.FP16, 0, gputypes.LoadOpClear, gputypes.StoreOpStore)
	d.SetRenderTargetAsShaderResource(target.GBufferAlbedo, effect.SlotAlbedo)
	d.SetRenderTargetAsShaderResource(target.GBufferNormal, effect.SlotNormal)
	d.SetRenderTargetAsShaderResource(target.GBufferMetalRoughness, effect.SlotMetalRoughness)
	d.SetRenderTargetAsShaderResource(target.GBufferWorldPos, effect.SlotWorldPos)
	d.SetRenderTargetAsShaderResource(target.ShadowMap, effect.SlotShadowMap)
	d.SetClearColor(Sky)
	if err := d.BeginRenderPass(); err != nil {
		return err
	}
	defer d.EndRenderPass()

	d.SetShader(effect.ShaderShadeGBuffer)
	d.SetDepthTestState(true)
	d.SetDepthWriteState(true)
	d.SetDepthCompare(gputypes.CompareFunctionLess)
	d.SetStencilTestState(false)

	if err := d.FillConstBuffer(effect.CBCommonData, effect.Bytes(f.Common)); err != nil {
		return err
	}
	if err := d.FillConstBuffer(effect.CBLights, effect.Bytes(f.Lights)); err != nil {
		return err
	}
	// Nothing after this pass reads the shadow map.
	d.Targets().Return(target.ShadowMap)

	d.SetConstBuffer(effect.CBCommonData)
	d.SetConstBuffer(effect.CBLights)
	return fullscreen(d, effect.ShaderShadeGBuffer)
}
