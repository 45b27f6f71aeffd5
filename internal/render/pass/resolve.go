package pass

import (
	"github.com/gogpu/gputypes"

	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/pipeline"
	"github.com/ecsrender/engine/internal/render/target"
)

// ResolvePass copies the lit FP16 image into the back buffer.
type ResolvePass struct {
	ecs.SystemBase
}

func NewResolvePass(w *ecs.World) *ResolvePass {
	return ecs.RegisterSystem(w, &ResolvePass{})
}

func (p *ResolvePass) Record(d *pipeline.Driver, _ *Frame) error {
	d.SetRenderTarget(target.BackBuffer, 0, gputypes.LoadOpClear, gputypes.StoreOpStore)
	d.SetRenderTargetAsShaderResource(target.FP16, effect.SlotResolveSource)
	if err := d.BeginRenderPass(); err != nil {
		return err
	}
	defer d.EndRenderPass()
	return fullscreen(d, effect.ShaderFullscreen)
}
