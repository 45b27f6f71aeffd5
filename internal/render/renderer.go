// Package render runs the frame: it gathers camera and light data from the
// world, records every pass through the pipeline driver and presents.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ecsrender/engine/internal/component"
	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/core/event"
	coresys "github.com/ecsrender/engine/internal/core/system"
	"github.com/ecsrender/engine/internal/render/gpu"
	"github.com/ecsrender/engine/internal/render/pass"
	"github.com/ecsrender/engine/internal/render/pipeline"
)

// Settings are the debug variables the frame data carries.
type Settings struct {
	DrawMode  uint32
	SSAO      pass.SSAOSettings
	DepthBias [2]float32
}

// ShaderReloader recreates the shader modules named in a reload event.
type ShaderReloader interface {
	Reload(names []string) error
}

// Renderer is the render phase system. It is also an ECS system so it
// receives Resize and ShaderReload events.
type Renderer struct {
	ecs.SystemBase
	world    *ecs.World
	drv      *pipeline.Driver
	passes   []pass.Pass
	shaders  ShaderReloader
	settings Settings
	log      *zap.Logger

	frame    pass.Frame
	start    time.Time
	failures uint64
	timeout  time.Duration
}

// New registers the renderer with w. Passes run in the order given.
func New(w *ecs.World, drv *pipeline.Driver, passes []pass.Pass, settings Settings, log *zap.Logger) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	r := ecs.RegisterSystem(w, &Renderer{
		world:    w,
		drv:      drv,
		passes:   passes,
		settings: settings,
		log:      log,
		start:    time.Now(),
		timeout:  5 * time.Second,
	})
	ecs.SubscribeEvent[event.Resize](w, r)
	ecs.SubscribeEvent[event.ShaderReload](w, r)
	return r
}

// SetShaderReloader installs the module reloader used on ShaderReload.
func (r *Renderer) SetShaderReloader(s ShaderReloader) { r.shaders = s }

func (r *Renderer) Phase() coresys.Phase { return coresys.PhaseRender }

func (r *Renderer) Update(_ time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	r.handleEvents(ctx)
	if err := r.RenderFrame(ctx); err != nil {
		r.failures++
		r.log.Error("frame failed", zap.Uint64("frame", r.drv.FrameID()), zap.Error(err))
	}
}

func (r *Renderer) handleEvents(ctx context.Context) {
	for _, ev := range ecs.Events[event.Resize](r) {
		if err := r.drv.Resize(ctx, ev.Width, ev.Height); err != nil {
			r.log.Error("resize failed", zap.Uint32("width", ev.Width), zap.Uint32("height", ev.Height), zap.Error(err))
			continue
		}
		r.log.Info("back buffer resized", zap.Uint32("width", ev.Width), zap.Uint32("height", ev.Height))
	}
	for _, ev := range ecs.Events[event.ShaderReload](r) {
		if r.shaders != nil {
			if err := r.shaders.Reload(ev.Shaders); err != nil {
				r.log.Error("shader reload failed", zap.Strings("shaders", ev.Shaders), zap.Error(err))
				continue
			}
		}
		if err := r.drv.DropPipelineCache(ctx); err != nil {
			r.log.Error("drop pipeline cache", zap.Error(err))
			continue
		}
		r.log.Info("shaders reloaded", zap.Strings("shaders", ev.Shaders))
	}
}

// RenderFrame records and presents one frame. A pass error skips the
// remaining passes; the frame is still ended so the next one can start.
func (r *Renderer) RenderFrame(ctx context.Context) error {
	if err := r.drv.StartFrame(ctx); err != nil {
		if errors.Is(err, gpu.ErrOutOfDate) {
			r.log.Warn("swapchain out of date, frame skipped")
		}
		return fmt.Errorf("start frame: %w", err)
	}
	r.gather()

	var err error
	for _, p := range r.passes {
		if perr := p.Record(r.drv, &r.frame); perr != nil {
			err = fmt.Errorf("%s: %w", p.Base().Name(), perr)
			break
		}
	}
	return multierr.Append(err, r.drv.EndFrame())
}

// gather fills the frame data from the first camera and lights in the world.
func (r *Renderer) gather() {
	f := &r.frame
	f.Common.Time = float32(time.Since(r.start).Seconds())
	for id, cam := range ecs.Query[component.Camera](r.world) {
		ct := ecs.GetComponent[component.CameraTransform](r.world, id)
		if ct == nil {
			continue
		}
		f.Common.ViewPos = [3]float32{ct.Position.X, ct.Position.Y, ct.Position.Z}
		f.Common.ViewProj = cam.ViewProj
		break
	}

	f.Lights.Ambient = [4]float32{0.2, 0.2, 0.2, 1}
	for _, dl := range ecs.Query[component.DirectionalLight](r.world) {
		c := dl.Color.MulScalar(dl.Intensity)
		f.Lights.DirLightDirection = [4]float32{dl.Direction.X, dl.Direction.Y, dl.Direction.Z, 0}
		f.Lights.DirLightColor = [4]float32{c.X, c.Y, c.Z, 1}
		f.Lights.DirLightViewProj = dl.ViewProj
		break
	}
	for id, pl := range ecs.Query[component.PointLight](r.world) {
		t := ecs.GetComponent[component.Transform](r.world, id)
		if t == nil {
			continue
		}
		c := pl.Color.MulScalar(pl.Intensity)
		f.Lights.PointLightPosition = [4]float32{t.Position.X, t.Position.Y, t.Position.Z, 1}
		f.Lights.PointLightColor = [4]float32{c.X, c.Y, c.Z, pl.Attenuation}
		f.Lights.PointLightViewProj = pl.ViewProj
		f.Lights.Ambient = [4]float32{pl.Ambient.X, pl.Ambient.Y, pl.Ambient.Z, 1}
		break
	}

	f.Debug.DrawMode = r.settings.DrawMode
	f.Debug.SSAOOff = 0
	if !r.settings.SSAO.Enabled {
		f.Debug.SSAOOff = 1
	}
	f.SSAO = r.settings.SSAO
	f.DepthBias = r.settings.DepthBias
}

// SetOverlay replaces the text lines the UI pass draws.
func (r *Renderer) SetOverlay(lines []string) { r.frame.Overlay = lines }

// Frame returns the data the last frame was recorded with.
func (r *Renderer) Frame() *pass.Frame { return &r.frame }

func (r *Renderer) Stats() pipeline.Stats { return r.drv.Stats() }

// Failures counts frames that returned an error from Update.
func (r *Renderer) Failures() uint64 { return r.failures }

func (r *Renderer) Driver() *pipeline.Driver { return r.drv }

type closer interface{ Close() }

// Close releases the passes' own resources and the driver's.
func (r *Renderer) Close(ctx context.Context) error {
	for _, p := range r.passes {
		if c, ok := p.(closer); ok {
			c.Close()
		}
	}
	return r.drv.Close(ctx)
}
