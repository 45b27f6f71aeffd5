package pass

import (
	"fmt"
	"math/rand"

	"github.com/gogpu/gputypes"
	mat32 "goki.dev/mat32/v2"

	"github.com/ecsrender/engine/internal/core/ecs"
	"github.com/ecsrender/engine/internal/render/effect"
	"github.com/ecsrender/engine/internal/render/gpu"
	"github.com/ecsrender/engine/internal/render/pipeline"
	"github.com/ecsrender/engine/internal/render/target"
)

// KernelSide is the edge of the square kernel and noise textures.
const KernelSide = 4

// ssaoOff leaves the mask fully unoccluded.
var ssaoOff = [4]float32{1, 0, 0, 0}

// SSAOPass computes the ambient occlusion mask from the G-buffer normals
// and the scene depth.
type SSAOPass struct {
	ecs.SystemBase
	dev    gpu.Device
	kernel gpu.Texture
	noise  gpu.Texture
}

// NewSSAOPass uploads the sample kernel and the rotation noise drawn from rng.
func NewSSAOPass(w *ecs.World, dev gpu.Device, rng *rand.Rand) (*SSAOPass, error) {
	kernel, err := dev.CreateTexture(gpu.TextureDescriptor{
		Label:     "ssao_kernel",
		Format:    gputypes.TextureFormatRGBA8Snorm,
		Width:     KernelSide,
		Height:    KernelSide,
		MipLevels: 1,
		Usage:     gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		Data:      KernelData(rng),
	})
	if err != nil {
		return nil, fmt.Errorf("create ssao kernel: %w", err)
	}
	noise, err := dev.CreateTexture(gpu.TextureDescriptor{
		Label:     "ssao_noise",
		Format:    gputypes.TextureFormatRG8Snorm,
		Width:     KernelSide,
		Height:    KernelSide,
		MipLevels: 1,
		Usage:     gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		Data:      NoiseData(rng),
	})
	if err != nil {
		dev.DestroyTexture(kernel)
		return nil, fmt.Errorf("create ssao noise: %w", err)
	}
	return ecs.RegisterSystem(w, &SSAOPass{dev: dev, kernel: kernel, noise: noise}), nil
}

// KernelData returns hemisphere sample vectors packed as RGBA8 snorm, with
// more samples close to the origin.
func KernelData(rng *rand.Rand) []byte {
	const texels = KernelSide * KernelSide
	out := make([]byte, 0, texels*4)
	for i := 0; i < texels; i++ {
		v := mat32.Vec3{
			X: rng.Float32()*2 - 1,
			Y: rng.Float32()*2 - 1,
			Z: rng.Float32(),
		}.Normal()
		scale := float32(i) / texels
		scale = 0.1 + (1-0.1)*scale*scale
		v = v.MulScalar(scale)
		out = append(out, snorm(v.X), snorm(v.Y), snorm(v.Z), 0)
	}
	return out
}

// NoiseData returns unit rotation vectors in the XY plane packed as RG8 snorm.
func NoiseData(rng *rand.Rand) []byte {
	const texels = KernelSide * KernelSide
	out := make([]byte, 0, texels*2)
	for i := 0; i < texels; i++ {
		v := mat32.Vec3{X: rng.Float32()*2 - 1, Y: rng.Float32()*2 - 1}
		if v.Length() == 0 {
			v.X = 1
		}
		v = v.Normal()
		out = append(out, snorm(v.X), snorm(v.Y))
	}
	return out
}

func snorm(f float32) byte { return byte(int8(127 * f)) }

func (p *SSAOPass) Record(d *pipeline.Driver, f *Frame) error {
	d.SetRenderTarget(target.SSAOMask, 0, gputypes.LoadOpClear, gputypes.StoreOpStore)
	d.SetRenderTargetAsShaderResource(target.GBufferNormal, effect.SlotNormal)
	d.SetRenderTargetAsShaderResource(target.DepthBuffer, effect.SlotDepth)
	if !f.SSAO.Enabled {
		d.SetClearColor(ssaoOff)
	}
	if err := d.BeginRenderPass(); err != nil {
		return err
	}
	defer d.EndRenderPass()
	if !f.SSAO.Enabled {
		return nil
	}

	d.SetShader(effect.ShaderSSAO)
	d.SetTexture(p.kernel, effect.SlotSSAOKernel)
	d.SetTexture(p.noise, effect.SlotSSAONoise)
	if err := d.FillConstBuffer(effect.CBCommonData, effect.Bytes(f.Common)); err != nil {
		return err
	}
	d.SetConstBuffer(effect.CBCommonData)
	custom := effect.Custom{CB0: [4]float32{KernelSide, f.SSAO.Radius, f.SSAO.Bias, 0}}
	if err := d.FillConstBuffer(effect.CBCustom, effect.Bytes(custom)); err != nil {
		return err
	}
	d.SetConstBuffer(effect.CBCustom)
	return fullscreen(d, effect.ShaderSSAO)
}

func (p *SSAOPass) Close() {
	p.dev.DestroyTexture(p.kernel)
	p.dev.DestroyTexture(p.noise)
}

// SSAOBlendPass blurs the occlusion mask.
type SSAOBlendPass struct {
	ecs.SystemBase
}

func NewSSAOBlendPass(w *ecs.World) *SSAOBlendPass {
	return ecs.RegisterSystem(w, &SSAOBlendPass{})
}

func (p *SSAOBlendPass) Record(d *pipeline.Driver, _ *Frame) error {
	d.SetRenderTarget(target.SSAOMaskBlended, 0, gputypes.LoadOpClear, gputypes.StoreOpStore)
	d.SetRenderTargetAsShaderResource(target.SSAOMask, effect.SlotSSAOMask)
	if err := d.BeginRenderPass(); err != nil {
		return err
	}
	defer d.EndRenderPass()
	return fullscreen(d, effect.ShaderSSAOBlend)
}
